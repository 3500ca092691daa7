package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/handlers"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/tasks"
	"github.com/Buildeployship/Advanced-Task-Manager/testutil"
)

func cookieHeader(t *testing.T, env *testutil.Env, u *models.User) http.Header {
	t.Helper()
	token, err := env.JWT.GenerateToken(u.ID, u.Email, u.Role)
	require.NoError(t, err)
	return http.Header{"Cookie": {fmt.Sprintf("%s=%s", handlers.AuthCookieName, token)}}
}

func dialDashboard(t *testing.T, env *testutil.Env, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	u := &url.URL{Scheme: "ws", Host: server.URL[7:], Path: "/dashboard/ws"}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

// readUntil は match が true を返すメッセージが届くまで読み進めます。
func readUntil(t *testing.T, conn *websocket.Conn, match func(handlers.ServerMessage) bool) handlers.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg handlers.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func isReadyView(msg handlers.ServerMessage) bool {
	return msg.Type == handlers.MsgView && msg.View != nil && msg.View.State == tasks.StateReady
}

func viewWithRows(n int) func(handlers.ServerMessage) bool {
	return func(msg handlers.ServerMessage) bool {
		return isReadyView(msg) && len(msg.View.Rows) == n
	}
}

func TestDashboardPages(t *testing.T) {
	env := testutil.SetupTestRouter(t)

	t.Run("クッキーが無ければ / はサインイン画面へ", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodGet, "/", "", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/auth", w.Header().Get("Location"))
	})

	t.Run("ダッシュボードは未認証ならリダイレクト", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodGet, "/dashboard", "", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/auth", w.Header().Get("Location"))
	})

	t.Run("サインイン画面を表示", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodGet, "/auth", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `action="/auth/login"`)
	})

	t.Run("フォームでサインインするとクッキーが付く", func(t *testing.T) {
		form := url.Values{"email": {testutil.NormalEmail}, "password": {testutil.NormalPassword}}
		req, _ := http.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		env.Router.ServeHTTP(w, req)

		require.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/dashboard", w.Header().Get("Location"))

		var token string
		for _, c := range w.Result().Cookies() {
			if c.Name == handlers.AuthCookieName {
				token = c.Value
				assert.True(t, c.HttpOnly)
			}
		}
		require.NotEmpty(t, token)

		req, _ = http.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(&http.Cookie{Name: handlers.AuthCookieName, Value: token})
		w = httptest.NewRecorder()
		env.Router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "normal_user")
	})

	t.Run("パスワード違いは401で再表示", func(t *testing.T) {
		form := url.Values{"email": {testutil.NormalEmail}, "password": {"wrongpassword"}}
		req, _ := http.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		env.Router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid email or password")
	})

	t.Run("フォームで登録するとそのままサインイン", func(t *testing.T) {
		form := url.Values{"username": {"fresh_user"}, "email": {"fresh@example.com"}, "password": {"freshpass1"}}
		req, _ := http.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		env.Router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	})

	t.Run("サインアウトでクッキーを消す", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodPost, "/auth/signout", "", nil)
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/auth", w.Header().Get("Location"))
	})
}

func TestDashboardWebSocket_Handshake(t *testing.T) {
	env := testutil.SetupTestRouter(t)

	_, resp, err := dialDashboard(t, env, nil)
	assert.EqualError(t, err, websocket.ErrBadHandshake.Error())
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := dialDashboard(t, env, cookieHeader(t, env, env.NormalUser))
	require.NoError(t, err)
	msg := readUntil(t, conn, isReadyView)
	assert.Empty(t, msg.View.Rows)
	assert.Equal(t, 0, msg.View.Stats.Total)
	require.Len(t, msg.View.Board, 3)
	assert.Equal(t, "To Do", msg.View.Board[0].Title)
}

func TestDashboardWebSocket_InitialListIsOwnTasksOnly(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	userToken := login(t, env, testutil.NormalEmail, testutil.NormalPassword)
	adminToken := login(t, env, testutil.AdminEmail, testutil.AdminPassword)

	testutil.CreateTestTask(t, env.Router, userToken, map[string]any{"title": "older", "priority": "low"})
	testutil.CreateTestTask(t, env.Router, userToken, map[string]any{"title": "newer", "priority": "high"})
	testutil.CreateTestTask(t, env.Router, adminToken, map[string]any{"title": "not mine"})

	conn, _, err := dialDashboard(t, env, cookieHeader(t, env, env.NormalUser))
	require.NoError(t, err)

	msg := readUntil(t, conn, viewWithRows(2))
	assert.Equal(t, "newer", msg.View.Rows[0].Task.Title)
	assert.Equal(t, "destructive", msg.View.Rows[0].PriorityVariant)
	assert.Equal(t, "older", msg.View.Rows[1].Task.Title)

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{
		Type:   handlers.MsgFilter,
		Filter: &tasks.Filter{Priority: "high"},
	}))
	msg = readUntil(t, conn, viewWithRows(1))
	assert.Equal(t, "newer", msg.View.Rows[0].Task.Title)
	assert.Equal(t, 2, msg.View.Stats.Total, "集計はフィルター前の件数")
}

func TestDashboardWebSocket_CreateToggleDelete(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	conn, _, err := dialDashboard(t, env, cookieHeader(t, env, env.NormalUser))
	require.NoError(t, err)
	readUntil(t, conn, isReadyView)

	// 作成
	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgNew}))
	msg := readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgForm })
	require.True(t, msg.Form.Open)
	assert.Equal(t, tasks.ModeCreate, msg.Form.Mode)
	assert.False(t, msg.Form.CanSubmit, "タイトルが空なら送信できない")

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{
		Type:   handlers.MsgSave,
		Fields: &tasks.Fields{Title: "Walk the dog", Priority: models.PriorityLow, DueDate: "2030-01-02"},
	}))
	msg = readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgForm })
	assert.False(t, msg.Form.Open, "保存に成功したら閉じる")

	msg = readUntil(t, conn, viewWithRows(1))
	created := msg.View.Rows[0].Task
	assert.Equal(t, "Walk the dog", created.Title)
	assert.Nil(t, created.Description)
	assert.Equal(t, env.NormalUser.ID, created.UserID)
	require.NotNil(t, created.DueDate)
	assert.Equal(t, "2030-01-02", created.DueDate.UTC().Format(tasks.DateLayout))

	// 完了切り替え
	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgToggle, ID: created.ID}))
	msg = readUntil(t, conn, func(m handlers.ServerMessage) bool {
		return viewWithRows(1)(m) && m.View.Rows[0].Task.Completed
	})
	assert.Equal(t, "Walk the dog", msg.View.Rows[0].Task.Title)
	assert.Equal(t, 100, msg.View.Stats.CompletionRate)

	// 確認を拒否すると削除しない
	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgDelete, ID: created.ID, Confirmed: false}))
	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgReload}))
	readUntil(t, conn, viewWithRows(1))
	_, err = env.Tasks.FindByID(context.Background(), created.ID)
	require.NoError(t, err)

	// 確認すると削除され、通知で一覧が空になる
	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgDelete, ID: created.ID, Confirmed: true}))
	readUntil(t, conn, viewWithRows(0))
	_, err = env.Tasks.FindByID(context.Background(), created.ID)
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestDashboardWebSocket_EditKeepsFormOnError(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	token := login(t, env, testutil.NormalEmail, testutil.NormalPassword)
	task := testutil.CreateTestTask(t, env.Router, token, map[string]any{"title": "Draft", "description": "v1"})

	conn, _, err := dialDashboard(t, env, cookieHeader(t, env, env.NormalUser))
	require.NoError(t, err)
	readUntil(t, conn, viewWithRows(1))

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgEdit, ID: task.ID}))
	msg := readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgForm })
	require.True(t, msg.Form.Open)
	assert.Equal(t, tasks.ModeEdit, msg.Form.Mode)
	assert.Equal(t, task.ID, msg.Form.TaskID)
	assert.Equal(t, "Draft", msg.Form.Fields.Title)
	assert.Equal(t, "v1", msg.Form.Fields.Description)

	fields := msg.Form.Fields
	fields.DueDate = "next tuesday"
	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgSave, Fields: &fields}))
	msg = readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgForm })
	assert.True(t, msg.Form.Open, "失敗してもフォームは開いたまま")
	assert.Equal(t, tasks.ErrInvalidDueDate.Error(), msg.Form.Error)

	fields.DueDate = ""
	fields.Description = ""
	fields.Title = "Final"
	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgSave, Fields: &fields}))
	msg = readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgForm })
	assert.False(t, msg.Form.Open)

	stored, err := env.Tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", stored.Title)
	assert.Nil(t, stored.Description, "空の説明は null で保存")
}

func TestDashboardWebSocket_Messages(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	header := cookieHeader(t, env, env.NormalUser)
	conn, _, err := dialDashboard(t, env, header)
	require.NoError(t, err)
	readUntil(t, conn, isReadyView)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"x"}`)))
	msg := readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgError })
	assert.Equal(t, "invalid message", msg.Error)

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgToggle, ID: "missing"}))
	msg = readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgError })
	assert.Equal(t, "task not found", msg.Error)

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgSave}))
	msg = readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgError })
	assert.Equal(t, "no form is open", msg.Error)

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: "bogus"}))
	msg = readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgError })
	assert.Contains(t, msg.Error, "bogus")

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MsgSignOut}))
	readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgSignedOut })

	// サインアウト後は同じクッキーでは入れない
	req, _ := http.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Cookie", header.Get("Cookie"))
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth", w.Header().Get("Location"))

	_, resp, err := dialDashboard(t, env, header)
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignOutHandler_RevokesCookieToken(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	header := cookieHeader(t, env, env.NormalUser)

	req, _ := http.NewRequest(http.MethodPost, "/auth/signout", nil)
	req.Header.Set("Cookie", header.Get("Cookie"))
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusSeeOther, w.Code)

	req, _ = http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", header.Get("Cookie"))
	w = httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	assert.Equal(t, "/auth", w.Header().Get("Location"))
}

func TestDashboardWebSocket_DeletedUserIsAskedToSignIn(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	ghost := &models.User{ID: "ghost", Email: "ghost@example.com", Role: models.RoleUser}

	conn, _, err := dialDashboard(t, env, cookieHeader(t, env, ghost))
	require.NoError(t, err)
	readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MsgAuthReq })
}
