package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
	"github.com/Buildeployship/Advanced-Task-Manager/testutil"
)

func login(t *testing.T, env *testutil.Env, email, password string) string {
	t.Helper()
	token, err := testutil.LoginAndGetToken(t, env.Router, email, password)
	require.NoError(t, err)
	return token
}

func decodeTasks(t *testing.T, body []byte) []*models.Task {
	t.Helper()
	var list []*models.Task
	require.NoError(t, json.Unmarshal(body, &list))
	return list
}

func TestCreateTask_Success(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	token := login(t, env, testutil.NormalEmail, testutil.NormalPassword)

	created := testutil.CreateTestTask(t, env.Router, token, map[string]any{
		"title":       "Write report",
		"description": nil,
		"priority":    "high",
		"due_date":    "2025-03-01T00:00:00Z",
	})

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Write report", created.Title)
	assert.Nil(t, created.Description)
	assert.False(t, created.Completed)
	assert.Equal(t, models.PriorityHigh, created.Priority)
	assert.Equal(t, models.StatusTodo, created.Status)
	require.NotNil(t, created.DueDate)
	assert.Equal(t, "2025-03-01", created.DueDate.UTC().Format("2006-01-02"))
	assert.Equal(t, env.NormalUser.ID, created.UserID, "所有者はトークンのユーザー")
	assert.NotZero(t, created.CreatedAt)
}

func TestCreateTask_Validation(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	token := login(t, env, testutil.NormalEmail, testutil.NormalPassword)

	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"missing title", map[string]any{"priority": "low"}},
		{"blank title", map[string]any{"title": "   "}},
		{"unknown priority", map[string]any{"title": "x", "priority": "urgent"}},
		{"unknown status", map[string]any{"title": "x", "status": "blocked"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := testutil.DoJSON(env.Router, http.MethodPost, "/api/tasks", token, tc.payload)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	all, err := env.Tasks.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "検証エラーでは何も保存しない")
}

func TestCreateTask_IgnoresForeignUserID(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	token := login(t, env, testutil.NormalEmail, testutil.NormalPassword)

	created := testutil.CreateTestTask(t, env.Router, token, map[string]any{
		"title":   "mine",
		"user_id": env.AdminUser.ID,
	})
	assert.Equal(t, env.NormalUser.ID, created.UserID)
}

func TestGetTasksHandler_Authorization(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	userToken := login(t, env, testutil.NormalEmail, testutil.NormalPassword)
	adminToken := login(t, env, testutil.AdminEmail, testutil.AdminPassword)

	first := testutil.CreateTestTask(t, env.Router, userToken, map[string]any{"title": "first"})
	second := testutil.CreateTestTask(t, env.Router, userToken, map[string]any{"title": "second"})
	testutil.CreateTestTask(t, env.Router, adminToken, map[string]any{"title": "admin task"})

	t.Run("一般ユーザーは自分のタスクだけを新しい順に取得", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks", userToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decodeTasks(t, w.Body.Bytes())
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)
	})

	t.Run("一般ユーザーは全件を取得できない", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks?scope=all", userToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("一般ユーザーは他人の一覧を取得できない", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks?user_id="+env.AdminUser.ID, userToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("管理者は全件を取得できる", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks?scope=all", adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeTasks(t, w.Body.Bytes()), 3)
	})

	t.Run("管理者は他人の一覧を取得できる", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks?user_id="+env.NormalUser.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeTasks(t, w.Body.Bytes()), 2)
	})

	t.Run("タスクが無いユーザーは空配列", func(t *testing.T) {
		other := testutil.CreateTestUser(t, env.Users, "other_user", "other@example.com", "otherpass1", models.RoleUser)
		token := login(t, env, other.Email, "otherpass1")
		w := testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})
}

func TestGetTaskByIDHandler_Authorization(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	userToken := login(t, env, testutil.NormalEmail, testutil.NormalPassword)
	adminToken := login(t, env, testutil.AdminEmail, testutil.AdminPassword)

	adminTask := testutil.CreateTestTask(t, env.Router, adminToken, map[string]any{"title": "secret"})
	userTask := testutil.CreateTestTask(t, env.Router, userToken, map[string]any{"title": "visible"})

	w := testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks/"+userTask.ID, userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "visible", got.Title)

	w = testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks/"+adminTask.ID, userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "他人のタスクは存在しないものとして扱う")

	w = testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks/"+userTask.ID, adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks/does-not-exist", userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTaskHandler_PartialUpdate(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	token := login(t, env, testutil.NormalEmail, testutil.NormalPassword)

	created := testutil.CreateTestTask(t, env.Router, token, map[string]any{
		"title":       "Pay rent",
		"description": "before the 5th",
		"priority":    "low",
		"due_date":    "2025-03-05T00:00:00Z",
	})

	t.Run("completed だけを送ると他の項目は変わらない", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodPatch, "/api/tasks/"+created.ID, token, map[string]any{"completed": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var got models.Task
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.True(t, got.Completed)
		assert.Equal(t, "Pay rent", got.Title)
		require.NotNil(t, got.Description)
		assert.Equal(t, "before the 5th", *got.Description)
		assert.Equal(t, models.PriorityLow, got.Priority)
		assert.NotNil(t, got.DueDate)
	})

	t.Run("null で説明と期限を消せる", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodPatch, "/api/tasks/"+created.ID, token, map[string]any{
			"description": nil,
			"due_date":    nil,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var got models.Task
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Nil(t, got.Description)
		assert.Nil(t, got.DueDate)
		assert.True(t, got.Completed)
	})

	t.Run("空のタイトルは拒否", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodPatch, "/api/tasks/"+created.ID, token, map[string]any{"title": " "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("PUT は title が必須", func(t *testing.T) {
		w := testutil.DoJSON(env.Router, http.MethodPut, "/api/tasks/"+created.ID, token, map[string]any{"priority": "high"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = testutil.DoJSON(env.Router, http.MethodPut, "/api/tasks/"+created.ID, token, map[string]any{
			"title": "Pay rent now", "priority": "high", "status": "inprogress",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var got models.Task
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "Pay rent now", got.Title)
		assert.Equal(t, models.StatusInProgress, got.Status)
	})
}

func TestUpdateTaskHandler_Authorization(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	userToken := login(t, env, testutil.NormalEmail, testutil.NormalPassword)
	adminToken := login(t, env, testutil.AdminEmail, testutil.AdminPassword)

	adminTask := testutil.CreateTestTask(t, env.Router, adminToken, map[string]any{"title": "admin only"})
	userTask := testutil.CreateTestTask(t, env.Router, userToken, map[string]any{"title": "user task"})

	w := testutil.DoJSON(env.Router, http.MethodPatch, "/api/tasks/"+adminTask.ID, userToken, map[string]any{"completed": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	stored, err := env.Tasks.FindByID(context.Background(), adminTask.ID)
	require.NoError(t, err)
	assert.False(t, stored.Completed)

	w = testutil.DoJSON(env.Router, http.MethodPatch, "/api/tasks/"+userTask.ID, adminToken, map[string]any{"completed": true})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteTaskHandler(t *testing.T) {
	env := testutil.SetupTestRouter(t)
	userToken := login(t, env, testutil.NormalEmail, testutil.NormalPassword)
	adminToken := login(t, env, testutil.AdminEmail, testutil.AdminPassword)

	adminTask := testutil.CreateTestTask(t, env.Router, adminToken, map[string]any{"title": "keep"})
	userTask := testutil.CreateTestTask(t, env.Router, userToken, map[string]any{"title": "remove"})

	w := testutil.DoJSON(env.Router, http.MethodDelete, "/api/tasks/"+adminTask.ID, userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoJSON(env.Router, http.MethodDelete, "/api/tasks/"+userTask.ID, userToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = testutil.DoJSON(env.Router, http.MethodDelete, "/api/tasks/"+userTask.ID, userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoJSON(env.Router, http.MethodGet, "/api/tasks", userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeTasks(t, w.Body.Bytes()))
}
