package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/backend"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/feed"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/services"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/tasks"
)

// ダッシュボードのWebSocketでやり取りするメッセージ種別
const (
	MsgReload    = "reload"
	MsgFilter    = "filter"
	MsgToggle    = "toggle"
	MsgEdit      = "edit"
	MsgDelete    = "delete"
	MsgNew       = "new"
	MsgCancel    = "cancel"
	MsgSave      = "save"
	MsgSignOut   = "signout"
	MsgView      = "view"
	MsgForm      = "form"
	MsgError     = "error"
	MsgAuthReq   = "auth_required"
	MsgSignedOut = "signed_out"
)

// ClientMessage はブラウザから届く操作です。
type ClientMessage struct {
	Type      string        `json:"type" binding:"required"`
	ID        string        `json:"id,omitempty"`
	Filter    *tasks.Filter `json:"filter,omitempty"`
	Fields    *tasks.Fields `json:"fields,omitempty"`
	Confirmed bool          `json:"confirmed,omitempty"`
}

// FormState は作成・編集モーダルの表示状態です。
type FormState struct {
	Open       bool         `json:"open"`
	Mode       tasks.Mode   `json:"mode,omitempty"`
	TaskID     string       `json:"task_id,omitempty"`
	Fields     tasks.Fields `json:"fields"`
	CanSubmit  bool         `json:"can_submit"`
	Submitting bool         `json:"submitting"`
	Error      string       `json:"error,omitempty"`
}

// ServerMessage はブラウザへ送る状態です。
type ServerMessage struct {
	Type  string      `json:"type"`
	View  *tasks.View `json:"view,omitempty"`
	Form  *FormState  `json:"form,omitempty"`
	Error string      `json:"error,omitempty"`
}

// DashboardHandler はクッキー認証のHTMLページとダッシュボードのWebSocketを扱います。
type DashboardHandler struct {
	userService  *services.UserService
	taskService  *services.TaskService
	jwtService   *services.JWTService
	hub          *feed.Hub
	secureCookie bool
}

func NewDashboardHandler(userService *services.UserService, taskService *services.TaskService, jwtService *services.JWTService, hub *feed.Hub, secureCookie bool) *DashboardHandler {
	return &DashboardHandler{
		userService:  userService,
		taskService:  taskService,
		jwtService:   jwtService,
		hub:          hub,
		secureCookie: secureCookie,
	}
}

// RootHandler は有効なクッキーがあればダッシュボード、なければサインイン画面へ送ります。
func (h *DashboardHandler) RootHandler(c *gin.Context) {
	if token, err := c.Cookie(AuthCookieName); err == nil {
		if _, err := h.jwtService.ValidateToken(token); err == nil {
			c.Redirect(http.StatusFound, "/dashboard")
			return
		}
	}
	c.Redirect(http.StatusFound, "/auth")
}

// AuthPageHandler はサインイン・登録画面を表示します。
func (h *DashboardHandler) AuthPageHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "auth.html", gin.H{})
}

// LoginFormHandler はフォームからのサインインを処理します。
func (h *DashboardHandler) LoginFormHandler(c *gin.Context) {
	var req models.UserLoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.HTML(http.StatusBadRequest, "auth.html", gin.H{"Error": "Please enter a valid email and password"})
		return
	}

	user, err := h.userService.AuthenticateUser(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			c.HTML(http.StatusUnauthorized, "auth.html", gin.H{"Error": "Invalid email or password"})
			return
		}
		log.WithError(err).Error("Failed to authenticate user")
		c.HTML(http.StatusInternalServerError, "auth.html", gin.H{"Error": "Something went wrong, please try again"})
		return
	}

	h.signIn(c, user)
}

// RegisterFormHandler はフォームからの登録を処理し、そのままサインインします。
func (h *DashboardHandler) RegisterFormHandler(c *gin.Context) {
	var req models.UserRegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		c.HTML(http.StatusBadRequest, "auth.html", gin.H{"Error": "Username needs 3+ characters and password 8+", "Register": true})
		return
	}

	user, err := h.userService.RegisterUser(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			c.HTML(http.StatusConflict, "auth.html", gin.H{"Error": "Username or email already exists", "Register": true})
			return
		}
		log.WithError(err).Error("Failed to register user")
		c.HTML(http.StatusInternalServerError, "auth.html", gin.H{"Error": "Something went wrong, please try again", "Register": true})
		return
	}

	h.signIn(c, user)
}

func (h *DashboardHandler) signIn(c *gin.Context, user *models.User) {
	token, err := h.jwtService.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		log.WithError(err).Error("Failed to generate token")
		c.HTML(http.StatusInternalServerError, "auth.html", gin.H{"Error": "Something went wrong, please try again"})
		return
	}
	setAuthCookie(c, token, int(h.jwtService.TTL().Seconds()), h.secureCookie)
	c.Redirect(http.StatusSeeOther, "/dashboard")
}

// SignOutHandler はトークンを失効させ、クッキーを消してサインイン画面へ戻します。
func (h *DashboardHandler) SignOutHandler(c *gin.Context) {
	if token, err := c.Cookie(AuthCookieName); err == nil && token != "" {
		if err := h.jwtService.Revoke(token); err != nil {
			log.WithError(err).Error("Failed to revoke token")
		}
	}
	clearAuthCookie(c)
	c.Redirect(http.StatusSeeOther, "/auth")
}

// DashboardPageHandler はダッシュボードを表示します。
func (h *DashboardHandler) DashboardPageHandler(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	user, err := h.userService.GetUser(c.Request.Context(), actor.UserID)
	if err != nil {
		clearAuthCookie(c)
		c.Redirect(http.StatusFound, "/auth")
		return
	}
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"Username":     user.Username,
		"DeletePrompt": tasks.DeletePrompt,
	})
}

// WebSocketHandler は接続ごとに一覧ストアとモーダルを持ち、
// 一覧が変わるたびに view を送ります。
func (h *DashboardHandler) WebSocketHandler(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade dashboard connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session := backend.NewSession(h.userService, h.taskService, h.hub, actor)
	if token, err := c.Cookie(AuthCookieName); err == nil {
		session.OnSignOut(func(context.Context) error { return h.jwtService.Revoke(token) })
	}
	dc := &dashboardConn{conn: conn, session: session, store: tasks.NewStore(session)}
	dc.dialog = tasks.NewDialog(session, func() { _ = dc.store.Load(ctx) })
	dc.store.OnChange(func(v tasks.View) {
		dc.send(ServerMessage{Type: MsgView, View: &v})
	})
	defer dc.store.Unmount()

	if err := dc.store.Mount(ctx); errors.Is(err, backend.ErrAuthRequired) {
		dc.send(ServerMessage{Type: MsgAuthReq})
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Dashboard connection closed unexpectedly")
			}
			return
		}

		var msg ClientMessage
		if err := binding.JSON.BindBody(data, &msg); err != nil {
			dc.sendError("invalid message")
			continue
		}
		if done := dc.handle(ctx, msg); done {
			return
		}
	}
}

type dashboardConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	session *backend.Session
	store   *tasks.Store
	dialog  *tasks.Dialog
}

// send は通知ゴルーチンと受信ループの両方から呼ばれる
func (d *dashboardConn) send(msg ServerMessage) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := d.conn.WriteJSON(msg); err != nil {
		log.WithError(err).Debug("Failed to write dashboard message")
	}
}

func (d *dashboardConn) sendError(message string) {
	d.send(ServerMessage{Type: MsgError, Error: message})
}

func (d *dashboardConn) sendForm() {
	state := &FormState{}
	if form := d.dialog.Form(); form != nil && d.dialog.IsOpen() {
		state.Open = true
		state.Mode = form.Mode()
		if t := form.Task(); t != nil {
			state.TaskID = t.ID
		}
		state.Fields = form.Fields()
		state.CanSubmit = form.CanSubmit()
		state.Submitting = form.Submitting()
		state.Error = form.Error()
	}
	d.send(ServerMessage{Type: MsgForm, Form: state})
}

// handle は1件のメッセージを処理します。接続を閉じるべきときに true を返します。
func (d *dashboardConn) handle(ctx context.Context, msg ClientMessage) bool {
	switch msg.Type {
	case MsgReload:
		if errors.Is(d.store.Load(ctx), backend.ErrAuthRequired) {
			d.send(ServerMessage{Type: MsgAuthReq})
			return true
		}
	case MsgFilter:
		var f tasks.Filter
		if msg.Filter != nil {
			f = *msg.Filter
		}
		d.store.SetFilter(f)
	case MsgToggle, MsgEdit, MsgDelete:
		actions, ok := d.rowActions(ctx, msg)
		if !ok {
			return false
		}
		switch msg.Type {
		case MsgToggle:
			if err := actions.Toggle(ctx); err != nil {
				d.sendError(err.Error())
			}
		case MsgEdit:
			actions.Edit()
		default:
			actions.Delete()
		}
	case MsgNew:
		d.dialog.NewTaskTrigger().RequestOpen()
		d.sendForm()
	case MsgCancel:
		d.dialog.Cancel()
		d.sendForm()
	case MsgSave:
		form := d.dialog.Form()
		if form == nil {
			d.sendError("no form is open")
			return false
		}
		if msg.Fields != nil {
			form.SetFields(*msg.Fields)
		}
		if err := form.Submit(ctx); errors.Is(err, backend.ErrAuthRequired) {
			d.send(ServerMessage{Type: MsgAuthReq})
			return true
		}
		d.sendForm()
	case MsgSignOut:
		if err := d.session.SignOut(ctx); err != nil && !errors.Is(err, backend.ErrAuthRequired) {
			log.WithError(err).Error("Failed to sign out")
			d.sendError(err.Error())
			return false
		}
		d.send(ServerMessage{Type: MsgSignedOut})
		return true
	default:
		d.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
	return false
}

func (d *dashboardConn) rowActions(ctx context.Context, msg ClientMessage) (*tasks.RowActions, bool) {
	task, ok := d.store.Find(msg.ID)
	if !ok {
		d.sendError("task not found")
		return nil, false
	}
	onEdit := func(t *models.Task) {
		d.dialog.Open(t)
		d.sendForm()
	}
	// 確認ダイアログはブラウザ側で出し、その結果を confirmed で受け取る
	onDelete := func(id string) {
		confirm := tasks.ConfirmFunc(func(context.Context, string) bool { return msg.Confirmed })
		if err := d.store.Delete(ctx, id, confirm); err != nil {
			d.sendError(err.Error())
		}
	}
	return tasks.NewRowActions(d.session, task, onEdit, onDelete), true
}
