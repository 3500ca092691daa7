// Package testutil はHTTPレベルのテストで使う共通のセットアップを提供します。
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/feed"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/repositories"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/routes"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/services"
)

// テスト用の固定ユーザー
const (
	NormalEmail    = "normal_user@example.com"
	NormalPassword = "password123"
	AdminEmail     = "admin@example.com"
	AdminPassword  = "adminpass"
)

// TestSecret はテスト用のJWT署名鍵です。
const TestSecret = "test-secret"

// Env はインメモリのストアで組み立てたルーター一式です。
type Env struct {
	Router     *gin.Engine
	Users      *repositories.MemoryUserRepo
	Tasks      *repositories.MemoryTaskRepo
	Hub        *feed.Hub
	JWT        *services.JWTService
	NormalUser *models.User
	AdminUser  *models.User
}

// SetupTestRouter はインメモリのリポジトリでルーターを組み立て、
// 一般ユーザーと管理者を1人ずつ登録します。
func SetupTestRouter(t *testing.T) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	userRepo := repositories.NewMemoryUserRepo()
	taskRepo := repositories.NewMemoryTaskRepo()
	hub := feed.NewHub()
	t.Cleanup(hub.Close)

	jwtService := services.NewJWTService(TestSecret, time.Hour)
	userService := services.NewUserService(userRepo)
	taskService := services.NewTaskService(taskRepo, hub, nil)

	env := &Env{
		Router: routes.SetupRouter(routes.Deps{
			AllowOrigins: []string{"http://localhost:3000"},
			JWTService:   jwtService,
			UserService:  userService,
			TaskService:  taskService,
			Hub:          hub,
		}),
		Users: userRepo,
		Tasks: taskRepo,
		Hub:   hub,
		JWT:   jwtService,
	}
	env.NormalUser = CreateTestUser(t, userRepo, "normal_user", NormalEmail, NormalPassword, models.RoleUser)
	env.AdminUser = CreateTestUser(t, userRepo, "admin_user", AdminEmail, AdminPassword, models.RoleAdmin)
	return env
}

// CreateTestUser はパスワードをハッシュ化してユーザーを保存します。
func CreateTestUser(t *testing.T, userRepo repositories.UserRepository, username, email, password, role string) *models.User {
	t.Helper()
	hashedPassword, err := repositories.HashPassword(password)
	require.NoError(t, err)

	createdUser, err := userRepo.Create(context.Background(), &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
	})
	require.NoError(t, err)
	require.NotEmpty(t, createdUser.ID)
	return createdUser
}

// CreateTestTask はAPI経由でタスクを作成します。
func CreateTestTask(t *testing.T, router *gin.Engine, token string, payload map[string]any) *models.Task {
	t.Helper()
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest(http.MethodPost, "/api/tasks", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, "タスク作成に失敗しました: %s", resp.Body.String())

	var created models.Task
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	return &created
}

// LoginAndGetToken は /api/login でトークンを取得します。
func LoginAndGetToken(t *testing.T, router *gin.Engine, email, password string) (string, error) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	req, _ := http.NewRequest(http.MethodPost, "/api/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d: %s", resp.Code, resp.Body.String())
	}

	var loginRes map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &loginRes); err != nil {
		return "", fmt.Errorf("failed to unmarshal login response: %w", err)
	}

	token, ok := loginRes["token"].(string)
	if !ok {
		return "", errors.New("token not found or not a string in login response")
	}
	return token, nil
}

// DoJSON はJSONボディ付きのリクエストを送り、レスポンスを返します。body が nil なら本文なしです。
func DoJSON(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
