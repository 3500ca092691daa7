// Package handlers はHTTPとWebSocketのハンドラーを提供します。
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/services"
)

// 認証ミドルウェアが gin.Context に設定するキー
const (
	CtxUserID    = "user_id"
	CtxUserEmail = "user_email"
	CtxUserRole  = "user_role"
)

// AuthCookieName はHTMLページ用のJWTを保存するクッキー名です。
const AuthCookieName = "auth_token"

// actorFromContext はミドルウェアが設定したユーザー情報を取り出します。
// 見つからない場合はレスポンスを書き込んで false を返します。
func actorFromContext(c *gin.Context) (services.Actor, bool) {
	userIDVal, exists := c.Get(CtxUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context"})
		return services.Actor{}, false
	}
	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID type in context"})
		return services.Actor{}, false
	}
	role, _ := c.Get(CtxUserRole)
	roleStr, _ := role.(string)
	return services.Actor{UserID: userID, Role: roleStr}, true
}

// writeTaskError はサービスのエラーをHTTPステータスに対応付けます。
func writeTaskError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	case errors.Is(err, models.ErrTaskForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, models.ErrTitleRequired),
		errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, models.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
