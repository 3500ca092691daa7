// Package routesはroutingを行います。
package routes

import (
	"database/sql"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/feed"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/handlers"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/services"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/web"
)

// Deps はルーターが使うサービス群です。DB が nil ならインメモリで動いています。
type Deps struct {
	DB           *sql.DB
	AllowOrigins []string
	SecureCookie bool

	JWTService  *services.JWTService
	UserService *services.UserService
	TaskService *services.TaskService
	Hub         *feed.Hub
}

// SetupRouter はGinルーターをセットアップし、すべてのエンドポイントを登録します。
func SetupRouter(d Deps) *gin.Engine {
	handlers.RegisterValidators()

	r := gin.New()
	r.Use(RequestLogger(), gin.Recovery())

	// CORS対策
	config := cors.DefaultConfig()
	config.AllowOrigins = d.AllowOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	config.AllowCredentials = true
	r.Use(cors.New(config))

	tmpl, err := web.Templates()
	if err != nil {
		log.WithError(err).Fatal("Failed to parse templates")
	}
	r.SetHTMLTemplate(tmpl)

	// ハンドラー
	userHandler := handlers.NewUserHandler(d.UserService, d.JWTService)
	taskHandler := handlers.NewTaskHandler(d.TaskService)
	feedHandler := handlers.NewFeedHandler(d.Hub)
	dashboardHandler := handlers.NewDashboardHandler(d.UserService, d.TaskService, d.JWTService, d.Hub, d.SecureCookie)

	// ルーティング
	r.GET("/api/hello", HelloHandler)
	r.GET("/api/dbcheck", func(c *gin.Context) {
		if d.DB == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Using in-memory storage"})
			return
		}
		if err := d.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Database connection failed", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Database connection is healthy"})
	})
	r.POST("/api/register", userHandler.RegisterHandler)
	r.POST("/api/login", userHandler.LoginHandler)
	r.POST("/api/logout", userHandler.LogoutHandler)

	authorized := r.Group("/api")
	authorized.Use(AuthMiddleware(d.JWTService))
	{
		authorized.GET("/me", userHandler.MeHandler)
		authorized.GET("/tasks", taskHandler.GetTasksHandler)
		authorized.GET("/tasks/:id", taskHandler.GetTaskByIDHandler)
		authorized.POST("/tasks", taskHandler.CreateTaskHandler)
		authorized.PATCH("/tasks/:id", taskHandler.UpdateTaskHandler)
		authorized.PUT("/tasks/:id", taskHandler.ReplaceTaskHandler)
		authorized.DELETE("/tasks/:id", taskHandler.DeleteTaskHandler)
		authorized.GET("/feed", feedHandler.StreamHandler)
	}

	// ブラウザ向けページ
	r.GET("/", dashboardHandler.RootHandler)
	r.GET("/auth", dashboardHandler.AuthPageHandler)
	r.POST("/auth/login", dashboardHandler.LoginFormHandler)
	r.POST("/auth/register", dashboardHandler.RegisterFormHandler)
	r.POST("/auth/signout", dashboardHandler.SignOutHandler)
	r.GET("/dashboard", CookieAuthMiddleware(d.JWTService, "/auth"), dashboardHandler.DashboardPageHandler)
	r.GET("/dashboard/ws", CookieAuthMiddleware(d.JWTService, ""), dashboardHandler.WebSocketHandler)

	return r
}

func HelloHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Hello from the task manager!"})
}
