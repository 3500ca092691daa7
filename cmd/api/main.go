package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/config"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/database"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/feed"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/logger"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/repositories"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/routes"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/services"
	"github.com/Buildeployship/Advanced-Task-Manager/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if _, err := logger.Init(cfg.Log); err != nil {
		log.WithError(err).Fatal("Failed to initialize logger")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	providers, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.App.Env)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to shutdown telemetry providers")
		}
	}()

	// リポジトリ。DB_HOST が無ければインメモリで動かす
	var (
		db       *sql.DB
		taskRepo repositories.TaskRepository
		userRepo repositories.UserRepository
	)
	if cfg.Database.Enabled() {
		db, err = database.InitDB(cfg.Database)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()
		if err := database.Migrate(db); err != nil {
			log.WithError(err).Fatal("Failed to migrate database")
		}
		taskRepo = repositories.NewMySQLTaskRepo(db)
		userRepo = repositories.NewMySQLUserRepo(db)
	} else {
		log.Warn("DB_HOST not set, using in-memory storage")
		taskRepo = repositories.NewMemoryTaskRepo()
		userRepo = repositories.NewMemoryUserRepo()
	}

	// 変更フィード
	hub := feed.NewHub()
	defer hub.Close()

	metrics, err := telemetry.NewMetrics(otel.Meter("advanced-task-manager"), func() int64 { return int64(hub.Count()) })
	if err != nil {
		log.WithError(err).Fatal("Failed to create metrics")
	}
	hub.UseMetrics(metrics)

	if cfg.NATS.URL != "" {
		bridge, err := feed.ConnectBridge(cfg.NATS.URL, cfg.NATS.Subject, hub)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer func() {
			if err := bridge.Close(); err != nil {
				log.WithError(err).Error("Failed to close NATS bridge")
			}
		}()
	}

	// サービス
	jwtService := services.NewJWTService(cfg.JWT.Secret, cfg.JWT.TTL)
	userService := services.NewUserService(userRepo)
	taskService := services.NewTaskService(taskRepo, hub, metrics)

	router := routes.SetupRouter(routes.Deps{
		DB:           db,
		AllowOrigins: cfg.App.AllowOrigins,
		SecureCookie: cfg.IsProduction(),
		JWTService:   jwtService,
		UserService:  userService,
		TaskService:  taskService,
		Hub:          hub,
	})

	otelHandler := otelhttp.NewHandler(router, "http-server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/api/hello"
		}),
	)

	// WebSocketは長時間つながるので WriteTimeout は設定しない
	server := &http.Server{
		Addr:        ":" + cfg.App.Port,
		Handler:     otelHandler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}
