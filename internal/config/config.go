// Package config は環境変数からアプリケーション設定を読み込みます。
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定です。
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	NATS      NATSConfig
}

type AppConfig struct {
	Port         string
	Env          string
	AllowOrigins []string
}

// DatabaseConfig はMySQLの接続情報です。Hostが空の場合はインメモリストアを使います。
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Enabled はMySQLを使うかどうかを返します。
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     string // stdout, file, both
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 日
}

type TelemetryConfig struct {
	OTLPEndpoint string // 空ならテレメトリ無効
	ServiceName  string
}

type NATSConfig struct {
	URL     string // 空ならブリッジ無効
	Subject string
}

// ErrJWTSecretMissing は JWT_SECRET が未設定の場合のエラーです。
var ErrJWTSecretMissing = errors.New("JWT_SECRET environment variable not set")

// Load は .env (存在すれば) と環境変数から設定を構築します。
func Load() (*Config, error) {
	// .env が無くても環境変数で動かせるのでエラーは無視する
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Port:         getEnv("APP_PORT", "8080"),
			Env:          getEnv("APP_ENV", "development"),
			AllowOrigins: splitList(getEnv("ALLOW_ORIGINS", "http://localhost:3000")),
		},
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASS"),
			Name:     getEnv("DB_NAME", "taskmanager"),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			TTL:    getDuration("JWT_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE", "logs/app.log"),
			MaxSize:    getInt("LOG_MAX_SIZE", 100),
			MaxBackups: getInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     getInt("LOG_MAX_AGE", 30),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "advanced-task-manager"),
		},
		NATS: NATSConfig{
			URL:     os.Getenv("NATS_URL"),
			Subject: getEnv("NATS_SUBJECT", "taskmanager.changes"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, ErrJWTSecretMissing
	}
	return cfg, nil
}

// IsProduction は本番環境かどうかを返します。
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
