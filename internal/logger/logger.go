// Package logger はlogrusの初期化を行います。
package logger

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/config"
)

// Init は設定に従ってグローバルロガーを初期化し、出力先を返します。
func Init(cfg config.LogConfig) (io.Writer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	var writers []io.Writer
	if cfg.Output == "stdout" || cfg.Output == "both" || cfg.Output == "" {
		writers = append(writers, os.Stdout)
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, err
		}
		// lumberjack でローテーション
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		})
	}

	if len(writers) == 0 {
		log.WithField("output", cfg.Output).Warn("Unknown log output, falling back to stdout")
		writers = append(writers, os.Stdout)
	}

	out := io.MultiWriter(writers...)
	log.SetOutput(out)
	return out, nil
}
