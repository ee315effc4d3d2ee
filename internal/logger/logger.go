// Package logger builds the logrus logger used by the command line and the API.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rushi053/stackradar/internal/config"
)

// timestampFormat has millisecond precision and no time zone
const timestampFormat = "2006-01-02 15:04:05.000"

// New creates a logger from the log configuration
func New(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.Warnf("Invalid log level '%s', using 'info' as default", cfg.Level)
	}
	logger.SetLevel(level)

	if err := setFormatter(logger, cfg); err != nil {
		return nil, fmt.Errorf("failed to set log formatter: %w", err)
	}
	if err := setOutput(logger, cfg); err != nil {
		return nil, fmt.Errorf("failed to set log output: %w", err)
	}
	return logger, nil
}

// Discard returns a logger that writes nothing, for tests and library use
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setFormatter(logger *logrus.Logger, cfg config.LogConfig) error {
	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	return nil
}

func setOutput(logger *logrus.Logger, cfg config.LogConfig) error {
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr", "":
		logger.SetOutput(os.Stderr)
	case "file":
		if cfg.FilePath == "" {
			return fmt.Errorf("file path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	default:
		return fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
	return nil
}
