package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MEKXH/autorecord/internal/config"
	"github.com/MEKXH/autorecord/internal/version"
)

var (
	loggerMu      sync.Mutex
	activeLogFile *os.File
)

func configureLogger(cfg *config.Config, overrideLevel string) error {
	level, err := parseLogLevel(cfg.Log.Level, overrideLevel)
	if err != nil {
		return err
	}

	writer := io.Writer(os.Stderr)
	logFilePath := strings.TrimSpace(cfg.Log.File)

	loggerMu.Lock()
	defer loggerMu.Unlock()

	if activeLogFile != nil && (logFilePath == "" || activeLogFile.Name() != logFilePath) {
		_ = activeLogFile.Close()
		activeLogFile = nil
	}

	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		if activeLogFile == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			activeLogFile = f
		}
		writer = activeLogFile
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Format)) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "", "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Log.Format)
	}
	slog.SetDefault(slog.New(handler).With("service", "autorecord", "version", version.Version))
	return nil
}

func parseLogLevel(configLevel, override string) (slog.Level, error) {
	level := strings.TrimSpace(configLevel)
	if strings.TrimSpace(override) != "" {
		level = override
	}
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}
