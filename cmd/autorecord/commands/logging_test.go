package commands

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/autorecord/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		configLevel string
		override    string
		want        slog.Level
	}{
		{"", "", slog.LevelInfo},
		{"debug", "", slog.LevelDebug},
		{"info", "warn", slog.LevelWarn},
		{"info", "WARNING", slog.LevelWarn},
		{"error", "", slog.LevelError},
	}
	for _, tc := range cases {
		got, err := parseLogLevel(tc.configLevel, tc.override)
		if err != nil {
			t.Fatalf("parseLogLevel(%q, %q) error: %v", tc.configLevel, tc.override, err)
		}
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q, %q) = %v, want %v", tc.configLevel, tc.override, got, tc.want)
		}
	}

	if _, err := parseLogLevel("loud", ""); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestConfigureLogger_WritesToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		loggerMu.Lock()
		if activeLogFile != nil {
			_ = activeLogFile.Close()
			activeLogFile = nil
		}
		loggerMu.Unlock()
	})

	cfg := config.DefaultConfig()
	cfg.Log.File = filepath.Join(t.TempDir(), "logs", "autorecord.log")
	if err := configureLogger(cfg, "debug"); err != nil {
		t.Fatalf("configureLogger: %v", err)
	}
	slog.Debug("recorder check", "stream", "cam1")

	data, err := os.ReadFile(cfg.Log.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "stream=cam1") || !strings.Contains(string(data), "service=autorecord") {
		t.Fatalf("expected debug line in log file, got %s", data)
	}
}

func TestConfigureLogger_JSONFormat(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		loggerMu.Lock()
		if activeLogFile != nil {
			_ = activeLogFile.Close()
			activeLogFile = nil
		}
		loggerMu.Unlock()
	})

	cfg := config.DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.File = filepath.Join(t.TempDir(), "autorecord.jsonl")
	if err := configureLogger(cfg, ""); err != nil {
		t.Fatalf("configureLogger: %v", err)
	}
	slog.Info("recorder started", "stream", "cam1")

	data, err := os.ReadFile(cfg.Log.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(data, &line); err != nil {
		t.Fatalf("expected one json log line, got %s: %v", data, err)
	}
	if line["stream"] != "cam1" || line["service"] != "autorecord" {
		t.Fatalf("unexpected json log line %v", line)
	}
}

func TestConfigureLogger_RejectsUnknownFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Format = "xml"
	if err := configureLogger(cfg, ""); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}
