package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/MEKXH/autorecord/internal/config"
	"github.com/MEKXH/autorecord/internal/policy"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()

	return buf.String()
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// writeTestConfig points HOME at a temp dir and saves cfg as the default config.
func writeTestConfig(t *testing.T, mutate func(cfg *config.Config)) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	cfg := config.DefaultConfig()
	cfg.State.Dir = filepath.Join(tmpDir, "state")
	cfg.Applications = []config.ApplicationConfig{
		{
			Name: "live",
			Properties: policy.Properties{
				RecordType:  strPtr("allow"),
				StreamNames: strPtr("cam*|studio"),
			},
		},
		{
			Name:       "events",
			Properties: policy.Properties{RecordType: strPtr("transcoder")},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := config.Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return cfg
}
