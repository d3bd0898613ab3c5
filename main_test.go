package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"video2pdf/internal/config"
)

func TestSetupLogging(t *testing.T) {
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	tests := []struct {
		name    string
		tui     bool
		logFile bool
	}{
		{"batch to stderr", false, false},
		{"tui without file", true, false},
		{"tui with file", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.logFile {
				cfg.LogFile = filepath.Join(t.TempDir(), "video2pdf.log")
			}
			closer, err := setupLogging(cfg, tt.tui)
			if err != nil {
				t.Fatalf("setupLogging: %v", err)
			}
			if _, ok := closer.(nopCloser); ok == tt.logFile {
				t.Errorf("closer = %T", closer)
			}
			log.Info("hello from the test")
			if err := closer.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
			log.SetOutput(os.Stderr)

			if !tt.logFile {
				return
			}
			data, err := os.ReadFile(cfg.LogFile)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), "hello from the test") {
				t.Errorf("log file = %q", data)
			}
		})
	}
}
