package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSinks_DaemonAndSyncAreIndependentFiles(t *testing.T) {
	dir := t.TempDir()
	sinks := NewSinks(dir, slog.LevelInfo)
	defer sinks.Close()

	sinks.Daemon.Info("daemon started")
	sinks.Sync.Info("cycle completed", "mode", "full")

	daemonRaw, err := os.ReadFile(filepath.Join(dir, "daemon.log"))
	if err != nil {
		t.Fatalf("read daemon.log: %v", err)
	}
	if !strings.Contains(string(daemonRaw), "daemon started") {
		t.Fatalf("expected daemon.log to contain the daemon message, got %q", daemonRaw)
	}

	syncRaw, err := os.ReadFile(filepath.Join(dir, "sync.log"))
	if err != nil {
		t.Fatalf("read sync.log: %v", err)
	}
	var entry map[string]any
	firstLine := strings.SplitN(string(syncRaw), "\n", 2)[0]
	if err := json.Unmarshal([]byte(firstLine), &entry); err != nil {
		t.Fatalf("expected sync.log to be valid JSON lines, got %q: %v", firstLine, err)
	}
	if entry["msg"] != "cycle completed" || entry["mode"] != "full" {
		t.Fatalf("unexpected sync.log entry: %+v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
