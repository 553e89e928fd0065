package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// rotationMaxSizeMB and rotationMaxBackups are spec.md §6's log
// rotation policy: 10 MiB per file, 5 backups kept.
const (
	rotationMaxSizeMB  = 10
	rotationMaxBackups = 5
)

// Sinks holds the two named log streams spec.md §6 requires: a
// human-readable daemon stream (ISO8601Handler, every daemon event,
// also echoed to stdout) and a structured-JSON stream scoped to
// sync-engine and scheduler events only.
type Sinks struct {
	Daemon *slog.Logger
	Sync   *slog.Logger

	daemonFile *lumberjack.Logger
	syncFile   *lumberjack.Logger
}

// NewSinks opens both rotating log files under stateDir — daemon.log
// and sync.log — creating them if absent. Both rotate at
// rotationMaxSizeMB with rotationMaxBackups backups via lumberjack,
// the teacher's own logger having no rotation primitive of its own.
func NewSinks(stateDir string, level slog.Level) *Sinks {
	daemonFile := &lumberjack.Logger{
		Filename:   filepath.Join(stateDir, "daemon.log"),
		MaxSize:    rotationMaxSizeMB,
		MaxBackups: rotationMaxBackups,
	}
	syncFile := &lumberjack.Logger{
		Filename:   filepath.Join(stateDir, "sync.log"),
		MaxSize:    rotationMaxSizeMB,
		MaxBackups: rotationMaxBackups,
	}

	daemonWriter := io.MultiWriter(os.Stdout, daemonFile)
	daemonLogger := NewLoggerWithLevel("daemon", daemonWriter, level)
	syncLogger := slog.New(slog.NewJSONHandler(syncFile, &slog.HandlerOptions{Level: level}))

	return &Sinks{Daemon: daemonLogger, Sync: syncLogger, daemonFile: daemonFile, syncFile: syncFile}
}

// Close flushes and closes both rotating files.
func (s *Sinks) Close() error {
	if err := s.daemonFile.Close(); err != nil {
		return err
	}
	return s.syncFile.Close()
}

// ParseLevel maps a config.LogLevel-shaped string ("debug", "info",
// "warning"/"warn", "error") to an slog.Level, defaulting to Info for
// anything unrecognised.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
