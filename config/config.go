// Package config loads and saves the daemon's on-disk configuration:
// a closed, typed record — never an open map — per spec.md §9's
// explicit design note, serialized as human-editable YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liketrack/likesyncd/store"
)

// defaultIntervalMinutes matches config.py's SyncConfig.interval_minutes
// default. An invalid interval never fails the whole config load; Load
// falls back to this value and logs a warning instead.
const defaultIntervalMinutes = 30

// LogLevel is one of the four recognised daemon.log_level values.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// secret renders as "***" in both YAML and JSON so a secret value is
// never echoed back in a config dump, a log line, or an RPC response.
type secret string

func (s secret) MarshalYAML() (interface{}, error) {
	if s == "" {
		return "", nil
	}
	return "***", nil
}

func (s secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"***"`), nil
}

func (s secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// DaemonConfig is the daemon.* section: dashboard_port, log_level.
type DaemonConfig struct {
	DashboardPort int      `yaml:"dashboard_port"`
	LogLevel      LogLevel `yaml:"log_level"`
}

// SyncConfig is the sync.* section: interval_minutes, mode,
// propagate_deletions.
type SyncConfig struct {
	IntervalMinutes    int           `yaml:"interval_minutes"`
	Mode               store.RunMode `yaml:"mode"`
	PropagateDeletions bool          `yaml:"propagate_deletions"`
}

// ServiceAConfig is the service_a.* credential block: OAuth2-style
// client id/secret/redirect uri plus a long-lived refresh token.
type ServiceAConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret secret `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	RefreshToken secret `yaml:"refresh_token"`
}

// ServiceBConfig is the service_b.* credential block: a single opaque
// token for the wrapped SDK session.
type ServiceBConfig struct {
	Token secret `yaml:"token"`
}

// Config is the closed set of recognised keys spec.md §9 names. Any
// YAML key outside this shape is silently ignored by yaml.v3's default
// unmarshal behaviour rather than rejected — acceptable here since the
// daemon never round-trips a user-supplied superset back to disk.
type Config struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	Sync     SyncConfig     `yaml:"sync"`
	ServiceA ServiceAConfig `yaml:"service_a"`
	ServiceB ServiceBConfig `yaml:"service_b"`
}

// filePerm is the 0600 permission spec.md §6 requires on save.
const filePerm = 0o600

// Default returns a Config with every field at its documented default:
// dashboard port 8090, log level info, a 30 minute interval, full mode
// off by default (incremental), deletion propagation off.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{DashboardPort: 8090, LogLevel: LogInfo},
		Sync:   SyncConfig{IntervalMinutes: defaultIntervalMinutes, Mode: store.ModeIncremental, PropagateDeletions: false},
	}
}

// Load reads and parses path, warning (via the returned warning string)
// rather than failing if the file's permission bits are more
// permissive than 0600.
func Load(path string) (*Config, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("stat config: %w", err)
	}

	warning := ""
	if info.Mode().Perm()&^filePerm != 0 {
		warning = fmt.Sprintf("config file %s has permissions %04o, expected %04o or stricter", path, info.Mode().Perm(), filePerm)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, warning, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, warning, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Sync.IntervalMinutes < 1 {
		slog.Warn("invalid sync.interval_minutes, falling back to default",
			"value", cfg.Sync.IntervalMinutes, "default", defaultIntervalMinutes)
		cfg.Sync.IntervalMinutes = defaultIntervalMinutes
	}
	if err := cfg.Validate(); err != nil {
		return nil, warning, err
	}
	return &cfg, warning, nil
}

// Save marshals cfg to path with 0600 permissions, truncating any
// pre-existing file. Secret fields marshal as "***" by design (see
// secret.MarshalYAML), so Save is never the right way to persist a
// freshly entered credential — callers write raw credential values
// through a separate unmasked path (the credential wizard), not Save.
func Save(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, raw, filePerm); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, filePerm)
}

// Validate enforces spec.md §9's closed-key constraints: log_level in
// the four-value set, mode in the two-value set. interval_minutes is
// deliberately not checked here — Load already normalizes an invalid
// value to defaultIntervalMinutes with a warning rather than failing.
func (c Config) Validate() error {
	switch c.Daemon.LogLevel {
	case LogDebug, LogInfo, LogWarning, LogError:
	default:
		return fmt.Errorf("daemon.log_level: invalid value %q", c.Daemon.LogLevel)
	}
	switch c.Sync.Mode {
	case store.ModeFull, store.ModeIncremental:
	default:
		return fmt.Errorf("sync.mode: invalid value %q", c.Sync.Mode)
	}
	return nil
}
