package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix is the prefix for environment overrides (FOLIO_PATHS_LIBRARY_DIR, ...).
const EnvPrefix = "folio"

// Paths contains directory and bind address configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir" split_words:"true"`
	DataDir    string `toml:"data_dir" split_words:"true"`
	LogDir     string `toml:"log_dir" split_words:"true"`
	ImportDir  string `toml:"import_dir" split_words:"true"`
	ExportDir  string `toml:"export_dir" split_words:"true"`
	APIBind    string `toml:"api_bind" split_words:"true"`
}

// Workflow contains dispatcher and worker runtime tuning. Intervals are seconds.
type Workflow struct {
	WorkerCount        int `toml:"worker_count" split_words:"true"`
	BatchSize          int `toml:"batch_size" split_words:"true"`
	MaxBacklog         int `toml:"max_backlog" split_words:"true"`
	PollInterval       int `toml:"poll_interval" split_words:"true"`
	ErrorRetryInterval int `toml:"error_retry_interval" split_words:"true"`
	LeaseDuration      int `toml:"lease_duration" split_words:"true"`
	HeartbeatInterval  int `toml:"heartbeat_interval" split_words:"true"`
	StatusWaitTimeout  int `toml:"status_wait_timeout" split_words:"true"`
}

// Import contains defaults applied to newly added comics.
type Import struct {
	Watch              bool     `toml:"watch" split_words:"true"`
	Extensions         []string `toml:"extensions" split_words:"true"`
	DeleteBlockedPages bool     `toml:"delete_blocked_pages" split_words:"true"`
	IgnoreMetadata     bool     `toml:"ignore_metadata" split_words:"true"`
}

// Archive contains conversion and export defaults.
type Archive struct {
	DefaultTarget string `toml:"default_target" split_words:"true"`
	RenamePages   bool   `toml:"rename_pages" split_words:"true"`
}

// Hashing selects the content hash used for files and pages.
type Hashing struct {
	Algorithm string `toml:"algorithm" split_words:"true"`
}

// Notifications configures ntfy delivery. An empty topic disables it.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" split_words:"true"`
	RequestTimeout int    `toml:"request_timeout" split_words:"true"`
	QueueCompleted bool   `toml:"queue_completed" split_words:"true"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" split_words:"true"`
	Level  string `toml:"level" split_words:"true"`
}

// Config encapsulates all configuration values for folio.
//
// Configuration sections by subsystem:
//   - Paths: library, data, import/export directories and API bind address
//   - Workflow: worker pool size, batch sizing, polling and lease timing
//   - Import: watch folder and per-import flags
//   - Archive: conversion target and page renaming
//   - Hashing: content hash algorithm
//   - Notifications: ntfy topic for failures and drained queues
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Import        Import        `toml:"import"`
	Archive       Archive       `toml:"archive"`
	Hashing       Hashing       `toml:"hashing"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/folio/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file. The returned config has all path
// fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, "", false, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("folio.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.LibraryDir, c.Paths.ImportDir, c.Paths.ExportDir} {
		if strings.TrimSpace(dir) != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding the task queue and catalog.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "folio.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "foliod.lock")
}

// PollIntervalDuration returns the dispatcher idle interval.
func (w Workflow) PollIntervalDuration() time.Duration {
	return time.Duration(w.PollInterval) * time.Second
}

// ErrorRetryDuration returns the dispatcher backoff after a failed cycle.
func (w Workflow) ErrorRetryDuration() time.Duration {
	return time.Duration(w.ErrorRetryInterval) * time.Second
}

// LeaseDurationValue returns how long a claim stays valid without renewal.
func (w Workflow) LeaseDurationValue() time.Duration {
	return time.Duration(w.LeaseDuration) * time.Second
}

// HeartbeatDuration returns the lease renewal interval.
func (w Workflow) HeartbeatDuration() time.Duration {
	return time.Duration(w.HeartbeatInterval) * time.Second
}

// StatusWaitDuration returns the maximum long-poll wait for status requests.
func (w Workflow) StatusWaitDuration() time.Duration {
	return time.Duration(w.StatusWaitTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
