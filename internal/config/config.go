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

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	SourceDir       string `toml:"source_dir"`
	EntityBaseDir   string `toml:"entity_base_dir"`
	ProcessedSubdir string `toml:"processed_subdir"`
	LogDir          string `toml:"log_dir"`
	StateDir        string `toml:"state_dir"`
	APIBind         string `toml:"api_bind"`
	APIToken        string `toml:"api_token"`
}

// Store contains connection settings for the remote record store.
type Store struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
	FetchLimit     int    `toml:"fetch_limit"`
}

// Monitor contains the scheduler timing knobs. Values are milliseconds.
type Monitor struct {
	CheckIntervalMS   int `toml:"check_interval_ms"`
	RestartDelayMS    int `toml:"restart_delay_ms"`
	ShutdownTimeoutMS int `toml:"shutdown_timeout_ms"`
}

// Workflow contains retry and watch settings for the executor. Values are milliseconds.
type Workflow struct {
	RetryAttempts       int `toml:"retry_attempts"`
	RetryDelayMS        int `toml:"retry_delay_ms"`
	ScanIntervalMS      int `toml:"scan_interval_ms"`
	ProcessingTimeoutMS int `toml:"processing_timeout_ms"`
}

// Journal contains configuration for the local outcome journal.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
	RetriesExhausted bool   `toml:"retries_exhausted"`
	Timeouts         bool   `toml:"timeouts"`
	Completions      bool   `toml:"completions"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for nfewatch.
//
// Configuration sections by subsystem:
//   - Paths: artifact directories, state/log directories and API bind address
//   - Store: record store endpoint and credentials
//   - Monitor: scheduler polling interval and lifecycle timings
//   - Workflow: executor retries and processed-file watch settings
//   - Journal: local SQLite outcome history
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Monitor       Monitor       `toml:"monitor"`
	Workflow      Workflow      `toml:"workflow"`
	Journal       Journal       `toml:"journal"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: unknown keys:\n%s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("nfewatch.toml")
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
// The artifact directories are created on a best-effort basis so the daemon
// can run while a network share is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.SourceDir, c.Paths.EntityBaseDir} {
		_ = os.MkdirAll(dir, 0o755)
	}
	return nil
}

// JournalPath returns the SQLite journal location inside the state directory.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// SocketPath returns the IPC socket location inside the state directory.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "nfewatch.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "nfewatch.lock")
}

// CheckInterval returns the scheduler polling interval.
func (c *Config) CheckInterval() time.Duration { return millis(c.Monitor.CheckIntervalMS) }

// RestartDelay returns the pause between stop and start on restart.
func (c *Config) RestartDelay() time.Duration { return millis(c.Monitor.RestartDelayMS) }

// ShutdownTimeout bounds how long shutdown waits for running tasks.
func (c *Config) ShutdownTimeout() time.Duration { return millis(c.Monitor.ShutdownTimeoutMS) }

// RetryDelay returns the fixed backoff between executor attempts.
func (c *Config) RetryDelay() time.Duration { return millis(c.Workflow.RetryDelayMS) }

// ScanInterval returns the processed-file watch period.
func (c *Config) ScanInterval() time.Duration { return millis(c.Workflow.ScanIntervalMS) }

// ProcessingTimeout returns how long a watch entry may wait for its artifact.
func (c *Config) ProcessingTimeout() time.Duration { return millis(c.Workflow.ProcessingTimeoutMS) }

// StoreTimeout returns the per-request timeout for record store calls.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.RequestTimeout) * time.Second
}

func millis(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
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

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
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
