package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.SourceDir == "" {
		return errors.New("paths.source_dir must be set")
	}
	if c.Paths.EntityBaseDir == "" {
		return errors.New("paths.entity_base_dir must be set")
	}
	if strings.Contains(c.Paths.ProcessedSubdir, "..") {
		return errors.New("paths.processed_subdir must stay inside the entity folder")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("store.base_url is required. Set NFEWATCH_STORE_URL or edit %s (create with 'nfewatch config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Store.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("store.base_url must be an http(s) URL, got %q", c.Store.BaseURL)
	}
	if c.Store.FetchLimit > 1000 {
		return errors.New("store.fetch_limit must not exceed 1000")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if err := ValidateCheckInterval(c.Monitor.CheckIntervalMS); err != nil {
		return fmt.Errorf("monitor.check_interval_ms: %w", err)
	}
	if c.Monitor.RestartDelayMS < 0 {
		return errors.New("monitor.restart_delay_ms must be zero or positive")
	}
	if c.Monitor.ShutdownTimeoutMS <= 0 {
		return errors.New("monitor.shutdown_timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.RetryAttempts < 1 {
		return errors.New("workflow.retry_attempts must be at least 1")
	}
	if c.Workflow.RetryDelayMS < 0 {
		return errors.New("workflow.retry_delay_ms must be zero or positive")
	}
	if c.Workflow.ScanIntervalMS <= 0 {
		return errors.New("workflow.scan_interval_ms must be positive")
	}
	if c.Workflow.ProcessingTimeoutMS <= 0 {
		return errors.New("workflow.processing_timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

// ValidateCheckInterval enforces the accepted polling interval range.
func ValidateCheckInterval(ms int) error {
	if ms < MinCheckIntervalMS || ms > MaxCheckIntervalMS {
		return fmt.Errorf("interval must be between %d and %d milliseconds, got %d", MinCheckIntervalMS, MaxCheckIntervalMS, ms)
	}
	return nil
}
