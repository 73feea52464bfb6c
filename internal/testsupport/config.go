package testsupport

import (
	"path/filepath"
	"testing"

	"nfewatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test and
// millisecond timings so retry and watch loops finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "source")
	cfgVal.Paths.EntityBaseDir = filepath.Join(base, "entities")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.BaseURL = "http://127.0.0.1:1"
	cfgVal.Store.RequestTimeout = 2
	cfgVal.Monitor.RestartDelayMS = 10
	cfgVal.Monitor.ShutdownTimeoutMS = 500
	cfgVal.Workflow.RetryDelayMS = 5
	cfgVal.Workflow.ScanIntervalMS = 10
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithStoreURL points the config at a (fake) record store.
func WithStoreURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.BaseURL = url
	}
}

// WithRetry overrides the executor retry ceiling and backoff.
func WithRetry(attempts, delayMS int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.RetryAttempts = attempts
		b.cfg.Workflow.RetryDelayMS = delayMS
	}
}

// WithProcessingTimeout overrides how long watch entries may wait.
func WithProcessingTimeout(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.ProcessingTimeoutMS = ms
	}
}

// WithNtfyTopic enables notifications against the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SourceDir)
}

// WithAPIToken requires a bearer token on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}
