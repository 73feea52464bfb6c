package config

const (
	defaultConfigPath          = "~/.config/nfewatch/config.toml"
	defaultSourceDir           = "~/nfe/xml"
	defaultEntityBaseDir       = "~/nfe/cnpj"
	defaultProcessedSubdir     = "processed"
	defaultStateDir            = "~/.local/share/nfewatch"
	defaultLogDir              = "~/.local/share/nfewatch/logs"
	defaultAPIBind             = "127.0.0.1:7490"
	defaultStoreBaseURL        = "http://127.0.0.1:3000"
	defaultStoreRequestTimeout = 15
	defaultFetchLimit          = 10
	defaultCheckIntervalMS     = 60000
	defaultRestartDelayMS      = 2000
	defaultShutdownTimeoutMS   = 30000
	defaultRetryAttempts       = 3
	defaultRetryDelayMS        = 2000
	defaultScanIntervalMS      = 30000
	defaultProcessingTimeoutMS = 600000
	defaultJournalRetention    = 90
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 60

	// MinCheckIntervalMS and MaxCheckIntervalMS bound operator-supplied
	// polling intervals (10 seconds to 1 hour).
	MinCheckIntervalMS = 10000
	MaxCheckIntervalMS = 3600000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir:       defaultSourceDir,
			EntityBaseDir:   defaultEntityBaseDir,
			ProcessedSubdir: defaultProcessedSubdir,
			LogDir:          defaultLogDir,
			StateDir:        defaultStateDir,
			APIBind:         defaultAPIBind,
		},
		Store: Store{
			BaseURL:        defaultStoreBaseURL,
			RequestTimeout: defaultStoreRequestTimeout,
			FetchLimit:     defaultFetchLimit,
		},
		Monitor: Monitor{
			CheckIntervalMS:   defaultCheckIntervalMS,
			RestartDelayMS:    defaultRestartDelayMS,
			ShutdownTimeoutMS: defaultShutdownTimeoutMS,
		},
		Workflow: Workflow{
			RetryAttempts:       defaultRetryAttempts,
			RetryDelayMS:        defaultRetryDelayMS,
			ScanIntervalMS:      defaultScanIntervalMS,
			ProcessingTimeoutMS: defaultProcessingTimeoutMS,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetention,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNotifyTimeout,
			RetriesExhausted: true,
			Timeouts:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
