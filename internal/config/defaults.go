package config

const (
	defaultDownloadBaseDir      = "~/.local/share/docbot/downloads"
	defaultLogDir               = "~/.local/share/docbot/logs"
	defaultDataDir              = "~/.local/share/docbot"
	defaultStateBackend         = "redis"
	defaultRedisAddr            = "127.0.0.1:6379"
	defaultStatePrefix          = "docbot:"
	defaultStateTTLSeconds      = 24 * 60 * 60
	defaultStateTimeoutSeconds  = 5
	defaultTaskWorkers          = 2
	defaultPollIntervalMillis   = 500
	defaultProbeCacheSeconds    = 10
	defaultHeartbeatSeconds     = 10
	defaultWorkerTimeoutSeconds = 45
	defaultAwaitBudgetSeconds   = 120
	defaultWaitSeconds          = 5
	defaultMaxStatusChecks      = 20
	defaultTaskTimeoutSeconds   = 600
	defaultMaxRetries           = 3
	defaultRetentionHours       = 72
	defaultGhostscript          = "gs"
	defaultLibreOffice          = "soffice"
	defaultScanner              = "docscan"
	defaultXvfbRun              = "xvfb-run"
	defaultToolTimeoutSeconds   = 300
	defaultOfficeTimeoutSeconds = 180
	defaultAutoLowBelowKB       = 1024
	defaultAutoMediumBelowKB    = 5 * 1024
	defaultAutoHighBelowKB      = 20 * 1024
	defaultTransportInstance    = "docbot"
	defaultTransportTimeout     = 30
	defaultServerBind           = "127.0.0.1:7390"
	defaultStaleTaskHours       = 48
	defaultNotifyTimeout        = 10
	defaultCleanupMinutes       = 60
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultTaskDBName           = "tasks.db"
)

var defaultMarkdownBackends = []string{"md-to-pdf", "md2pdf", "pandoc", "wkhtmltopdf"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadBaseDir: defaultDownloadBaseDir,
			LogDir:          defaultLogDir,
			DataDir:         defaultDataDir,
		},
		State: State{
			Backend:        defaultStateBackend,
			RedisAddr:      defaultRedisAddr,
			Prefix:         defaultStatePrefix,
			TTLSeconds:     defaultStateTTLSeconds,
			TimeoutSeconds: defaultStateTimeoutSeconds,
		},
		Tasks: Tasks{
			AsyncEnabled:         true,
			Workers:              defaultTaskWorkers,
			PollIntervalMillis:   defaultPollIntervalMillis,
			ProbeCacheSeconds:    defaultProbeCacheSeconds,
			HeartbeatSeconds:     defaultHeartbeatSeconds,
			WorkerTimeoutSeconds: defaultWorkerTimeoutSeconds,
			AwaitBudgetSeconds:   defaultAwaitBudgetSeconds,
			WaitSeconds:          defaultWaitSeconds,
			MaxStatusChecks:      defaultMaxStatusChecks,
			TaskTimeoutSeconds:   defaultTaskTimeoutSeconds,
			MaxRetries:           defaultMaxRetries,
			RetentionHours:       defaultRetentionHours,
		},
		Tools: Tools{
			Ghostscript:          defaultGhostscript,
			LibreOffice:          defaultLibreOffice,
			Scanner:              defaultScanner,
			XvfbRun:              defaultXvfbRun,
			MarkdownBackends:     append([]string(nil), defaultMarkdownBackends...),
			TimeoutSeconds:       defaultToolTimeoutSeconds,
			OfficeTimeoutSeconds: defaultOfficeTimeoutSeconds,
		},
		Compression: Compression{
			AutoLowBelowKB:    defaultAutoLowBelowKB,
			AutoMediumBelowKB: defaultAutoMediumBelowKB,
			AutoHighBelowKB:   defaultAutoHighBelowKB,
		},
		Transport: Transport{
			Instance:       defaultTransportInstance,
			RequestTimeout: defaultTransportTimeout,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
		Archive: Archive{
			StaleTaskHours:         defaultStaleTaskHours,
			CleanupIntervalMinutes: defaultCleanupMinutes,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
