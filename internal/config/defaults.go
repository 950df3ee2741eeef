package config

const (
	defaultLibraryDir         = "~/comics"
	defaultDataDir            = "~/.local/share/folio"
	defaultLogDir             = "~/.local/share/folio/logs"
	defaultImportDir          = "~/comics/import"
	defaultExportDir          = "~/comics/export"
	defaultAPIBind            = "127.0.0.1:7511"
	defaultWorkerCount        = 4
	defaultBatchSize          = 16
	defaultMaxBacklog         = 64
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultLeaseDuration      = 300
	defaultHeartbeatInterval  = 30
	defaultStatusWaitTimeout  = 30
	defaultArchiveTarget      = "cbz"
	defaultHashAlgorithm      = "md5"
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

var defaultImportExtensions = []string{".cbz", ".cbr", ".cb7", ".zip", ".rar", ".7z"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			ImportDir:  defaultImportDir,
			ExportDir:  defaultExportDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			WorkerCount:        defaultWorkerCount,
			BatchSize:          defaultBatchSize,
			MaxBacklog:         defaultMaxBacklog,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			LeaseDuration:      defaultLeaseDuration,
			HeartbeatInterval:  defaultHeartbeatInterval,
			StatusWaitTimeout:  defaultStatusWaitTimeout,
		},
		Import: Import{
			Extensions: append([]string(nil), defaultImportExtensions...),
		},
		Archive: Archive{
			DefaultTarget: defaultArchiveTarget,
		},
		Hashing: Hashing{
			Algorithm: defaultHashAlgorithm,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			QueueCompleted: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
