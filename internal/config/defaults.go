package config

const (
	defaultOutputRoot          = "~/cases"
	defaultLogDir              = "~/.local/share/caseport/logs"
	defaultConcurrentDownloads = 5
	defaultRetries             = 3
	defaultRetryBaseDelayMS    = 500
	defaultRetryMaxDelayMS     = 8000
	defaultConnectTimeout      = 10
	defaultRequestTimeout      = 30
	defaultHTTPHandling        = HTTPRedirectToHTTPS
	defaultPlayerVersion       = "master"
	defaultPlayerLanguage      = "en"
	defaultOutputPolicy        = PolicyBestEffort
	defaultSequenceMode        = SequenceNone
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputRoot: defaultOutputRoot,
			LogDir:     defaultLogDir,
		},
		Download: Download{
			ConcurrentDownloads: defaultConcurrentDownloads,
			Retries:             defaultRetries,
			RetryBaseDelayMS:    defaultRetryBaseDelayMS,
			RetryMaxDelayMS:     defaultRetryMaxDelayMS,
			RetryJitter:         true,
			ConnectTimeout:      defaultConnectTimeout,
			RequestTimeout:      defaultRequestTimeout,
			HTTPHandling:        defaultHTTPHandling,
		},
		Player: Player{
			Version:  defaultPlayerVersion,
			Language: defaultPlayerLanguage,
		},
		Output: Output{
			Policy: defaultOutputPolicy,
		},
		Watermark: Watermark{
			Enabled: true,
		},
		Sequence: Sequence{
			Mode: defaultSequenceMode,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
