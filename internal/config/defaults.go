package config

const (
	defaultDataDir = "~/.local/share/gavel"
	defaultLogDir  = "~/.local/share/gavel/logs"
	defaultAPIBind = "127.0.0.1:7519"

	defaultSourceIntervalMinutes = 360
	defaultSourceWindowDays      = 14
	defaultSourceTimeoutSeconds  = 60

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultMaxRetries              = 3
	defaultRetryBaseSeconds        = 2
	defaultRateLimitBaseSeconds    = 30
	defaultBreakerFailureThreshold = 3
	defaultBreakerCooldownMinutes  = 5

	defaultTitleWeight         = 0.6
	defaultDateWeight          = 0.3
	defaultCommitteeWeight     = 0.1
	defaultDateToleranceDays   = 1.0
	defaultAutoMergeThreshold  = 0.9
	defaultSimilarityThreshold = 0.8

	defaultMaxConcurrentPipelines = 2
	defaultStageTimeoutMinutes    = 120
	defaultMaxFailedUnits         = 0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Sources: map[string]Source{},
		Dedup: Dedup{
			TitleWeight:         defaultTitleWeight,
			DateWeight:          defaultDateWeight,
			CommitteeWeight:     defaultCommitteeWeight,
			DateToleranceDays:   defaultDateToleranceDays,
			AutoMergeThreshold:  defaultAutoMergeThreshold,
			SimilarityThreshold: defaultSimilarityThreshold,
		},
		Sync: Sync{
			MaxRetries:              defaultMaxRetries,
			RetryBaseSeconds:        defaultRetryBaseSeconds,
			RateLimitBaseSeconds:    defaultRateLimitBaseSeconds,
			BreakerFailureThreshold: defaultBreakerFailureThreshold,
			BreakerCooldownMinutes:  defaultBreakerCooldownMinutes,
		},
		Pipeline: Pipeline{
			MaxConcurrent:       defaultMaxConcurrentPipelines,
			StageTimeoutMinutes: defaultStageTimeoutMinutes,
			MaxFailedUnits:      defaultMaxFailedUnits,
			StageWeights: map[string]int{
				"capture":    10,
				"convert":    10,
				"trim":       10,
				"transcribe": 50,
				"label":      20,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
