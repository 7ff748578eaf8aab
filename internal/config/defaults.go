package config

const (
	defaultDataDir             = "~/.local/share/marquee"
	defaultLogDir              = "~/.local/share/marquee/logs"
	defaultTMDBBaseURL         = "https://api.themoviedb.org/3"
	defaultTMDBLanguage        = "en-US"
	defaultTMDBIntervalMS      = 250
	defaultOMDbBaseURL         = "https://www.omdbapi.com"
	defaultOMDbIntervalMS      = 1000
	defaultOMDbDailyQuota      = 1000
	defaultEmbeddingsBaseURL   = "https://api.openai.com/v1"
	defaultEmbeddingsModel     = "text-embedding-3-small"
	defaultEmbeddingsInterval  = 200
	defaultEmbeddingsFailures  = 5
	defaultEmbeddingsTextLimit = 1000
	defaultTimeoutSeconds      = 15
	defaultStageLimit          = 100
	defaultDiscoveryPages      = 3
	defaultDiscoveryInsertCap  = 500
	defaultLookupBatchSize     = 500
	defaultInsertBatchSize     = 100
	defaultStalenessDays       = 90
	defaultFailureThreshold    = 0.10
	defaultMaxRetryAttempts    = 3
	defaultCastLimit           = 15
	defaultCrewLimit           = 10
	defaultStageTimeoutMinutes = 60
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultMetricsJob          = "marquee"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		TMDB: TMDB{
			BaseURL:        defaultTMDBBaseURL,
			Language:       defaultTMDBLanguage,
			MinIntervalMS:  defaultTMDBIntervalMS,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		OMDb: OMDb{
			BaseURL:        defaultOMDbBaseURL,
			MinIntervalMS:  defaultOMDbIntervalMS,
			DailyQuota:     defaultOMDbDailyQuota,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Embeddings: Embeddings{
			BaseURL:        defaultEmbeddingsBaseURL,
			Model:          defaultEmbeddingsModel,
			MinIntervalMS:  defaultEmbeddingsInterval,
			TimeoutSeconds: defaultTimeoutSeconds,
			MaxFailures:    defaultEmbeddingsFailures,
			MaxTextLength:  defaultEmbeddingsTextLimit,
		},
		Pipeline: Pipeline{
			DefaultLimit:        defaultStageLimit,
			DiscoveryPages:      defaultDiscoveryPages,
			DiscoveryInsertCap:  defaultDiscoveryInsertCap,
			LookupBatchSize:     defaultLookupBatchSize,
			InsertBatchSize:     defaultInsertBatchSize,
			StalenessDays:       defaultStalenessDays,
			FailureThreshold:    defaultFailureThreshold,
			MaxRetryAttempts:    defaultMaxRetryAttempts,
			CastLimit:           defaultCastLimit,
			CrewLimit:           defaultCrewLimit,
			StageTimeoutMinutes: defaultStageTimeoutMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Job: defaultMetricsJob,
		},
	}
}
