// Package common provides shared utilities and default configuration.
package common

// Queue names used by the pipeline. Workers are bound to these at startup.
const (
	QueueNote            = "note"
	QueueIngredient      = "ingredient"
	QueueInstruction     = "instruction"
	QueueImage           = "image"
	QueueSource          = "source"
	QueueCategorization  = "categorization"
	QueuePatternTracking = "pattern_tracking"
)

// AllQueueNames returns every queue the runtime hosts, in startup order.
func AllQueueNames() []string {
	return []string{
		QueueNote,
		QueueIngredient,
		QueueInstruction,
		QueueImage,
		QueueSource,
		QueueCategorization,
		QueuePatternTracking,
	}
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in skillet.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "100ms",
			VisibilityTimeout: "5m",
			MaxAttempts:       3,
			RetryBackoffBase:  "1s",
			RetryBackoffMax:   "60s",
			DedupWindow:       "10m",
			Concurrency: map[string]int{
				QueueNote:        1,
				QueueIngredient:  4,
				QueueInstruction: 4,
				QueueImage:       2,
			},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Cache: CacheConfig{
			RedisAddr:     "", // Memory-only unless a shared tier is configured
			DefaultTTL:    "10m",
			MemoryTTL:     "1m",
			MaxMemoryKeys: 10000,
		},
		Broadcaster: BroadcasterConfig{
			SubscriberBuffer: 256,
			HistoryLimit:     1000,
		},
		Tracker: TrackerConfig{
			CategorizationTimeout: "60s",
			RecordTTL:             "24h",
		},
		Pipeline: PipelineConfig{
			CompletionCheckBase:    "100ms",
			CompletionCheckMax:     "5s",
			CompletionCheckRetries: 60,
		},
		Images: ImagesConfig{
			Bucket:        "", // Image upload disabled until a bucket is configured
			UploadTimeout: "2m",
		},
		Categorize: CategorizeConfig{
			APIKey:    "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:     "claude-haiku-3-5-20241022",
			MaxTokens: 1024,
			Timeout:   "2m",
		},
		Watcher: WatcherConfig{
			Enabled:         false,
			Dir:             "./imports",
			IncludePatterns: []string{"**/*.html"},
			DebounceDelay:   "500ms",
		},
		Janitor: JanitorConfig{
			Enabled:         true,
			SweepSchedule:   "*/10 * * * *",
			MetricsSchedule: "* * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			// Empty AllowedContexts forwards all status contexts
			AllowedContexts: []string{},
			// Throttle high-frequency line progress to keep large imports readable
			ThrottleIntervals: map[string]string{
				"ingredient_processing":  "250ms",
				"instruction_processing": "250ms",
			},
		},
	}
}
