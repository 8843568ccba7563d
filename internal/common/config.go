package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Queue       QueueConfig       `toml:"queue"`
	Storage     StorageConfig     `toml:"storage"`
	Cache       CacheConfig       `toml:"cache"`
	Broadcaster BroadcasterConfig `toml:"broadcaster"`
	Tracker     TrackerConfig     `toml:"tracker"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Images      ImagesConfig      `toml:"images"`
	Categorize  CategorizeConfig  `toml:"categorize"`
	Watcher     WatcherConfig     `toml:"watcher"`
	Janitor     JanitorConfig     `toml:"janitor"`
	Logging     LoggingConfig     `toml:"logging"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	PollInterval      string         `toml:"poll_interval"`      // e.g., "100ms" - how often workers poll for jobs
	VisibilityTimeout string         `toml:"visibility_timeout"` // e.g., "5m" - job visibility timeout for redelivery
	MaxAttempts       int            `toml:"max_attempts"`       // Max delivery attempts before a job fails as exhausted
	RetryBackoffBase  string         `toml:"retry_backoff_base"` // Base retry delay, doubled per attempt (default "1s")
	RetryBackoffMax   string         `toml:"retry_backoff_max"`  // Retry delay cap (default "60s")
	DedupWindow       string         `toml:"dedup_window"`       // Window in which identical job IDs are dropped (default "10m")
	Concurrency       map[string]int `toml:"concurrency"`        // Worker slots per queue name (default 1 each)
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type CacheConfig struct {
	RedisAddr     string `toml:"redis_addr"`     // Shared tier address; empty disables the shared tier
	RedisPassword string `toml:"redis_password"` // Optional
	RedisDB       int    `toml:"redis_db"`
	DefaultTTL    string `toml:"default_ttl"`        // Shared tier TTL (default "10m")
	MemoryTTL     string `toml:"memory_ttl"`         // In-process tier TTL (default "1m")
	MaxMemoryKeys int    `toml:"max_memory_entries"` // In-process tier entry cap (default 10000)
}

type BroadcasterConfig struct {
	SubscriberBuffer int `toml:"subscriber_buffer"` // Per-subscriber event buffer before drops (default 256)
	HistoryLimit     int `toml:"history_limit"`     // Events kept in memory per import for replay (default 1000)
}

type TrackerConfig struct {
	CategorizationTimeout string `toml:"categorization_timeout"` // Bound on wait_for_categorization (default "60s")
	RecordTTL             string `toml:"record_ttl"`             // Completion records older than this are swept (default "24h")
}

type PipelineConfig struct {
	CompletionCheckBase    string `toml:"completion_check_base"`    // Sentinel re-enqueue base delay (default "100ms")
	CompletionCheckMax     string `toml:"completion_check_max"`     // Sentinel re-enqueue delay cap (default "5s")
	CompletionCheckRetries int    `toml:"completion_check_retries"` // Sentinel retry budget (default 60)
}

// ImagesConfig contains object storage configuration for recipe images
type ImagesConfig struct {
	Bucket          string `toml:"bucket"`           // GCS bucket name; empty disables image upload
	CredentialsFile string `toml:"credentials_file"` // Service account JSON path (optional, ADC otherwise)
	CDNBaseURL      string `toml:"cdn_base_url"`     // Public URL base; defaults to storage.googleapis.com
	UploadTimeout   string `toml:"upload_timeout"`   // Per-upload timeout (default "2m")
}

// CategorizeConfig contains Anthropic Claude configuration for note categorization
type CategorizeConfig struct {
	APIKey    string `toml:"api_key"`    // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model     string `toml:"model"`      // Model for categorization (default: "claude-haiku-3-5-20241022")
	MaxTokens int    `toml:"max_tokens"` // Maximum tokens in response (default: 1024)
	Timeout   string `toml:"timeout"`    // Operation timeout as duration string (default: "2m")
}

// WatcherConfig contains configuration for the HTML drop-directory watcher
type WatcherConfig struct {
	Enabled         bool     `toml:"enabled"`
	Dir             string   `toml:"dir"`              // Directory watched for exported recipe HTML
	IncludePatterns []string `toml:"include_patterns"` // Glob patterns relative to dir (default ["**/*.html"])
	DebounceDelay   string   `toml:"debounce_delay"`   // Settle time before a changed file is enqueued (default "500ms")
}

// JanitorConfig contains cron schedules for background maintenance
type JanitorConfig struct {
	Enabled         bool   `toml:"enabled"`
	SweepSchedule   string `toml:"sweep_schedule"`   // Completion-record sweep (default "*/10 * * * *")
	MetricsSchedule string `toml:"metrics_schedule"` // Queue depth metric refresh (default "* * * * *")
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// WebSocketConfig contains configuration for WebSocket status streaming
type WebSocketConfig struct {
	// Whitelist of status contexts to forward. Empty list allows all contexts.
	AllowedContexts []string `toml:"allowed_contexts"`
	// Throttle intervals for high-frequency contexts. Map of context to duration string.
	// Example: {"ingredient_processing": "250ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier files, environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SKILLET_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SKILLET_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SKILLET_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if pollInterval := os.Getenv("SKILLET_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if visibilityTimeout := os.Getenv("SKILLET_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxAttempts := os.Getenv("SKILLET_QUEUE_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Queue.MaxAttempts = ma
		}
	}
	if dedupWindow := os.Getenv("SKILLET_QUEUE_DEDUP_WINDOW"); dedupWindow != "" {
		config.Queue.DedupWindow = dedupWindow
	}

	// Storage configuration
	if badgerPath := os.Getenv("SKILLET_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Cache configuration
	if redisAddr := os.Getenv("SKILLET_REDIS_ADDR"); redisAddr != "" {
		config.Cache.RedisAddr = redisAddr
	}
	if redisPassword := os.Getenv("SKILLET_REDIS_PASSWORD"); redisPassword != "" {
		config.Cache.RedisPassword = redisPassword
	}
	if redisDB := os.Getenv("SKILLET_REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			config.Cache.RedisDB = db
		}
	}
	if defaultTTL := os.Getenv("SKILLET_CACHE_DEFAULT_TTL"); defaultTTL != "" {
		config.Cache.DefaultTTL = defaultTTL
	}
	if memoryTTL := os.Getenv("SKILLET_CACHE_MEMORY_TTL"); memoryTTL != "" {
		config.Cache.MemoryTTL = memoryTTL
	}

	// Tracker configuration
	if categorizationTimeout := os.Getenv("SKILLET_TRACKER_CATEGORIZATION_TIMEOUT"); categorizationTimeout != "" {
		if _, err := time.ParseDuration(categorizationTimeout); err == nil {
			config.Tracker.CategorizationTimeout = categorizationTimeout
		}
	}

	// Images configuration
	if bucket := os.Getenv("SKILLET_IMAGES_BUCKET"); bucket != "" {
		config.Images.Bucket = bucket
	}
	if credentialsFile := os.Getenv("SKILLET_IMAGES_CREDENTIALS_FILE"); credentialsFile != "" {
		config.Images.CredentialsFile = credentialsFile
	}
	if cdnBaseURL := os.Getenv("SKILLET_IMAGES_CDN_BASE_URL"); cdnBaseURL != "" {
		config.Images.CDNBaseURL = cdnBaseURL
	}

	// Categorize configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Categorize.APIKey = apiKey
	}
	if apiKey := os.Getenv("SKILLET_CATEGORIZE_API_KEY"); apiKey != "" {
		config.Categorize.APIKey = apiKey // SKILLET_ prefix takes priority
	}
	if model := os.Getenv("SKILLET_CATEGORIZE_MODEL"); model != "" {
		config.Categorize.Model = model
	}
	if maxTokens := os.Getenv("SKILLET_CATEGORIZE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Categorize.MaxTokens = mt
		}
	}

	// Watcher configuration
	if enabled := os.Getenv("SKILLET_WATCHER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Watcher.Enabled = e
		}
	}
	if dir := os.Getenv("SKILLET_WATCHER_DIR"); dir != "" {
		config.Watcher.Dir = dir
	}

	// Logging configuration
	if level := os.Getenv("SKILLET_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SKILLET_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("SKILLET_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// WebSocket configuration
	if allowedContexts := os.Getenv("SKILLET_WEBSOCKET_ALLOWED_CONTEXTS"); allowedContexts != "" {
		contexts := []string{}
		for _, c := range strings.Split(allowedContexts, ",") {
			if trimmed := strings.TrimSpace(c); trimmed != "" {
				contexts = append(contexts, trimmed)
			}
		}
		if len(contexts) > 0 {
			config.WebSocket.AllowedContexts = contexts
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Duration parses a duration string, falling back to the given default
// when the value is empty or malformed. Config duration fields are strings so
// a bad value degrades to a sane default instead of failing startup.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
