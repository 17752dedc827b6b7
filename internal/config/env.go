package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use an underscore delimiter (e.g., MERGE_MAX_RETRIES).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.filegraph
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/filegraph.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of keys accepted on write endpoints.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// CORSOrigins is a comma-separated list of allowed browser origins.
	// Env: CORS_ORIGINS (default: any origin, without credentials)
	CORSOrigins string `envconfig:"CORS_ORIGINS"`

	// KV configures the auxiliary key-value store.
	KV KVEnv `envconfig:"KV"`

	// RedisURL is the Redis connection URL used by the redis KV backend.
	// Env: REDIS_URL (default: redis://localhost:6379/0)
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	// Merge configures merge review and conflict retries.
	Merge MergeEnv `envconfig:"MERGE"`

	// Resolve configures live entity resolution.
	Resolve ResolveEnv `envconfig:"RESOLVE"`

	// Batch configures batch runs.
	Batch BatchEnv `envconfig:"BATCH"`

	// Reporting configures progress reporting.
	Reporting ReportingEnv `envconfig:"REPORTING"`
}

// KVEnv holds environment configuration for the key-value store.
type KVEnv struct {
	// Backend selects sql or redis.
	// Env: KV_BACKEND (default: sql)
	Backend string `envconfig:"BACKEND" default:"sql"`

	// CleanupInterval is the expired entry sweep period in seconds.
	// Env: KV_CLEANUP_INTERVAL (default: 300)
	CleanupInterval float64 `envconfig:"CLEANUP_INTERVAL" default:"300"`
}

// MergeEnv holds environment configuration for merges.
type MergeEnv struct {
	// AutoAcceptConfidence is the confidence below which merges go to review.
	// Env: MERGE_AUTO_ACCEPT_CONFIDENCE (default: 0.9)
	AutoAcceptConfidence float64 `envconfig:"AUTO_ACCEPT_CONFIDENCE" default:"0.9"`

	// MaxRetries is the retry budget for conflicting writes.
	// Env: MERGE_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// RetryInitialDelay is the first backoff in seconds.
	// Env: MERGE_RETRY_INITIAL_DELAY (default: 0.05)
	RetryInitialDelay float64 `envconfig:"RETRY_INITIAL_DELAY" default:"0.05"`

	// RetryBackoffFactor is the backoff multiplier.
	// Env: MERGE_RETRY_BACKOFF_FACTOR (default: 2.0)
	RetryBackoffFactor float64 `envconfig:"RETRY_BACKOFF_FACTOR" default:"2.0"`
}

// ResolveEnv holds environment configuration for resolution.
type ResolveEnv struct {
	// MaxHops bounds how many merge pointers are followed.
	// Env: RESOLVE_MAX_HOPS (default: 32)
	MaxHops int `envconfig:"MAX_HOPS" default:"32"`
}

// BatchEnv holds environment configuration for batch runs.
type BatchEnv struct {
	// Parallelism is how many items are processed at once.
	// Env: BATCH_PARALLELISM (default: 4)
	Parallelism int `envconfig:"PARALLELISM" default:"4"`
}

// ReportingEnv holds environment configuration for reporting.
type ReportingEnv struct {
	// LogTimeInterval is the logging interval in seconds.
	// Env: REPORTING_LOG_TIME_INTERVAL (default: 5)
	LogTimeInterval float64 `envconfig:"LOG_TIME_INTERVAL" default:"5"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "FILEGRAPH" would require FILEGRAPH_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Normalize trims whitespace and lowercases the enumerated values.
func (e EnvConfig) Normalize() EnvConfig {
	e.Host = strings.TrimSpace(e.Host)
	e.DataDir = strings.TrimSpace(e.DataDir)
	e.DBURL = strings.TrimSpace(e.DBURL)
	e.LogLevel = strings.ToUpper(strings.TrimSpace(e.LogLevel))
	e.LogFormat = strings.ToLower(strings.TrimSpace(e.LogFormat))
	e.KV.Backend = strings.ToLower(strings.TrimSpace(e.KV.Backend))
	e.RedisURL = strings.TrimSpace(e.RedisURL)
	return e
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.APIKeys != "" {
		cfg = applyOption(cfg, WithAPIKeys(ParseAPIKeys(e.APIKeys)))
	}
	if e.CORSOrigins != "" {
		cfg = applyOption(cfg, WithCORSOrigins(ParseAPIKeys(e.CORSOrigins)))
	}

	cfg = applyOption(cfg, WithKVConfig(e.ToKVConfig()))
	cfg = applyOption(cfg, WithMergeConfig(e.ToMergeConfig()))
	cfg = applyOption(cfg, WithReportingConfig(e.Reporting.ToReportingConfig()))
	cfg = applyOption(cfg, WithBatchParallelism(e.Batch.Parallelism))

	return cfg
}

// applyOption applies an option to the config.
func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// ToKVConfig converts the KV and Redis variables to KVConfig.
func (e EnvConfig) ToKVConfig() KVConfig {
	k := NewKVConfig().
		WithBackend(parseKVBackend(e.KV.Backend)).
		WithCleanupInterval(seconds(e.KV.CleanupInterval))
	if e.RedisURL != "" {
		k = k.WithRedisURL(e.RedisURL)
	}
	return k
}

// ToMergeConfig converts the merge and resolve variables to MergeConfig.
func (e EnvConfig) ToMergeConfig() MergeConfig {
	return NewMergeConfigWithOptions(
		WithAutoAcceptConfidence(e.Merge.AutoAcceptConfidence),
		WithMergeMaxRetries(e.Merge.MaxRetries),
		WithMergeInitialDelay(seconds(e.Merge.RetryInitialDelay)),
		WithMergeBackoffFactor(e.Merge.RetryBackoffFactor),
		WithMaxHops(e.Resolve.MaxHops),
	)
}

// ToReportingConfig converts ReportingEnv to ReportingConfig.
func (r ReportingEnv) ToReportingConfig() ReportingConfig {
	return NewReportingConfig().WithLogTimeInterval(seconds(r.LogTimeInterval))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

// parseKVBackend parses a KV backend name, falling back to sql.
func parseKVBackend(s string) KVBackend {
	switch strings.ToLower(s) {
	case "redis":
		return KVBackendRedis
	default:
		return KVBackendSQL
	}
}
