// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 8080
	DefaultLogLevel             = "INFO"
	DefaultDBFile               = "filegraph.db"
	DefaultRedisURL             = "redis://localhost:6379/0"
	DefaultKVCleanupInterval    = 300 * time.Second
	DefaultAutoAcceptConfidence = 0.9
	DefaultMergeMaxRetries      = 5
	DefaultMergeRetryDelay      = 50 * time.Millisecond
	DefaultMergeBackoffFactor   = 2.0
	DefaultResolveMaxHops       = 32
	DefaultBatchParallelism     = 4
	DefaultReportingInterval    = 5 * time.Second
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// KVBackend selects where the auxiliary key-value store lives.
type KVBackend string

// KVBackend values.
const (
	KVBackendSQL   KVBackend = "sql"
	KVBackendRedis KVBackend = "redis"
)

// ReportingConfig configures progress reporting.
type ReportingConfig struct {
	logTimeInterval time.Duration
}

// NewReportingConfig creates a new ReportingConfig with defaults.
func NewReportingConfig() ReportingConfig {
	return ReportingConfig{
		logTimeInterval: DefaultReportingInterval,
	}
}

// LogTimeInterval returns the time interval for logging progress.
func (r ReportingConfig) LogTimeInterval() time.Duration {
	return r.logTimeInterval
}

// WithLogTimeInterval returns a new config with the specified interval.
func (r ReportingConfig) WithLogTimeInterval(d time.Duration) ReportingConfig {
	if d > 0 {
		r.logTimeInterval = d
	}
	return r
}

// KVConfig configures the auxiliary key-value store.
type KVConfig struct {
	backend         KVBackend
	redisURL        string
	cleanupInterval time.Duration
}

// NewKVConfig creates a new KVConfig with defaults.
func NewKVConfig() KVConfig {
	return KVConfig{
		backend:         KVBackendSQL,
		redisURL:        DefaultRedisURL,
		cleanupInterval: DefaultKVCleanupInterval,
	}
}

// Backend returns the selected backend.
func (k KVConfig) Backend() KVBackend { return k.backend }

// RedisURL returns the Redis connection URL.
func (k KVConfig) RedisURL() string { return k.redisURL }

// CleanupInterval returns how often expired SQL entries are swept.
func (k KVConfig) CleanupInterval() time.Duration { return k.cleanupInterval }

// WithBackend returns a new config using the given backend.
func (k KVConfig) WithBackend(b KVBackend) KVConfig {
	k.backend = b
	return k
}

// WithRedisURL returns a new config with the given Redis URL.
func (k KVConfig) WithRedisURL(u string) KVConfig {
	k.redisURL = u
	return k
}

// WithCleanupInterval returns a new config with the given sweep interval.
func (k KVConfig) WithCleanupInterval(d time.Duration) KVConfig {
	if d > 0 {
		k.cleanupInterval = d
	}
	return k
}

// MergeConfig configures merge decisions and conflict handling.
type MergeConfig struct {
	autoAcceptConfidence float64
	maxRetries           int
	initialDelay         time.Duration
	backoffFactor        float64
	maxHops              int
}

// NewMergeConfig creates a new MergeConfig with defaults.
func NewMergeConfig() MergeConfig {
	return MergeConfig{
		autoAcceptConfidence: DefaultAutoAcceptConfidence,
		maxRetries:           DefaultMergeMaxRetries,
		initialDelay:         DefaultMergeRetryDelay,
		backoffFactor:        DefaultMergeBackoffFactor,
		maxHops:              DefaultResolveMaxHops,
	}
}

// AutoAcceptConfidence returns the confidence below which merges are queued for review.
func (m MergeConfig) AutoAcceptConfidence() float64 { return m.autoAcceptConfidence }

// MaxRetries returns the retry budget for conflicting writes.
func (m MergeConfig) MaxRetries() int { return m.maxRetries }

// InitialDelay returns the first retry delay.
func (m MergeConfig) InitialDelay() time.Duration { return m.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (m MergeConfig) BackoffFactor() float64 { return m.backoffFactor }

// MaxHops returns the bound on merge chains followed during resolution.
func (m MergeConfig) MaxHops() int { return m.maxHops }

// MergeConfigOption is a functional option for MergeConfig.
type MergeConfigOption func(*MergeConfig)

// WithAutoAcceptConfidence sets the review threshold.
func WithAutoAcceptConfidence(c float64) MergeConfigOption {
	return func(m *MergeConfig) {
		if c >= 0 && c <= 1 {
			m.autoAcceptConfidence = c
		}
	}
}

// WithMergeMaxRetries sets the retry budget.
func WithMergeMaxRetries(n int) MergeConfigOption {
	return func(m *MergeConfig) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

// WithMergeInitialDelay sets the first retry delay.
func WithMergeInitialDelay(d time.Duration) MergeConfigOption {
	return func(m *MergeConfig) {
		if d > 0 {
			m.initialDelay = d
		}
	}
}

// WithMergeBackoffFactor sets the backoff multiplier.
func WithMergeBackoffFactor(f float64) MergeConfigOption {
	return func(m *MergeConfig) {
		if f >= 1 {
			m.backoffFactor = f
		}
	}
}

// WithMaxHops sets the merge chain bound.
func WithMaxHops(n int) MergeConfigOption {
	return func(m *MergeConfig) {
		if n > 0 {
			m.maxHops = n
		}
	}
}

// NewMergeConfigWithOptions creates a MergeConfig with functional options.
func NewMergeConfigWithOptions(opts ...MergeConfigOption) MergeConfig {
	m := NewMergeConfig()
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host             string
	port             int
	dataDir          string
	dbURL            string
	logLevel         string
	logFormat        LogFormat
	apiKeys          []string
	corsOrigins      []string
	kv               KVConfig
	merge            MergeConfig
	reporting        ReportingConfig
	batchParallelism int
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filegraph"
	}
	return filepath.Join(home, ".filegraph")
}

// DefaultDBURL returns the SQLite URL inside a data directory.
func DefaultDBURL(dataDir string) string {
	return "sqlite:///" + filepath.Join(dataDir, DefaultDBFile)
}

// DefaultLogger returns the default slog logger for library consumers.
func DefaultLogger() *slog.Logger {
	return slog.Default()
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:             DefaultHost,
		port:             DefaultPort,
		dataDir:          dataDir,
		dbURL:            DefaultDBURL(dataDir),
		logLevel:         DefaultLogLevel,
		logFormat:        LogFormatPretty,
		apiKeys:          []string{},
		kv:               NewKVConfig(),
		merge:            NewMergeConfig(),
		reporting:        NewReportingConfig(),
		batchParallelism: DefaultBatchParallelism,
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the configured API keys.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// CORSOrigins returns the origins allowed to call the API from a browser.
func (c AppConfig) CORSOrigins() []string {
	origins := make([]string, len(c.corsOrigins))
	copy(origins, c.corsOrigins)
	return origins
}

// KV returns the key-value store config.
func (c AppConfig) KV() KVConfig { return c.kv }

// Merge returns the merge config.
func (c AppConfig) Merge() MergeConfig { return c.merge }

// Reporting returns the reporting config.
func (c AppConfig) Reporting() ReportingConfig { return c.reporting }

// BatchParallelism returns how many batch items are processed at once.
func (c AppConfig) BatchParallelism() int { return c.batchParallelism }

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		// Keep the default SQLite file inside the data dir.
		if c.dbURL == "" || strings.HasSuffix(c.dbURL, DefaultDBFile) {
			c.dbURL = DefaultDBURL(dir)
		}
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsOrigins = make([]string, len(origins))
		copy(c.corsOrigins, origins)
	}
}

// WithKVConfig sets the key-value store config.
func WithKVConfig(k KVConfig) AppConfigOption {
	return func(c *AppConfig) { c.kv = k }
}

// WithMergeConfig sets the merge config.
func WithMergeConfig(m MergeConfig) AppConfigOption {
	return func(c *AppConfig) { c.merge = m }
}

// WithReportingConfig sets the reporting config.
func WithReportingConfig(r ReportingConfig) AppConfigOption {
	return func(c *AppConfig) { c.reporting = r }
}

// WithBatchParallelism sets the batch worker limit.
func WithBatchParallelism(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.batchParallelism = n
		}
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Credentials are masked and API keys are shown as a count.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("kv_backend", string(c.kv.backend)),
		slog.String("redis_url", c.maskedRedisURL()),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.Float64("merge_auto_accept_confidence", c.merge.autoAcceptConfidence),
		slog.Int("batch_parallelism", c.batchParallelism),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

func (c AppConfig) maskedRedisURL() string {
	if c.kv.backend != KVBackendRedis {
		return "(unused)"
	}
	u, err := url.Parse(c.kv.redisURL)
	if err != nil {
		return "redis://***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}

// ParseAPIKeys parses a comma-separated string of API keys.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}
