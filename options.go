package filegraph

import (
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/helixml/filegraph/internal/config"
)

// databaseType identifies the database.
type databaseType int

const (
	databaseUnset databaseType = iota
	databaseSQLite
	databasePostgres
	databaseURL
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	database         databaseType
	dbPath           string
	dbDSN            string
	dataDir          string
	logger           *slog.Logger
	apiKeys          []string
	kv               config.KVConfig
	merge            config.MergeConfig
	reporting        config.ReportingConfig
	batchParallelism int
	tracerProvider   trace.TracerProvider
	meterProvider    metric.MeterProvider
	now              func() time.Time
	closers          []io.Closer
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		dataDir:          config.DefaultDataDir(),
		kv:               config.NewKVConfig(),
		merge:            config.NewMergeConfig(),
		reporting:        config.NewReportingConfig(),
		batchParallelism: config.DefaultBatchParallelism,
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithSQLite configures SQLite as the database.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.database = databaseSQLite
		c.dbPath = path
	}
}

// WithPostgres configures PostgreSQL as the database. Several processes may
// share one PostgreSQL database; writes coordinate through advisory locks.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.database = databasePostgres
		c.dbDSN = dsn
	}
}

// WithDatabaseURL configures the database from a DB_URL style string
// ("sqlite:///path" or "postgres://...").
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		if url == "" {
			return
		}
		c.database = databaseURL
		c.dbDSN = url
	}
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithAPIKeys sets the keys accepted by the write endpoints of the API.
func WithAPIKeys(keys ...string) Option {
	return func(c *clientConfig) {
		c.apiKeys = keys
	}
}

// WithRedis stores the auxiliary key-value data in Redis instead of the
// graph database.
func WithRedis(url string) Option {
	return func(c *clientConfig) {
		c.kv = c.kv.WithBackend(config.KVBackendRedis).WithRedisURL(url)
	}
}

// WithKVConfig sets the key-value backend configuration.
func WithKVConfig(k config.KVConfig) Option {
	return func(c *clientConfig) {
		c.kv = k
	}
}

// WithMergeConfig sets the review threshold, retry budget and hop bound.
func WithMergeConfig(m config.MergeConfig) Option {
	return func(c *clientConfig) {
		c.merge = m
	}
}

// WithBatchParallelism sets how many batch items are processed at once.
func WithBatchParallelism(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.batchParallelism = n
		}
	}
}

// WithReportingInterval sets how often batch progress is logged.
func WithReportingInterval(d time.Duration) Option {
	return func(c *clientConfig) {
		c.reporting = c.reporting.WithLogTimeInterval(d)
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *clientConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *clientConfig) {
		c.meterProvider = mp
	}
}

// WithClock sets the time source for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		c.now = now
	}
}

// WithCloser registers a resource closed with the client.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}

// WithConfig applies an AppConfig, as loaded from the environment.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		WithDataDir(cfg.DataDir())(c)
		WithDatabaseURL(cfg.DBURL())(c)
		WithAPIKeys(cfg.APIKeys()...)(c)
		WithKVConfig(cfg.KV())(c)
		WithMergeConfig(cfg.Merge())(c)
		WithBatchParallelism(cfg.BatchParallelism())(c)
		c.reporting = cfg.Reporting()
	}
}
