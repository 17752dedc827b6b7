// Package filegraph keeps a durable identity graph for files and the entities
// they mention.
//
// Files are identified by content, entities by a normalized natural key, and
// duplicate entities are merged without ever reusing or reassigning a
// canonical id. Merged entities keep resolving to their survivor.
//
// Basic usage:
//
//	client, err := filegraph.New(
//	    filegraph.WithSQLite(".filegraph/filegraph.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	file, _, err := client.Files.Observe(ctx, service.FileObserveParams{
//	    Digest: digest,
//	    Path:   "/srv/docs/invoice-0042.pdf",
//	})
//
//	acme, err := client.Entities.Observe(ctx, service.EntityObserveParams{
//	    Type: graph.EntityTypeCompany,
//	    Name: "Acme Corp",
//	})
//
//	_, err = client.Entities.Link(ctx, service.LinkParams{
//	    FileID:   file.CanonicalID(),
//	    EntityID: acme.CanonicalID(),
//	})
package filegraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/helixml/filegraph/application/service"
	"github.com/helixml/filegraph/domain/kv"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/infrastructure/persistence"
	"github.com/helixml/filegraph/infrastructure/redis"
	"github.com/helixml/filegraph/infrastructure/tracking"
	"github.com/helixml/filegraph/internal/config"
	"github.com/helixml/filegraph/internal/database"
)

// Client is the main entry point for the filegraph library.
//
// Access operations via struct fields:
//
//	client.Files.Get(ctx, id)
//	client.Entities.Resolve(ctx, id)
//	client.Merges.Request(ctx, req)
type Client struct {
	Files    *service.File
	Entities *service.Entity
	Merges   *service.Merge
	Reviews  *service.Review
	Stats    *service.Stats
	Batch    *service.Batch

	// KV is the auxiliary key-value store. Nothing in it carries identity.
	KV kv.Store

	db      database.Database
	sweeper *service.KVSweeper
	closers []io.Closer

	logger  *slog.Logger
	dataDir string
	apiKeys []string
	closed  atomic.Bool
	mu      sync.Mutex
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.database == databaseUnset {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = config.DefaultLogger()
	}

	dataDir, err := config.PrepareDataDir(cfg.dataDir)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	dbURL, err := buildDatabaseURL(cfg, dataDir)
	if err != nil {
		return nil, fmt.Errorf("build database url: %w", err)
	}

	db, err := database.NewDatabase(ctx, dbURL, database.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := persistence.Migrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("migrate: %w", err), errClose)
	}

	closers := cfg.closers

	store, err := buildKVStore(ctx, cfg, db)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("kv store: %w", err), errClose)
	}
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}

	telemetry, err := service.NewTelemetry(cfg.tracerProvider, cfg.meterProvider)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("telemetry: %w", err), errClose)
	}

	mc := cfg.merge
	graphOpts := []persistence.GraphStoreOption{
		persistence.WithMaxHops(mc.MaxHops()),
		persistence.WithRetryPolicy(persistence.RetryPolicy{
			MaxRetries:    mc.MaxRetries(),
			InitialDelay:  mc.InitialDelay(),
			BackoffFactor: mc.BackoffFactor(),
		}),
		persistence.WithLogger(logger),
	}
	engineOpts := []merge.EngineOption{
		merge.WithAutoAcceptConfidence(mc.AutoAcceptConfidence()),
	}
	if cfg.now != nil {
		graphOpts = append(graphOpts, persistence.WithClock(cfg.now))
		engineOpts = append(engineOpts, merge.WithClock(cfg.now))
	}

	graphStore := persistence.NewGraphStore(db, graphOpts...)
	reviewStore := persistence.NewReviewStore(db)
	engine := merge.NewEngine(engineOpts...)

	client := &Client{
		KV:      store,
		db:      db,
		logger:  logger,
		dataDir: dataDir,
		apiKeys: cfg.apiKeys,
	}

	rt := service.NewRuntime(&client.closed, telemetry, store, logger)
	if cfg.now != nil {
		rt = rt.WithClock(cfg.now)
	}

	// Progress logs are throttled; counters go to the KV store on every change.
	logCooldown := tracking.NewCooldown(tracking.NewLoggingReporter(logger), cfg.reporting.LogTimeInterval())
	closers = append(closers, logCooldown)

	client.Files = service.NewFile(rt, graphStore, engine)
	client.Entities = service.NewEntity(rt, graphStore, engine)
	client.Merges = service.NewMerge(rt, graphStore, reviewStore, engine)
	client.Reviews = service.NewReview(rt, reviewStore, client.Merges)
	client.Stats = service.NewStats(rt, graphStore)
	client.Batch = service.NewBatch(rt, client.Files, client.Entities, client.Merges, cfg.batchParallelism,
		logCooldown, tracking.NewKVReporter(store))
	client.closers = closers

	if cfg.kv.Backend() == config.KVBackendSQL {
		client.sweeper = service.NewKVSweeper(store, cfg.kv.CleanupInterval(), logger)
		client.sweeper.Start(ctx)
	}

	return client, nil
}

// Close releases all resources and stops the background sweeper.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sweeper != nil {
		c.sweeper.Stop()
	}

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Info("filegraph client closed")
	return nil
}

// Ping checks the database connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.db.Ping(ctx)
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// DataDir returns the prepared data directory.
func (c *Client) DataDir() string {
	return c.dataDir
}

// APIKeys returns the keys accepted by the API write endpoints.
func (c *Client) APIKeys() []string {
	out := make([]string, len(c.apiKeys))
	copy(out, c.apiKeys)
	return out
}

// buildDatabaseURL constructs the database URL from configuration.
func buildDatabaseURL(cfg *clientConfig, dataDir string) (string, error) {
	switch cfg.database {
	case databaseSQLite:
		if cfg.dbPath == "" {
			return config.DefaultDBURL(dataDir), nil
		}
		return "sqlite:///" + cfg.dbPath, nil
	case databasePostgres, databaseURL:
		return cfg.dbDSN, nil
	default:
		return "", ErrNoDatabase
	}
}

// buildKVStore opens the configured key-value backend.
func buildKVStore(ctx context.Context, cfg *clientConfig, db database.Database) (kv.Store, error) {
	switch cfg.kv.Backend() {
	case config.KVBackendRedis:
		return redis.NewKVStore(ctx, redis.Options{URL: cfg.kv.RedisURL()})
	default:
		var opts []persistence.KVStoreOption
		if cfg.now != nil {
			opts = append(opts, persistence.WithKVClock(cfg.now))
		}
		return persistence.NewKVStore(db, opts...), nil
	}
}
