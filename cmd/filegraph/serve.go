package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/helixml/filegraph/infrastructure/api"
	"github.com/helixml/filegraph/internal/config"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

func serveCmd(envFile *string) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                          Server host to bind to (default: 0.0.0.0)
  PORT                          Server port to listen on (default: 8080)
  DATA_DIR                      Data directory (default: ~/.filegraph)
  DB_URL                        Database URL (default: sqlite:///{data_dir}/filegraph.db)
  LOG_LEVEL                     Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                    Log format: pretty, json (default: pretty)
  API_KEYS                      Comma-separated keys required on write endpoints
  CORS_ORIGINS                  Comma-separated browser origins (default: any)

  KV_BACKEND                    Key-value backend: sql, redis (default: sql)
  KV_CLEANUP_INTERVAL           Expired key sweep period in seconds (default: 300)
  REDIS_URL                     Redis URL for the redis backend

  MERGE_AUTO_ACCEPT_CONFIDENCE  Merges below this confidence are queued (default: 0.9)
  MERGE_MAX_RETRIES             Retries for conflicting writes (default: 5)
  RESOLVE_MAX_HOPS              Merge pointers followed before failing (default: 32)
  BATCH_PARALLELISM             Items processed at once by ingest (default: 4)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	client, slogger, closeClient, err := openClient(envFile, os.Stdout, serveOverrides(host, port)...)
	if err != nil {
		return err
	}
	defer closeClient()

	apiServer := api.NewAPIServer(client,
		api.WithCORSOrigins(cfg.CORSOrigins()),
		api.WithVersion(version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slogger.Info("starting filegraph", slog.String("version", version), slog.String("addr", cfg.Addr()))
		if err := apiServer.ListenAndServe(cfg.Addr()); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Also reached when ListenAndServe fails, which cancels ctx.
		<-ctx.Done()
		slogger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func serveOverrides(host string, port int) []config.AppConfigOption {
	var opts []config.AppConfigOption
	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}
	return opts
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	return cfg.Apply(serveOverrides(host, port)...)
}
