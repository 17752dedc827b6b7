package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/internal/config"
	"github.com/helixml/filegraph/internal/log"
)

// openClient loads configuration, installs a logger writing to logOut and
// opens a client. The returned close function logs close failures.
func openClient(envFile string, logOut io.Writer, overrides ...config.AppConfigOption) (*filegraph.Client, *slog.Logger, func(), error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg = cfg.Apply(overrides...)

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	logger := log.NewLoggerWithWriter(logOut, cfg.LogFormat(), cfg.LogLevel())
	log.SetDefaultLogger(logger)
	slogger := logger.Slog()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelDebug, "configuration loaded", attrs...)

	client, err := filegraph.New(
		filegraph.WithConfig(cfg),
		filegraph.WithLogger(slogger),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create filegraph client: %w", err)
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close filegraph client", slog.Any("error", err))
		}
	}
	return client, slogger, closeFn, nil
}
