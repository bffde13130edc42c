package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ohmylinear/oml/internal/config"
	"github.com/ohmylinear/oml/internal/official"
	"github.com/ohmylinear/oml/internal/reader"
	"github.com/ohmylinear/oml/internal/router"
	"github.com/ohmylinear/oml/internal/server"
	"github.com/ohmylinear/oml/internal/telemetry"
	"github.com/ohmylinear/oml/internal/version"
	"github.com/ohmylinear/oml/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP gateway over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	if err := telemetry.Init(ctx, "oh-my-linear", version.Version); err != nil {
		logger.Warn("telemetry init failed", "error", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shCtx)
	}()

	rdr := reader.New(cfg, logger)
	session := official.New(cfg, logger)
	defer session.Close()

	rt := router.New(cfg, rdr, telemetry.WrapUpstream(session), logger)

	if cfg.WatchDB {
		w, err := watch.New(cfg.DBPath, rdr, logger)
		if err != nil {
			logger.Warn("db watcher unavailable", "error", err)
		} else {
			w.Start(ctx)
			defer func() { _ = w.Close() }()
		}
	}

	return server.New(rt, session, logger).Run(ctx)
}
