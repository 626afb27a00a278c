package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/app"
	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/config"
	"github.com/supportdesk/ticket-lifecycle/internal/observability"
)

func main() {
	flags := pflag.NewFlagSet("ticket-projector", pflag.ExitOnError)
	envFiles := flags.StringSlice("env-file", nil, "dotenv files loaded before reading the environment")
	rebuild := flags.Bool("rebuild", false, "clear the read models and replay the whole feed, then exit")
	once := flags.Bool("once", false, "project pending events, then exit")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, "projector")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Postgres.InMemory() {
		logger.Fatal("the standalone projector needs POSTGRES_DSN; in-memory mode projects inside the API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	stores, err := app.OpenStores(ctx, cfg, clk, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	defer stores.Close()

	projector, err := app.NewProjector(cfg, stores, clk, logger, observability.NewMetrics())
	if err != nil {
		logger.Fatal("failed to build projector", zap.Error(err))
	}

	switch {
	case *rebuild:
		n, err := projector.Rebuild(ctx)
		if err != nil {
			logger.Fatal("rebuild failed", zap.Int("events", n), zap.Error(err))
		}
		logger.Info("rebuild finished", zap.Int("events", n))
		return
	case *once:
		n, err := projector.CatchUp(ctx)
		if err != nil {
			logger.Fatal("catch-up failed", zap.Int("events", n), zap.Error(err))
		}
		logger.Info("catch-up finished", zap.Int("events", n))
		return
	}

	if err := projector.Start(ctx); err != nil {
		logger.Fatal("failed to start projector jobs", zap.Error(err))
	}
	_ = projector.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	projector.Stop(stopCtx)
}
