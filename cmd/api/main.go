package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/supportdesk/ticket-lifecycle/internal/api/http"
	"github.com/supportdesk/ticket-lifecycle/internal/api/http/handlers"
	"github.com/supportdesk/ticket-lifecycle/internal/app"
	"github.com/supportdesk/ticket-lifecycle/internal/auth"
	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/config"
	"github.com/supportdesk/ticket-lifecycle/internal/idempotency"
	"github.com/supportdesk/ticket-lifecycle/internal/observability"
	"github.com/supportdesk/ticket-lifecycle/internal/service"
	"github.com/supportdesk/ticket-lifecycle/internal/workflow"
	"github.com/supportdesk/ticket-lifecycle/pkg/cursor"
)

func main() {
	flags := pflag.NewFlagSet("ticket-api", pflag.ExitOnError)
	envFiles := flags.StringSlice("env-file", nil, "dotenv files loaded before reading the environment")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, "api")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	stores, err := app.OpenStores(ctx, cfg, clk, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	defer stores.Close()

	metrics := observability.NewMetrics()

	guard := idempotency.NewGuard(stores.Receipts, clk, logger.Named("idempotency"), idempotency.Options{
		TTL:          cfg.Idempotency.ReceiptTTL,
		WaitAttempts: cfg.Idempotency.WaitAttempts,
		WaitInterval: cfg.Idempotency.WaitInterval,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   stores.Tickets,
		ActivityRepo: stores.Activity,
		Guard:        guard,
		Workflow:     workflow.New(),
		Clock:        clk,
		Logger:       logger.Named("tickets"),
	})
	queryService := service.NewQueryService(stores.ReadModels, stores.Activity, cursor.NewCodec(cfg.Paging.CursorSecret))

	// In-memory stores are private to this process, so the projector has to
	// run here.
	var projector *app.Projector
	if stores.InMemory() || cfg.Projector.Embedded {
		projector, err = app.NewProjector(cfg, stores, clk, logger, metrics)
		if err != nil {
			logger.Fatal("failed to build projector", zap.Error(err))
		}
		if err := projector.Start(ctx); err != nil {
			logger.Fatal("failed to start projector jobs", zap.Error(err))
		}
		go func() {
			_ = projector.Run(ctx)
		}()
	}

	deps := map[string]handlers.Pinger{"postgres": nil, "redis": nil}
	if !stores.InMemory() {
		deps["postgres"] = stores.Postgres
	}
	if stores.Redis != nil {
		deps["redis"] = stores.Redis
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())

	server := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(server, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Tickets:        handlers.NewTicketsHandler(ticketService, queryService),
		Metrics:        handlers.NewMetricsHandler(metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, cfg.Auth.Required),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.Bool("in_memory", stores.InMemory()))
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if projector != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		projector.Stop(stopCtx)
	}
}
