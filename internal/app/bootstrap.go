// Package app wires stores, the projector and background jobs for the
// command binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/config"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/idempotency"
	"github.com/supportdesk/ticket-lifecycle/internal/observability"
	"github.com/supportdesk/ticket-lifecycle/internal/persistence"
	"github.com/supportdesk/ticket-lifecycle/internal/projection"
	"github.com/supportdesk/ticket-lifecycle/internal/repository"
	"github.com/supportdesk/ticket-lifecycle/internal/repository/memory"
	"github.com/supportdesk/ticket-lifecycle/internal/service"
	"github.com/supportdesk/ticket-lifecycle/internal/worker"
)

// Stores holds the repositories chosen for this process. Postgres and Redis
// are nil when running in memory.
type Stores struct {
	Tickets    repository.TicketRepository
	Activity   repository.ActivityRepository
	ReadModels repository.ReadModelRepository
	Feed       repository.FeedRepository
	Receipts   idempotency.Store

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
}

// InMemory reports whether the stores live in this process only.
func (s *Stores) InMemory() bool {
	return s.Postgres == nil || s.Postgres.Pool == nil
}

// Close releases connections.
func (s *Stores) Close() {
	s.Redis.Close()
	s.Postgres.Close()
}

// OpenStores connects to Postgres and Redis when configured and falls back
// to in-memory stores otherwise.
func OpenStores(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*Stores, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	stores := &Stores{Postgres: pg, Redis: persistence.NewRedis(cfg.Redis, logger)}

	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				stores.Close()
				return nil, err
			}
			if err := persistence.RunRiverMigrations(ctx, pool, logger); err != nil {
				stores.Close()
				return nil, err
			}
		}
		stores.Tickets = repository.NewTicketRepository(pool)
		stores.Activity = repository.NewActivityRepository(pool)
		stores.ReadModels = repository.NewReadModelRepository(pool)
		stores.Feed = repository.NewFeedRepository(pool)
	} else {
		mem := memory.NewStore(clk)
		stores.Tickets = mem
		stores.Activity = mem
		stores.ReadModels = mem
		stores.Feed = mem
	}

	if stores.Redis != nil {
		stores.Receipts = idempotency.NewRedisStore(stores.Redis.Client)
	} else {
		stores.Receipts = idempotency.NewMemoryStore(clk)
	}
	return stores, nil
}

// Projector bundles a projector with the notification pipeline fed by it.
type Projector struct {
	*projection.Projector
	river  *river.Client[pgx.Tx]
	logger *zap.Logger
}

// NewProjector builds the projector and subscribes notification handlers
// to its dispatcher. On Postgres, webhook jobs are inserted in the commit
// transaction and worked by a river client; in memory they are delivered
// inline after the commit.
func NewProjector(cfg *config.Config, stores *Stores, clk clock.Clock, logger *zap.Logger, metrics *observability.Metrics) (*Projector, error) {
	dispatcher := events.NewInMemoryDispatcher()
	webhooks := worker.NewWebhookWorker(nil, cfg.Notification.WebhookTimeout, logger)

	var (
		enqueuer    service.WebhookEnqueuer = worker.NewInlineEnqueuer(webhooks, logger)
		riverClient *river.Client[pgx.Tx]
		outbox      projection.Outbox
	)
	if !stores.InMemory() {
		workers := river.NewWorkers()
		river.AddWorker(workers, webhooks)
		client, err := persistence.NewRiverClient(stores.Postgres.Pool, workers, cfg.River, logger)
		if err != nil {
			return nil, err
		}
		riverClient = client
		enqueuer = nil
	}
	notifications := service.NewNotificationService(dispatcher, enqueuer, logger, cfg.Notification)
	worker.StartNotificationWorker(notifications)
	if riverClient != nil {
		outbox = worker.NewRiverOutbox(riverClient, notifications)
	}

	owner, _ := os.Hostname()
	p := projection.New(projection.Dependencies{
		Feed:       stores.Feed,
		Dispatcher: dispatcher,
		Outbox:     outbox,
		Clock:      clk,
		Logger:     logger.Named("projector"),
		Metrics:    metrics,
	}, projection.Options{
		Subscription: cfg.Projector.SubscriptionName,
		Owner:        projectorOwner(owner),
		BatchSize:    cfg.Projector.BatchSize,
		PollInterval: cfg.Projector.PollInterval,
		RetryBackoff: cfg.Projector.RetryBackoff,
		LeaseTTL:     cfg.Projector.LeaseTTL,
	})
	return &Projector{Projector: p, river: riverClient, logger: logger}, nil
}

// Start starts the job client. The projector loop itself is started with
// Run.
func (p *Projector) Start(ctx context.Context) error {
	if p.river == nil {
		return nil
	}
	if err := p.river.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	p.logger.Info("river client started")
	return nil
}

// Stop waits for running jobs to finish.
func (p *Projector) Stop(ctx context.Context) {
	if p.river == nil {
		return
	}
	if err := p.river.Stop(ctx); err != nil {
		p.logger.Error("failed to stop river client", zap.Error(err))
		return
	}
	p.logger.Info("river client stopped")
}

func projectorOwner(host string) string {
	if host == "" {
		return ""
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
