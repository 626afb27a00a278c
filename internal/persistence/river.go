package persistence

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/config"
)

// NewRiverClient creates a job client on pool. Pass nil workers for an
// insert-only client.
func NewRiverClient(pool *pgxpool.Pool, workers *river.Workers, cfg config.RiverConfig, logger *zap.Logger) (*river.Client[pgx.Tx], error) {
	riverCfg := &river.Config{
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
	}
	if workers != nil {
		riverCfg.Queues = map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		}
		riverCfg.Workers = workers
	}
	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	logger.Info("river client initialized", zap.Int("max_workers", cfg.MaxWorkers), zap.Bool("insert_only", workers == nil))
	return client, nil
}
