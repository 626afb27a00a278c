package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/config"
	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/idempotency"
	"github.com/supportdesk/ticket-lifecycle/internal/observability"
)

func TestInMemoryBootstrapProjects(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	clk := clock.Fake(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	stores, err := OpenStores(ctx, cfg, clk, zap.NewNop())
	require.NoError(t, err)
	defer stores.Close()
	assert.True(t, stores.InMemory())
	assert.IsType(t, &idempotency.MemoryStore{}, stores.Receipts)

	metrics := observability.NewMetrics()
	p, err := NewProjector(cfg, stores, clk, zap.NewNop(), metrics)
	require.NoError(t, err)
	require.NoError(t, p.Start(ctx))
	defer p.Stop(ctx)

	ticket := &domain.Ticket{ID: "t-1", CustomerID: "c", Subject: "s", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityNormal}
	evt := events.NewActivityEvent("t-1", events.EventTicketCreated, "a", clk.Now(), map[string]any{
		events.PayloadCustomerID: "c",
		events.PayloadSubject:    "s",
	})
	require.NoError(t, stores.Tickets.Create(ctx, ticket, evt))

	n, err := p.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	row, err := stores.ReadModels.GetByTicketID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "s", row.Subject)
	assert.Equal(t, int64(1), metrics.Snapshot().Projector.Events)
}
