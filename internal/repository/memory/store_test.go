package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/repository"
)

var epoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func TestTicketOptimisticConcurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(clock.Fake(epoch))

	ticket := &domain.Ticket{ID: "t-1", Subject: "S", Status: domain.TicketStatusOpen}
	require.NoError(t, s.Create(ctx, ticket, events.NewActivityEvent("t-1", events.EventTicketCreated, "a", epoch, nil)))
	require.EqualValues(t, 1, ticket.Version)
	require.ErrorIs(t, s.Create(ctx, ticket, events.NewActivityEvent("t-1", events.EventTicketCreated, "a", epoch, nil)), repository.ErrConflict)

	first, err := s.GetByID(ctx, "t-1")
	require.NoError(t, err)
	second, err := s.GetByID(ctx, "t-1")
	require.NoError(t, err)

	first.Subject = "first"
	require.NoError(t, s.Update(ctx, first, events.NewActivityEvent("t-1", events.EventTicketUpdated, "a", epoch, nil)))
	require.EqualValues(t, 2, first.Version)

	second.Subject = "second"
	require.ErrorIs(t, s.Update(ctx, second, events.NewActivityEvent("t-1", events.EventTicketUpdated, "a", epoch, nil)), repository.ErrConflict)

	stored, err := s.GetByID(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, "first", stored.Subject)
	require.Len(t, s.Events(), 2)

	_, err = s.GetByID(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLeaseAndFencedCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := clock.Fake(epoch)
	s := NewStore(clk)

	require.NoError(t, s.EnsureSubscription(ctx, "sub"))
	require.NoError(t, s.EnsureSubscription(ctx, "sub"))

	_, err := s.AcquireLease(ctx, "sub", "a", time.Minute)
	require.NoError(t, err)
	_, err = s.AcquireLease(ctx, "sub", "b", time.Minute)
	require.ErrorIs(t, err, repository.ErrLeaseHeld)

	require.ErrorIs(t, s.Commit(ctx, repository.FeedCommit{Subscription: "sub", Owner: "b", From: 0, To: 1}), repository.ErrLeaseLost)
	require.NoError(t, s.Commit(ctx, repository.FeedCommit{Subscription: "sub", Owner: "a", From: 0, To: 1, LeaseTTL: time.Minute}))
	require.ErrorIs(t, s.Commit(ctx, repository.FeedCommit{Subscription: "sub", Owner: "a", From: 0, To: 2}), repository.ErrLeaseLost)

	clk.Advance(2 * time.Minute)
	sub, err := s.AcquireLease(ctx, "sub", "b", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, sub.Position)
	require.ErrorIs(t, s.Commit(ctx, repository.FeedCommit{Subscription: "sub", Owner: "a", From: 1, To: 2}), repository.ErrLeaseLost)
}

func TestReadBatchPaging(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(clock.Fake(epoch))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, events.NewActivityEvent("t-1", events.EventCommentAdded, "a", epoch.Add(time.Duration(i)*time.Second), nil)))
	}

	batch, err := s.ReadBatch(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.EqualValues(t, 1, batch[0].Position)

	batch, err = s.ReadBatch(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.EqualValues(t, 5, batch[0].Position)

	batch, err = s.ReadBatch(ctx, 5, 10)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestInboxFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(clock.Fake(epoch))
	require.NoError(t, s.EnsureSubscription(ctx, "sub"))
	_, err := s.AcquireLease(ctx, "sub", "me", time.Minute)
	require.NoError(t, err)

	rows := []*domain.TicketReadModel{
		{TicketID: "t-1", CustomerID: "c1", Subject: "Printer on fire", Status: domain.TicketStatusOpen},
		{TicketID: "t-2", CustomerID: "c1", Subject: "Login broken", Status: domain.TicketStatusResolved},
		{TicketID: "t-3", CustomerID: "c2", Subject: "printer jam", Status: domain.TicketStatusOpen},
	}
	for i, r := range rows {
		r.UpdatedAt = epoch.Add(time.Duration(i) * time.Minute)
		r.SortKey = domain.ReadModelSortKey(r.UpdatedAt, r.TicketID)
	}
	require.NoError(t, s.Commit(ctx, repository.FeedCommit{Subscription: "sub", Owner: "me", To: 3, Rows: rows}))

	all, err := s.Inbox(ctx, repository.InboxFilter{})
	require.NoError(t, err)
	require.Equal(t, []string{"t-3", "t-2", "t-1"}, ids(all))

	byCustomer, err := s.Inbox(ctx, repository.InboxFilter{CustomerID: "c1"})
	require.NoError(t, err)
	require.Equal(t, []string{"t-2", "t-1"}, ids(byCustomer))

	byStatus, err := s.Inbox(ctx, repository.InboxFilter{Status: domain.TicketStatusOpen})
	require.NoError(t, err)
	require.Equal(t, []string{"t-3", "t-1"}, ids(byStatus))

	search, err := s.Inbox(ctx, repository.InboxFilter{Query: "PRINTER"})
	require.NoError(t, err)
	require.Equal(t, []string{"t-3", "t-1"}, ids(search))

	page, err := s.Inbox(ctx, repository.InboxFilter{BeforeSortKey: all[0].SortKey, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"t-2"}, ids(page))
}

func ids(rows []domain.TicketReadModel) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.TicketID)
	}
	return out
}
