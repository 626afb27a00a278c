package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/ticket-lifecycle/internal/events"
)

// FeedChannel is the NOTIFY channel signalled on every append.
const FeedChannel = "ticket_activity"

// feedAppendLock serializes appends so that feed positions become visible
// in commit order. Without it a reader could checkpoint past a position
// whose transaction has not committed yet.
const feedAppendLock int64 = 0x7469636b6574

// TimelineFilter selects a page of one ticket's events in ascending sort
// key order.
type TimelineFilter struct {
	TicketID     string
	AfterSortKey string
	Limit        int
}

// ActivityRepository reads and appends activity events.
type ActivityRepository interface {
	// Append records an event that is not accompanied by a ticket write,
	// such as a rejected transition.
	Append(ctx context.Context, evt events.ActivityEvent) error
	ListByTicket(ctx context.Context, filter TimelineFilter) ([]events.ActivityEvent, error)
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository instantiates repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Append(ctx context.Context, evt events.ActivityEvent) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return appendEvent(ctx, tx, evt)
	})
}

func (r *activityRepository) ListByTicket(ctx context.Context, filter TimelineFilter) ([]events.ActivityEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT position, id, ticket_id, type, actor, occurred_at, payload, sort_key
        FROM activity_events
        WHERE ticket_id=$1 AND sort_key > $2
        ORDER BY sort_key ASC
        LIMIT $3`
	rows, err := r.pool.Query(ctx, query, filter.TicketID, filter.AfterSortKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanFeedEntries(rows)
	if err != nil {
		return nil, err
	}
	out := make([]events.ActivityEvent, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Event)
	}
	return out, nil
}

func appendEvent(ctx context.Context, tx pgx.Tx, evt events.ActivityEvent) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode payload for event %s: %w", evt.ID, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, feedAppendLock); err != nil {
		return fmt.Errorf("lock feed: %w", err)
	}
	const query = `
        INSERT INTO activity_events (id, ticket_id, type, actor, occurred_at, payload, sort_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.Exec(ctx, query,
		evt.ID,
		evt.TicketID,
		evt.Type,
		evt.Actor,
		evt.At,
		payload,
		evt.SortKey,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, FeedChannel, evt.TicketID); err != nil {
		return fmt.Errorf("notify feed: %w", err)
	}
	return nil
}

func scanFeedEntries(rows pgx.Rows) ([]FeedEntry, error) {
	var result []FeedEntry
	for rows.Next() {
		var (
			entry   FeedEntry
			payload []byte
		)
		if err := rows.Scan(
			&entry.Position,
			&entry.Event.ID,
			&entry.Event.TicketID,
			&entry.Event.Type,
			&entry.Event.Actor,
			&entry.Event.At,
			&payload,
			&entry.Event.SortKey,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &entry.Event.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for event %s: %w", entry.Event.ID, err)
		}
		entry.Event.At = entry.Event.At.UTC()
		result = append(result, entry)
	}
	return result, rows.Err()
}
