package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
)

// FeedEntry is an event together with its position in the feed.
type FeedEntry struct {
	Position int64
	Event    events.ActivityEvent
}

// Subscription is a named, durable feed consumer checkpoint.
type Subscription struct {
	Name           string
	Position       int64
	LeaseOwner     string
	LeaseExpiresAt time.Time
}

// FeedCommit advances a subscription from From to To and stores the folded
// read-model rows in the same transaction.
type FeedCommit struct {
	Subscription string
	Owner        string
	From         int64
	To           int64
	LeaseTTL     time.Duration
	Rows         []*domain.TicketReadModel
	// Stage runs inside the commit after the checkpoint has been fenced.
	// An error aborts the whole commit. Stores without transactions pass
	// a nil tx.
	Stage func(ctx context.Context, tx pgx.Tx) error
}

// FeedRepository is the projector's view of the activity feed, its
// subscriptions and the read-model table it maintains.
type FeedRepository interface {
	// EnsureSubscription registers name if it does not exist yet. A
	// concurrent registration by another instance counts as success.
	EnsureSubscription(ctx context.Context, name string) error
	// AcquireLease takes or renews the lease on name for owner. A live
	// lease held by someone else yields ErrLeaseHeld; an unregistered name
	// yields ErrNotFound.
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (Subscription, error)
	ReleaseLease(ctx context.Context, name, owner string) error
	ReadBatch(ctx context.Context, after int64, limit int) ([]FeedEntry, error)
	LoadReadModels(ctx context.Context, ticketIDs []string) (map[string]*domain.TicketReadModel, error)
	// Commit is fenced on owner and the expected From position; a mismatch
	// yields ErrLeaseLost and nothing is written.
	Commit(ctx context.Context, commit FeedCommit) error
	// WaitForEvents blocks until an append is signalled or timeout elapses.
	WaitForEvents(ctx context.Context, timeout time.Duration) error
	// Reset rewinds name to the start of the feed and clears the read
	// models so that they are rebuilt from scratch.
	Reset(ctx context.Context, name, owner string) error
}

type feedRepository struct {
	pool *pgxpool.Pool
}

// NewFeedRepository instantiates repository.
func NewFeedRepository(pool *pgxpool.Pool) FeedRepository {
	return &feedRepository{pool: pool}
}

func (r *feedRepository) EnsureSubscription(ctx context.Context, name string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM feed_subscriptions WHERE name=$1)`, name,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO feed_subscriptions (name) VALUES ($1)`, name)
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

func (r *feedRepository) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (Subscription, error) {
	const query = `
        UPDATE feed_subscriptions
        SET lease_owner=$2, lease_expires_at=NOW() + ($3 * INTERVAL '1 millisecond'), updated_at=NOW()
        WHERE name=$1 AND (lease_owner IS NULL OR lease_owner=$2 OR lease_expires_at < NOW())
        RETURNING name, position, lease_owner, lease_expires_at`
	var sub Subscription
	err := r.pool.QueryRow(ctx, query, name, owner, ttl.Milliseconds()).Scan(
		&sub.Name,
		&sub.Position,
		&sub.LeaseOwner,
		&sub.LeaseExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM feed_subscriptions WHERE name=$1)`, name,
		).Scan(&exists); err != nil {
			return Subscription{}, err
		}
		if !exists {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, ErrLeaseHeld
	}
	if err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

func (r *feedRepository) ReleaseLease(ctx context.Context, name, owner string) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE feed_subscriptions SET lease_owner=NULL, lease_expires_at=NULL, updated_at=NOW()
        WHERE name=$1 AND lease_owner=$2`, name, owner)
	return err
}

func (r *feedRepository) ReadBatch(ctx context.Context, after int64, limit int) ([]FeedEntry, error) {
	const query = `
        SELECT position, id, ticket_id, type, actor, occurred_at, payload, sort_key
        FROM activity_events
        WHERE position > $1
        ORDER BY position ASC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedEntries(rows)
}

func (r *feedRepository) LoadReadModels(ctx context.Context, ticketIDs []string) (map[string]*domain.TicketReadModel, error) {
	out := make(map[string]*domain.TicketReadModel, len(ticketIDs))
	if len(ticketIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+readModelColumns+` FROM ticket_read_models WHERE ticket_id = ANY($1)`, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	models, err := scanReadModels(rows)
	if err != nil {
		return nil, err
	}
	for i := range models {
		out[models[i].TicketID] = &models[i]
	}
	return out, nil
}

const upsertReadModel = `
        INSERT INTO ticket_read_models (ticket_id, customer_id, subject, status, priority, created_at, updated_at,
                                        comment_count, last_comment_preview, tags, sort_key, last_event_sort_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (ticket_id) DO UPDATE SET
            customer_id=EXCLUDED.customer_id,
            subject=EXCLUDED.subject,
            status=EXCLUDED.status,
            priority=EXCLUDED.priority,
            created_at=EXCLUDED.created_at,
            updated_at=EXCLUDED.updated_at,
            comment_count=EXCLUDED.comment_count,
            last_comment_preview=EXCLUDED.last_comment_preview,
            tags=EXCLUDED.tags,
            sort_key=EXCLUDED.sort_key,
            last_event_sort_key=EXCLUDED.last_event_sort_key`

func (r *feedRepository) Commit(ctx context.Context, commit FeedCommit) error {
	const checkpoint = `
        UPDATE feed_subscriptions
        SET position=$4, lease_expires_at=NOW() + ($5 * INTERVAL '1 millisecond'), updated_at=NOW()
        WHERE name=$1 AND lease_owner=$2 AND position=$3`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, checkpoint,
			commit.Subscription, commit.Owner, commit.From, commit.To, commit.LeaseTTL.Milliseconds())
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrLeaseLost
		}
		if err := upsertReadModels(ctx, tx, commit.Rows); err != nil {
			return err
		}
		if commit.Stage != nil {
			return commit.Stage(ctx, tx)
		}
		return nil
	})
}

func upsertReadModels(ctx context.Context, tx pgx.Tx, rows []*domain.TicketReadModel) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range rows {
		batch.Queue(upsertReadModel,
			m.TicketID,
			m.CustomerID,
			m.Subject,
			m.Status,
			m.Priority,
			m.CreatedAt,
			m.UpdatedAt,
			m.CommentCount,
			m.LastCommentPreview,
			nonNilTags(m.Tags),
			m.SortKey,
			m.LastEventSortKey,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func (r *feedRepository) WaitForEvents(ctx context.Context, timeout time.Duration) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+FeedChannel); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, waitErr := conn.Conn().WaitForNotification(waitCtx)

	if conn.Conn().IsClosed() {
		// The pool discards closed connections on release.
		return ctx.Err()
	}
	if _, err := conn.Exec(context.Background(), "UNLISTEN "+FeedChannel); err != nil {
		return err
	}
	if waitErr != nil && waitCtx.Err() == nil {
		return waitErr
	}
	return ctx.Err()
}

func (r *feedRepository) Reset(ctx context.Context, name, owner string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
            UPDATE feed_subscriptions SET position=0, updated_at=NOW()
            WHERE name=$1 AND lease_owner=$2`, name, owner)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrLeaseLost
		}
		_, err = tx.Exec(ctx, `DELETE FROM ticket_read_models`)
		return err
	})
}
