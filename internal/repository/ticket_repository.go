package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
)

// TicketRepository encapsulates ticket persistence. Every write appends
// exactly one activity event in the same transaction.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// Create inserts the ticket and its creation event. ticket.Version is
	// set to 1 on success.
	Create(ctx context.Context, ticket *domain.Ticket, evt events.ActivityEvent) error
	// Update stores the ticket if the persisted version still equals
	// ticket.Version, then increments ticket.Version. A stale version
	// yields ErrConflict.
	Update(ctx context.Context, ticket *domain.Ticket, evt events.ActivityEvent) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, customer_id, subject, description, status, priority, tags, comments,
               created_at, updated_at, version
        FROM tickets WHERE id=$1`
	var (
		ticket   domain.Ticket
		comments []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.CustomerID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Tags,
		&comments,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(comments, &ticket.Comments); err != nil {
		return nil, fmt.Errorf("decode comments for ticket %s: %w", id, err)
	}
	ticket.CreatedAt = ticket.CreatedAt.UTC()
	ticket.UpdatedAt = ticket.UpdatedAt.UTC()
	return &ticket, nil
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, evt events.ActivityEvent) error {
	comments, err := marshalComments(ticket.Comments)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (id, customer_id, subject, description, status, priority, tags, comments,
                             created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1)`
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			ticket.ID,
			ticket.CustomerID,
			ticket.Subject,
			ticket.Description,
			ticket.Status,
			ticket.Priority,
			nonNilTags(ticket.Tags),
			comments,
			ticket.CreatedAt,
			ticket.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		return appendEvent(ctx, tx, evt)
	})
	if err != nil {
		return err
	}
	ticket.Version = 1
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, evt events.ActivityEvent) error {
	comments, err := marshalComments(ticket.Comments)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET subject=$1, description=$2, status=$3, priority=$4, tags=$5, comments=$6,
            updated_at=$7, version=version+1
        WHERE id=$8 AND version=$9`
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, query,
			ticket.Subject,
			ticket.Description,
			ticket.Status,
			ticket.Priority,
			nonNilTags(ticket.Tags),
			comments,
			ticket.UpdatedAt,
			ticket.ID,
			ticket.Version,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrConflict
		}
		return appendEvent(ctx, tx, evt)
	})
	if err != nil {
		return err
	}
	ticket.Version++
	return nil
}

// nonNilTags keeps pgx from encoding an empty tag list as NULL.
func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func marshalComments(comments []domain.TicketComment) ([]byte, error) {
	if comments == nil {
		comments = []domain.TicketComment{}
	}
	raw, err := json.Marshal(comments)
	if err != nil {
		return nil, fmt.Errorf("encode comments: %w", err)
	}
	return raw, nil
}
