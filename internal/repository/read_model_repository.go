package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
)

// InboxFilter captures inbox search parameters. Rows come back in
// descending sort key order, strictly before BeforeSortKey when set.
type InboxFilter struct {
	CustomerID    string
	Status        domain.TicketStatus
	Query         string
	BeforeSortKey string
	Limit         int
}

// ReadModelRepository serves queries over the projected inbox rows.
type ReadModelRepository interface {
	GetByTicketID(ctx context.Context, ticketID string) (*domain.TicketReadModel, error)
	Inbox(ctx context.Context, filter InboxFilter) ([]domain.TicketReadModel, error)
}

type readModelRepository struct {
	pool *pgxpool.Pool
}

// NewReadModelRepository instantiates repository.
func NewReadModelRepository(pool *pgxpool.Pool) ReadModelRepository {
	return &readModelRepository{pool: pool}
}

const readModelColumns = `ticket_id, customer_id, subject, status, priority, created_at, updated_at,
               comment_count, last_comment_preview, tags, sort_key, last_event_sort_key`

func (r *readModelRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.TicketReadModel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+readModelColumns+` FROM ticket_read_models WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	models, err := scanReadModels(rows)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, ErrNotFound
	}
	return &models[0], nil
}

func (r *readModelRepository) Inbox(ctx context.Context, filter InboxFilter) ([]domain.TicketReadModel, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, q)
		clauses = append(clauses, fmt.Sprintf("to_tsvector('simple', subject) @@ plainto_tsquery('simple', $%d)", len(args)))
	}
	if filter.BeforeSortKey != "" {
		args = append(args, filter.BeforeSortKey)
		clauses = append(clauses, fmt.Sprintf("sort_key < $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}

	query := fmt.Sprintf(`SELECT %s FROM ticket_read_models WHERE %s ORDER BY sort_key DESC LIMIT %d`,
		readModelColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadModels(rows)
}

func scanReadModels(rows pgx.Rows) ([]domain.TicketReadModel, error) {
	var result []domain.TicketReadModel
	for rows.Next() {
		var m domain.TicketReadModel
		if err := rows.Scan(
			&m.TicketID,
			&m.CustomerID,
			&m.Subject,
			&m.Status,
			&m.Priority,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.CommentCount,
			&m.LastCommentPreview,
			&m.Tags,
			&m.SortKey,
			&m.LastEventSortKey,
		); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		m.UpdatedAt = m.UpdatedAt.UTC()
		result = append(result, m)
	}
	return result, rows.Err()
}

