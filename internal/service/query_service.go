package service

import (
	"context"
	"strings"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/repository"
	"github.com/supportdesk/ticket-lifecycle/pkg/cursor"
	apperrors "github.com/supportdesk/ticket-lifecycle/pkg/errorutil"
)

const (
	defaultInboxLimit    = 25
	maxInboxLimit        = 100
	defaultTimelineLimit = 100
	maxTimelineLimit     = 500

	inboxCursorScope = "inbox"
)

func timelineCursorScope(ticketID string) string {
	return "timeline/" + ticketID
}

// Page is one slice of a keyset-paginated listing. NextCursor is empty on
// the last page.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// InboxQuery filters the inbox. Zero values mean no filter.
type InboxQuery struct {
	Limit      int
	Cursor     string
	CustomerID string
	Status     string
	Text       string
}

// TimelineQuery pages through one ticket's activity.
type TimelineQuery struct {
	Limit  int
	Cursor string
}

// QueryService serves inbox and timeline reads.
type QueryService struct {
	readModels repository.ReadModelRepository
	activity   repository.ActivityRepository
	codec      *cursor.Codec
}

// NewQueryService constructs the service.
func NewQueryService(readModels repository.ReadModelRepository, activity repository.ActivityRepository, codec *cursor.Codec) *QueryService {
	return &QueryService{readModels: readModels, activity: activity, codec: codec}
}

// Inbox lists read models newest first. An unreadable cursor restarts from
// the first page.
func (q *QueryService) Inbox(ctx context.Context, query InboxQuery) (Page[domain.TicketReadModel], error) {
	filter := repository.InboxFilter{
		CustomerID: strings.TrimSpace(query.CustomerID),
		Query:      strings.TrimSpace(query.Text),
	}
	if s := strings.TrimSpace(query.Status); s != "" {
		status, ok := domain.ParseStatus(s)
		if !ok {
			return Page[domain.TicketReadModel]{}, apperrors.NewValidationError("invalid status", map[string]any{"status": query.Status})
		}
		filter.Status = status
	}
	if key, ok := q.codec.Decode(inboxCursorScope, query.Cursor); ok {
		filter.BeforeSortKey = key
	}
	limit := clampLimit(query.Limit, defaultInboxLimit, maxInboxLimit)
	filter.Limit = limit + 1

	rows, err := q.readModels.Inbox(ctx, filter)
	if err != nil {
		return Page[domain.TicketReadModel]{}, apperrors.NewInternalError(err)
	}
	page := Page[domain.TicketReadModel]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.NextCursor = q.codec.Encode(inboxCursorScope, page.Items[limit-1].SortKey)
	}
	if page.Items == nil {
		page.Items = []domain.TicketReadModel{}
	}
	return page, nil
}

// Timeline lists a ticket's events oldest first, rejected transitions
// included. An unknown ticket yields an empty page. Cursors are bound to
// the ticket they were issued for.
func (q *QueryService) Timeline(ctx context.Context, ticketID string, query TimelineQuery) (Page[events.ActivityEvent], error) {
	filter := repository.TimelineFilter{TicketID: ticketID}
	if key, ok := q.codec.Decode(timelineCursorScope(ticketID), query.Cursor); ok {
		filter.AfterSortKey = key
	}
	limit := clampLimit(query.Limit, defaultTimelineLimit, maxTimelineLimit)
	filter.Limit = limit + 1

	evts, err := q.activity.ListByTicket(ctx, filter)
	if err != nil {
		return Page[events.ActivityEvent]{}, apperrors.NewInternalError(err)
	}
	page := Page[events.ActivityEvent]{Items: evts}
	if len(evts) > limit {
		page.Items = evts[:limit]
		page.NextCursor = q.codec.Encode(timelineCursorScope(ticketID), page.Items[limit-1].SortKey)
	}
	if page.Items == nil {
		page.Items = []events.ActivityEvent{}
	}
	return page, nil
}

func clampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	default:
		return limit
	}
}
