package projection

import (
	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
)

// Result reports what Apply did with an event.
type Result int

const (
	// Applied means the row changed and its watermark advanced.
	Applied Result = iota
	// Duplicate means the event is at or before the row's watermark.
	Duplicate
	// Ignored means the event type does not affect read models.
	Ignored
)

// Apply folds evt into row. Events at or before row.LastEventSortKey are
// redeliveries and leave the row untouched. Rejected transitions are audit
// only.
func Apply(row *domain.TicketReadModel, evt events.ActivityEvent) Result {
	switch evt.Type {
	case events.EventTicketCreated, events.EventTicketUpdated, events.EventCommentAdded, events.EventStatusChanged:
	default:
		return Ignored
	}
	if row.LastEventSortKey != "" && evt.SortKey <= row.LastEventSortKey {
		return Duplicate
	}

	switch evt.Type {
	case events.EventTicketCreated:
		if v, ok := evt.String(events.PayloadCustomerID); ok {
			row.CustomerID = v
		}
		if v, ok := evt.String(events.PayloadSubject); ok {
			row.Subject = v
		}
		if v, ok := evt.String(events.PayloadPriority); ok {
			if p, ok := domain.ParsePriority(v); ok {
				row.Priority = p
			}
		}
		if tags, ok := evt.Strings(events.PayloadTags); ok {
			row.Tags = append([]string{}, tags...)
		}
		row.CreatedAt = evt.At
		row.UpdatedAt = evt.At

	case events.EventStatusChanged:
		if v, ok := evt.String(events.PayloadTo); ok {
			if s, ok := domain.ParseStatus(v); ok {
				row.Status = s
			}
		}
		row.UpdatedAt = evt.At

	case events.EventTicketUpdated:
		if v, ok := evt.String(events.PayloadSubject); ok && v != "" {
			row.Subject = v
		}
		if v, ok := evt.String(events.PayloadPriority); ok && v != "" {
			if p, ok := domain.ParsePriority(v); ok {
				row.Priority = p
			}
		}
		if tags, ok := evt.Strings(events.PayloadTags); ok && len(tags) > 0 {
			row.Tags = append([]string{}, tags...)
		}
		row.UpdatedAt = evt.At

	case events.EventCommentAdded:
		row.CommentCount++
		if v, ok := evt.String(events.PayloadMessagePreview); ok {
			row.LastCommentPreview = v
		}
		row.UpdatedAt = evt.At
	}

	row.LastEventSortKey = evt.SortKey
	row.SortKey = domain.ReadModelSortKey(row.UpdatedAt, row.TicketID)
	return Applied
}
