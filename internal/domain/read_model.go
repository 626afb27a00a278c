package domain

import "time"

// SortKeyTimeLayout renders timestamps at a fixed width so that sort keys
// compare lexicographically in time order.
const SortKeyTimeLayout = "2006-01-02T15:04:05.0000000Z07:00"

// TicketReadModel is the inbox projection of a ticket, maintained by the
// projector from the activity feed.
type TicketReadModel struct {
	TicketID           string
	CustomerID         string
	Subject            string
	Status             TicketStatus
	Priority           TicketPriority
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CommentCount       int
	LastCommentPreview string
	Tags               []string
	SortKey            string
	// LastEventSortKey is the sort key of the newest event folded into the
	// row. Events at or before it are redeliveries and are skipped.
	LastEventSortKey string
}

// NewTicketReadModel returns the default row for a ticket seen for the first
// time.
func NewTicketReadModel(ticketID string) *TicketReadModel {
	return &TicketReadModel{
		TicketID: ticketID,
		Status:   TicketStatusOpen,
		Priority: TicketPriorityNormal,
		Tags:     []string{},
		SortKey:  ReadModelSortKey(time.Time{}, ticketID),
	}
}

// ReadModelSortKey builds the inbox ordering key "updatedAt|ticketId".
func ReadModelSortKey(updatedAt time.Time, ticketID string) string {
	return updatedAt.UTC().Format(SortKeyTimeLayout) + "|" + ticketID
}

// Clone returns a deep copy of the row.
func (m *TicketReadModel) Clone() *TicketReadModel {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Tags = append([]string{}, m.Tags...)
	return &cp
}
