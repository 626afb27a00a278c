package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "Open"
	TicketStatusPending  TicketStatus = "Pending"
	TicketStatusResolved TicketStatus = "Resolved"
	TicketStatusClosed   TicketStatus = "Closed"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "Low"
	TicketPriorityNormal TicketPriority = "Normal"
	TicketPriorityHigh   TicketPriority = "High"
	TicketPriorityUrgent TicketPriority = "Urgent"
)

var ticketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusPending,
	TicketStatusResolved,
	TicketStatusClosed,
}

var ticketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityNormal,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

// ParseStatus matches s against the known statuses, ignoring case and
// surrounding whitespace.
func ParseStatus(s string) (TicketStatus, bool) {
	s = strings.TrimSpace(s)
	for _, status := range ticketStatuses {
		if strings.EqualFold(s, string(status)) {
			return status, true
		}
	}
	return "", false
}

// ParsePriority matches s against the known priorities, ignoring case and
// surrounding whitespace.
func ParsePriority(s string) (TicketPriority, bool) {
	s = strings.TrimSpace(s)
	for _, priority := range ticketPriorities {
		if strings.EqualFold(s, string(priority)) {
			return priority, true
		}
	}
	return "", false
}

// TicketComment is a single entry in a ticket's conversation.
type TicketComment struct {
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Ticket is the aggregate for support requests. Version is the optimistic
// concurrency token; it is bumped by every successful write.
type Ticket struct {
	ID          string
	CustomerID  string
	Subject     string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Tags        []string
	Comments    []TicketComment
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// Clone returns a deep copy of the ticket. Tags are never nil on the copy.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Tags = append([]string{}, t.Tags...)
	cp.Comments = append([]TicketComment(nil), t.Comments...)
	return &cp
}

// NormalizeTags trims tags, drops blanks and removes case-insensitive
// duplicates keeping the first spelling. The result is never nil.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// SameTagSet reports whether a and b contain the same tags ignoring case,
// order and duplicates.
func SameTagSet(a, b []string) bool {
	left := tagSet(a)
	right := tagSet(b)
	if len(left) != len(right) {
		return false
	}
	for tag := range left {
		if _, ok := right[tag]; !ok {
			return false
		}
	}
	return true
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range NormalizeTags(tags) {
		set[strings.ToLower(tag)] = struct{}{}
	}
	return set
}
