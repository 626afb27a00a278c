package dto

import (
	"time"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/service"
	"github.com/supportdesk/ticket-lifecycle/internal/workflow"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	CustomerID  string   `json:"customer_id"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
}

// UpdateTicketRequest payload. On PATCH omitted fields are left unchanged
// and an empty tags array clears the tags; on PUT omitted fields are
// cleared.
type UpdateTicketRequest struct {
	Subject     *string  `json:"subject"`
	Description *string  `json:"description"`
	Priority    *string  `json:"priority"`
	Tags        []string `json:"tags"`
}

// CommentRequest payload.
type CommentRequest struct {
	Author  string `json:"author"`
	Message string `json:"message"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Reason string `json:"reason"`
}

// CommentResponse represents one comment.
type CommentResponse struct {
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID                string                `json:"id"`
	CustomerID        string                `json:"customer_id"`
	Subject           string                `json:"subject"`
	Description       string                `json:"description"`
	Status            domain.TicketStatus   `json:"status"`
	Priority          domain.TicketPriority `json:"priority"`
	Tags              []string              `json:"tags"`
	Comments          []CommentResponse     `json:"comments"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	Version           int64                 `json:"version"`
	PermittedTriggers []workflow.Trigger    `json:"permitted_triggers,omitempty"`
}

// TransitionResponse reports an accepted status change.
type TransitionResponse struct {
	TicketID string              `json:"ticket_id"`
	From     domain.TicketStatus `json:"from"`
	To       domain.TicketStatus `json:"to"`
	Trigger  workflow.Trigger    `json:"trigger"`
}

// InboxItem is one inbox row.
type InboxItem struct {
	TicketID           string                `json:"ticket_id"`
	CustomerID         string                `json:"customer_id"`
	Subject            string                `json:"subject"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
	CommentCount       int                   `json:"comment_count"`
	LastCommentPreview string                `json:"last_comment_preview,omitempty"`
	Tags               []string              `json:"tags"`
}

// TimelineEntry is one activity event.
type TimelineEntry struct {
	ID      string           `json:"id"`
	Type    events.EventType `json:"type"`
	Actor   string           `json:"actor"`
	At      time.Time        `json:"at"`
	Payload map[string]any   `json:"payload"`
}

// PageResponse wraps a page of items.
type PageResponse[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(ticket *domain.Ticket, permitted []workflow.Trigger) TicketResponse {
	comments := make([]CommentResponse, 0, len(ticket.Comments))
	for _, c := range ticket.Comments {
		comments = append(comments, CommentResponse{Author: c.Author, Message: c.Message, CreatedAt: c.CreatedAt})
	}
	tags := ticket.Tags
	if tags == nil {
		tags = []string{}
	}
	return TicketResponse{
		ID:                ticket.ID,
		CustomerID:        ticket.CustomerID,
		Subject:           ticket.Subject,
		Description:       ticket.Description,
		Status:            ticket.Status,
		Priority:          ticket.Priority,
		Tags:              tags,
		Comments:          comments,
		CreatedAt:         ticket.CreatedAt,
		UpdatedAt:         ticket.UpdatedAt,
		Version:           ticket.Version,
		PermittedTriggers: permitted,
	}
}

// NewTransitionResponse maps a transition result.
func NewTransitionResponse(res *service.TransitionResult) TransitionResponse {
	return TransitionResponse{TicketID: res.TicketID, From: res.From, To: res.To, Trigger: res.Trigger}
}

// NewInboxPage maps a page of read models.
func NewInboxPage(page service.Page[domain.TicketReadModel]) PageResponse[InboxItem] {
	items := make([]InboxItem, 0, len(page.Items))
	for _, m := range page.Items {
		tags := m.Tags
		if tags == nil {
			tags = []string{}
		}
		items = append(items, InboxItem{
			TicketID:           m.TicketID,
			CustomerID:         m.CustomerID,
			Subject:            m.Subject,
			Status:             m.Status,
			Priority:           m.Priority,
			CreatedAt:          m.CreatedAt,
			UpdatedAt:          m.UpdatedAt,
			CommentCount:       m.CommentCount,
			LastCommentPreview: m.LastCommentPreview,
			Tags:               tags,
		})
	}
	return PageResponse[InboxItem]{Data: items, NextCursor: page.NextCursor}
}

// NewTimelinePage maps a page of events.
func NewTimelinePage(page service.Page[events.ActivityEvent]) PageResponse[TimelineEntry] {
	items := make([]TimelineEntry, 0, len(page.Items))
	for _, evt := range page.Items {
		payload := evt.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		items = append(items, TimelineEntry{ID: evt.ID, Type: evt.Type, Actor: evt.Actor, At: evt.At, Payload: payload})
	}
	return PageResponse[TimelineEntry]{Data: items, NextCursor: page.NextCursor}
}
