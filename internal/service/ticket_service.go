package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/idempotency"
	"github.com/supportdesk/ticket-lifecycle/internal/repository"
	"github.com/supportdesk/ticket-lifecycle/internal/workflow"
	apperrors "github.com/supportdesk/ticket-lifecycle/pkg/errorutil"
)

const commentPreviewLength = 120

// Workflow decides status transitions.
type Workflow interface {
	CanFire(ticket *domain.Ticket, trigger workflow.Trigger) bool
	Fire(ticket *domain.Ticket, trigger workflow.Trigger) (domain.TicketStatus, error)
	PermittedTriggers(ticket *domain.Ticket) []workflow.Trigger
}

// TicketService handles ticket commands. Each command loads the ticket,
// mutates a copy and persists it together with exactly one activity event.
type TicketService struct {
	tickets  repository.TicketRepository
	activity repository.ActivityRepository
	guard    *idempotency.Guard
	workflow Workflow
	clock    clock.Clock
	logger   *zap.Logger

	stampMu   sync.Mutex
	lastStamp time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	ActivityRepo repository.ActivityRepository
	Guard        *idempotency.Guard
	Workflow     Workflow
	Clock        clock.Clock
	Logger       *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	CustomerID     string
	Subject        string
	Description    string
	Priority       string
	Tags           []string
	IdempotencyKey string
}

// TicketUpdateInput describes an update. Without Replace, nil fields are
// left unchanged and a non-nil empty Tags clears the tag set. With Replace
// the input is the whole new state: a nil Description or Tags clears it and
// a nil Priority resets it to Normal.
type TicketUpdateInput struct {
	Subject     *string
	Description *string
	Priority    *string
	Tags        []string
	Replace     bool
}

func (in TicketUpdateInput) replacement() TicketUpdateInput {
	empty := ""
	priority := string(domain.TicketPriorityNormal)
	if in.Subject == nil {
		in.Subject = &empty
	}
	if in.Description == nil {
		in.Description = &empty
	}
	if in.Priority == nil {
		in.Priority = &priority
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	return in
}

// CommentInput describes a new comment.
type CommentInput struct {
	Author  string
	Message string
}

// TransitionInput names a workflow trigger and an optional note.
type TransitionInput struct {
	Trigger string
	Reason  string
}

// TransitionResult describes an accepted status change.
type TransitionResult struct {
	TicketID string
	From     domain.TicketStatus
	To       domain.TicketStatus
	Trigger  workflow.Trigger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Workflow == nil {
		deps.Workflow = workflow.New()
	}
	return &TicketService{
		tickets:  deps.TicketRepo,
		activity: deps.ActivityRepo,
		guard:    deps.Guard,
		workflow: deps.Workflow,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// CreateTicket creates a ticket. When the idempotency key was already used,
// the ticket created by the first request is returned and created is false.
func (s *TicketService) CreateTicket(ctx context.Context, actor string, input TicketCreateInput) (ticket *domain.Ticket, created bool, err error) {
	customerID := strings.TrimSpace(input.CustomerID)
	subject := strings.TrimSpace(input.Subject)
	if customerID == "" || subject == "" {
		return nil, false, apperrors.NewValidationError("customer_id and subject are required", nil)
	}
	priority := domain.TicketPriorityNormal
	if strings.TrimSpace(input.Priority) != "" {
		p, ok := domain.ParsePriority(input.Priority)
		if !ok {
			return nil, false, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
		}
		priority = p
	}

	claim, err := s.guard.Claim(ctx, input.IdempotencyKey)
	if err != nil {
		if errors.Is(err, idempotency.ErrInconsistent) {
			return nil, false, apperrors.NewInconsistentState("idempotency receipt did not resolve", err)
		}
		return nil, false, apperrors.NewInternalError(err)
	}
	if claim.Outcome == idempotency.OutcomeResolved {
		existing, err := s.tickets.GetByID(ctx, claim.TicketID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, apperrors.NewInconsistentState("idempotency receipt references a missing ticket", err)
		}
		if err != nil {
			return nil, false, apperrors.NewInternalError(err)
		}
		return existing, false, nil
	}

	now := s.stamp(time.Time{})
	ticket = &domain.Ticket{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		Subject:     subject,
		Description: input.Description,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		Tags:        domain.NormalizeTags(input.Tags),
		Comments:    []domain.TicketComment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	evt := events.NewActivityEvent(ticket.ID, events.EventTicketCreated, actor, now, map[string]any{
		events.PayloadCustomerID: ticket.CustomerID,
		events.PayloadSubject:    ticket.Subject,
		events.PayloadPriority:   string(ticket.Priority),
		events.PayloadTags:       append([]string{}, ticket.Tags...),
	})
	if err := s.tickets.Create(ctx, ticket, evt); err != nil {
		return nil, false, mapRepositoryError(err, ticket.ID)
	}

	if err := s.guard.Finalize(ctx, claim, ticket.ID); err != nil {
		s.logger.Error("finalize idempotency receipt",
			zap.String("receipt_id", claim.ReceiptID),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
	return ticket, true, nil
}

// GetTicket returns the ticket and the triggers that can fire right now.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, []workflow.Trigger, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, s.workflow.PermittedTriggers(ticket), nil
}

// UpdateTicket applies non-status field changes. A request that changes
// nothing returns the stored ticket without writing or emitting an event.
func (s *TicketService) UpdateTicket(ctx context.Context, actor, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if input.Replace {
		input = input.replacement()
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	next := ticket.Clone()
	changes := map[string]any{}

	if input.Subject != nil {
		subject := strings.TrimSpace(*input.Subject)
		if subject == "" {
			return nil, apperrors.NewValidationError("subject must not be empty", nil)
		}
		if subject != ticket.Subject {
			next.Subject = subject
			changes[events.PayloadSubject] = subject
		}
	}
	if input.Description != nil && *input.Description != ticket.Description {
		next.Description = *input.Description
		changes[events.PayloadDescriptionChanged] = true
	}
	if input.Priority != nil {
		priority, ok := domain.ParsePriority(*input.Priority)
		if !ok {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
		}
		if priority != ticket.Priority {
			next.Priority = priority
			changes[events.PayloadPriority] = string(priority)
		}
	}
	if input.Tags != nil && !domain.SameTagSet(ticket.Tags, input.Tags) {
		next.Tags = domain.NormalizeTags(input.Tags)
		changes[events.PayloadTags] = append([]string{}, next.Tags...)
	}

	if len(changes) == 0 {
		return ticket, nil
	}

	at := s.nextTimestamp(ticket)
	next.UpdatedAt = at
	evt := events.NewActivityEvent(ticket.ID, events.EventTicketUpdated, actor, at, changes)
	if err := s.tickets.Update(ctx, next, evt); err != nil {
		return nil, mapRepositoryError(err, ticket.ID)
	}
	return next, nil
}

// AddComment appends a comment and always emits CommentAdded. A blank
// author defaults to the acting user.
func (s *TicketService) AddComment(ctx context.Context, actor, ticketID string, input CommentInput) (*domain.Ticket, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, apperrors.NewValidationError("message is required", nil)
	}
	author := strings.TrimSpace(input.Author)
	if author == "" {
		author = actor
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	at := s.nextTimestamp(ticket)
	next := ticket.Clone()
	next.Comments = append(next.Comments, domain.TicketComment{Author: author, Message: message, CreatedAt: at})
	next.UpdatedAt = at

	evt := events.NewActivityEvent(ticket.ID, events.EventCommentAdded, actor, at, map[string]any{
		events.PayloadAuthor:         author,
		events.PayloadMessagePreview: stringPreview(message, commentPreviewLength),
	})
	if err := s.tickets.Update(ctx, next, evt); err != nil {
		return nil, mapRepositoryError(err, ticket.ID)
	}
	return next, nil
}

// ApplyTrigger runs a workflow trigger. Rejections leave the ticket as it
// was and are recorded as a RejectedTransition event.
func (s *TicketService) ApplyTrigger(ctx context.Context, actor, ticketID string, input TransitionInput) (*TransitionResult, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	from := ticket.Status

	trigger, err := workflow.ParseTrigger(input.Trigger)
	if err != nil {
		if recErr := s.recordRejection(ctx, actor, ticket, map[string]any{
			events.PayloadReason:  events.RejectReasonUnknownTrigger,
			events.PayloadTrigger: input.Trigger,
			events.PayloadFrom:    string(from),
			events.PayloadMessage: "Trigger was not recognized.",
			events.PayloadNote:    input.Reason,
		}); recErr != nil {
			return nil, recErr
		}
		return nil, apperrors.NewUnknownTrigger(input.Trigger)
	}

	details := map[string]any{"trigger": string(trigger), "from": string(from)}

	if !s.workflow.CanFire(ticket, trigger) {
		if recErr := s.recordRejection(ctx, actor, ticket, map[string]any{
			events.PayloadReason:       events.RejectReasonNotPermitted,
			events.PayloadTrigger:      string(trigger),
			events.PayloadFrom:         string(from),
			events.PayloadMessage:      "Transition not permitted or guard failed.",
			events.PayloadNote:         input.Reason,
			events.PayloadCommentCount: len(ticket.Comments),
		}); recErr != nil {
			return nil, recErr
		}
		return nil, apperrors.NewTransitionRejected("transition not permitted or guard failed", details)
	}

	next := ticket.Clone()
	to, err := s.workflow.Fire(next, trigger)
	if err != nil {
		s.logger.Warn("workflow fire failed after permit",
			zap.String("ticket_id", ticket.ID),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		if recErr := s.recordRejection(ctx, actor, ticket, map[string]any{
			events.PayloadReason:  events.RejectReasonException,
			events.PayloadTrigger: string(trigger),
			events.PayloadFrom:    string(from),
			events.PayloadMessage: err.Error(),
			events.PayloadNote:    input.Reason,
		}); recErr != nil {
			return nil, recErr
		}
		return nil, apperrors.NewTransitionFailed(err, details)
	}

	at := s.nextTimestamp(ticket)
	next.Status = to
	next.UpdatedAt = at
	evt := events.NewActivityEvent(ticket.ID, events.EventStatusChanged, actor, at, map[string]any{
		events.PayloadFrom:    string(from),
		events.PayloadTo:      string(to),
		events.PayloadTrigger: string(trigger),
		events.PayloadNote:    input.Reason,
	})
	if err := s.tickets.Update(ctx, next, evt); err != nil {
		return nil, mapRepositoryError(err, ticket.ID)
	}
	return &TransitionResult{TicketID: ticket.ID, From: from, To: to, Trigger: trigger}, nil
}

func (s *TicketService) recordRejection(ctx context.Context, actor string, ticket *domain.Ticket, payload map[string]any) error {
	evt := events.NewActivityEvent(ticket.ID, events.EventRejectedTransition, actor, s.nextTimestamp(ticket), payload)
	if err := s.activity.Append(ctx, evt); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepositoryError(err, ticketID)
	}
	return ticket, nil
}

// nextTimestamp keeps a ticket's UpdatedAt and its event stream strictly
// increasing even when the clock stalls or steps back.
func (s *TicketService) nextTimestamp(ticket *domain.Ticket) time.Time {
	return s.stamp(ticket.UpdatedAt.Add(time.Microsecond))
}

// stamp returns the current time at microsecond precision, no earlier than
// floor and strictly after any stamp this service issued before.
func (s *TicketService) stamp(floor time.Time) time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	at := s.clock.Now().UTC().Truncate(time.Microsecond)
	if at.Before(floor) {
		at = floor.UTC()
	}
	if !s.lastStamp.IsZero() && !at.After(s.lastStamp) {
		at = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = at
	return at
}

func mapRepositoryError(err error, ticketID string) error {
	details := map[string]any{"ticket_id": ticketID}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", details)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict("ticket was modified concurrently; reload and retry", details)
	default:
		return apperrors.NewInternalError(err)
	}
}

func stringPreview(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max])
}
