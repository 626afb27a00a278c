package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/ticket-lifecycle/internal/api/dto"
	"github.com/supportdesk/ticket-lifecycle/internal/auth"
	"github.com/supportdesk/ticket-lifecycle/internal/service"
	apperrors "github.com/supportdesk/ticket-lifecycle/pkg/errorutil"
)

// IdempotencyKeyHeader carries the client's key on ticket creation.
const IdempotencyKeyHeader = "Idempotency-Key"

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	tickets *service.TicketService
	queries *service.QueryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, queries *service.QueryService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, queries: queries}
}

// CreateTicket POST /tickets. A replayed idempotency key answers 200 with
// the original ticket.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, created, err := h.tickets.CreateTicket(c.UserContext(), auth.ActorFromContext(c), service.TicketCreateInput{
		CustomerID:     req.CustomerID,
		Subject:        req.Subject,
		Description:    req.Description,
		Priority:       req.Priority,
		Tags:           req.Tags,
		IdempotencyKey: c.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, nil)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, permitted, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, permitted)})
}

// UpdateTicket PUT/PATCH /tickets/:id. PUT replaces the editable fields;
// PATCH leaves omitted ones unchanged.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateTicket(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.TicketUpdateInput{
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        req.Tags,
		Replace:     c.Method() == fiber.MethodPut,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, nil)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	var req dto.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.AddComment(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.CommentInput{
		Author:  req.Author,
		Message: req.Message,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, nil)})
}

// ApplyTrigger POST /tickets/:id/status/:trigger. The body is optional.
func (h *TicketsHandler) ApplyTrigger(c *fiber.Ctx) error {
	var req dto.TransitionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	res, err := h.tickets.ApplyTrigger(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.TransitionInput{
		Trigger: c.Params("trigger"),
		Reason:  req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTransitionResponse(res)})
}

// Inbox GET /tickets/inbox.
func (h *TicketsHandler) Inbox(c *fiber.Ctx) error {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return err
	}
	page, err := h.queries.Inbox(c.UserContext(), service.InboxQuery{
		Limit:      limit,
		Cursor:     c.Query("cursor"),
		CustomerID: c.Query("customer_id"),
		Status:     c.Query("status"),
		Text:       c.Query("q"),
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewInboxPage(page))
}

// Timeline GET /tickets/:id/timeline.
func (h *TicketsHandler) Timeline(c *fiber.Ctx) error {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return err
	}
	page, err := h.queries.Timeline(c.UserContext(), c.Params("id"), service.TimelineQuery{
		Limit:  limit,
		Cursor: c.Query("cursor"),
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTimelinePage(page))
}

func parseLimit(val string) (int, error) {
	if val == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, apperrors.NewValidationError("limit must be an integer", map[string]any{"limit": val})
	}
	return parsed, nil
}
