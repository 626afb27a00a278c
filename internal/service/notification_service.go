package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/config"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
)

// WebhookNotification is the body delivered to the configured webhook.
type WebhookNotification struct {
	URL      string         `json:"-"`
	EventID  string         `json:"event_id"`
	TicketID string         `json:"ticket_id"`
	Type     string         `json:"type"`
	Actor    string         `json:"actor"`
	At       time.Time      `json:"at"`
	Payload  map[string]any `json:"payload"`
}

// WebhookEnqueuer schedules a webhook delivery.
type WebhookEnqueuer interface {
	EnqueueWebhook(ctx context.Context, notification WebhookNotification) error
}

// NotificationService reacts to projected activity events.
type NotificationService struct {
	dispatcher events.Dispatcher
	enqueuer   WebhookEnqueuer
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. A nil enqueuer leaves
// webhook delivery to a transactional outbox that calls Webhooks.
func NewNotificationService(dispatcher events.Dispatcher, enqueuer WebhookEnqueuer, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		enqueuer:   enqueuer,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.ActivityEvent) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(event)
	return n.enqueueWebhook(ctx, event)
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.ActivityEvent) error {
	n.logger.Info("StatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.enqueueWebhook(ctx, event)
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.ActivityEvent) error {
	n.logger.Info("CommentAdded", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(event events.ActivityEvent) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

// Webhooks returns the deliveries evt should produce: one for ticket
// creation and status changes when a webhook URL is configured.
func (n *NotificationService) Webhooks(event events.ActivityEvent) []WebhookNotification {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}
	switch event.Type {
	case events.EventTicketCreated, events.EventStatusChanged:
	default:
		return nil
	}
	return []WebhookNotification{{
		URL:      url,
		EventID:  event.ID,
		TicketID: event.TicketID,
		Type:     string(event.Type),
		Actor:    event.Actor,
		At:       event.At,
		Payload:  event.Payload,
	}}
}

func (n *NotificationService) enqueueWebhook(ctx context.Context, event events.ActivityEvent) error {
	if n.enqueuer == nil {
		return nil
	}
	for _, notification := range n.Webhooks(event) {
		if err := n.enqueuer.EnqueueWebhook(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}
