package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/events"
	"github.com/supportdesk/ticket-lifecycle/internal/service"
)

const defaultWebhookTimeout = 5 * time.Second

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// WebhookArgs is a queued webhook delivery for one activity event.
type WebhookArgs struct {
	URL          string                      `json:"url"`
	Notification service.WebhookNotification `json:"notification"`
}

// Kind returns the job kind identifier.
func (WebhookArgs) Kind() string { return "ticket_webhook" }

// InsertOpts makes redelivered events enqueue at most one job each.
func (WebhookArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 8,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// PostFunc delivers a JSON body and reports the response status.
type PostFunc func(ctx context.Context, url string, body any, timeout time.Duration) (int, error)

// WebhookWorker posts notifications to the configured endpoint.
type WebhookWorker struct {
	river.WorkerDefaults[WebhookArgs]
	post    PostFunc
	timeout time.Duration
	logger  *zap.Logger
}

// NewWebhookWorker creates a worker. A nil post uses the fiber HTTP agent.
func NewWebhookWorker(post PostFunc, timeout time.Duration, logger *zap.Logger) *WebhookWorker {
	if post == nil {
		post = fiberPost
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookWorker{post: post, timeout: timeout, logger: logger}
}

// Work delivers one notification. Client errors other than 408 and 429 are
// not retried.
func (w *WebhookWorker) Work(ctx context.Context, job *river.Job[WebhookArgs]) error {
	if w == nil || w.post == nil {
		return errors.New("webhook worker is not initialized")
	}
	args := job.Args
	status, err := w.post(ctx, args.URL, args.Notification, w.timeout)
	if err != nil {
		return fmt.Errorf("post webhook for event %s: %w", args.Notification.EventID, err)
	}
	if status >= 200 && status < 300 {
		w.logger.Debug("webhook delivered",
			zap.String("event_id", args.Notification.EventID),
			zap.String("ticket_id", args.Notification.TicketID),
			zap.Int("status", status))
		return nil
	}
	err = fmt.Errorf("webhook for event %s returned %d", args.Notification.EventID, status)
	if permanentFailure(status) {
		w.logger.Warn("webhook rejected",
			zap.String("event_id", args.Notification.EventID),
			zap.Int("status", status))
		return river.JobCancel(err)
	}
	return err
}

func permanentFailure(status int) bool {
	switch {
	case status == fiber.StatusRequestTimeout, status == fiber.StatusTooManyRequests:
		return false
	case status >= 400 && status < 500:
		return true
	default:
		return false
	}
}

func fiberPost(_ context.Context, url string, body any, timeout time.Duration) (int, error) {
	agent := fiber.Post(url).JSON(body).Timeout(timeout)
	status, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return status, nil
}

// WebhookPlanner decides which deliveries an activity event produces.
type WebhookPlanner interface {
	Webhooks(event events.ActivityEvent) []service.WebhookNotification
}

// RiverOutbox inserts webhook jobs in the projector's commit transaction,
// so a job exists exactly when the checkpoint has moved past its event.
type RiverOutbox struct {
	client  *river.Client[pgx.Tx]
	planner WebhookPlanner
}

// NewRiverOutbox wraps client.
func NewRiverOutbox(client *river.Client[pgx.Tx], planner WebhookPlanner) *RiverOutbox {
	return &RiverOutbox{client: client, planner: planner}
}

// Stage inserts one job per planned webhook using tx.
func (o *RiverOutbox) Stage(ctx context.Context, tx pgx.Tx, evts []events.ActivityEvent) error {
	if tx == nil {
		return errors.New("river outbox needs a postgres transaction")
	}
	for _, evt := range evts {
		for _, notification := range o.planner.Webhooks(evt) {
			args := WebhookArgs{URL: notification.URL, Notification: notification}
			if _, err := o.client.InsertTx(ctx, tx, args, nil); err != nil {
				return fmt.Errorf("enqueue webhook for event %s: %w", notification.EventID, err)
			}
		}
	}
	return nil
}

// InlineEnqueuer delivers webhooks synchronously through a worker. It is
// used when no job queue is configured.
type InlineEnqueuer struct {
	worker *WebhookWorker
	logger *zap.Logger
}

// NewInlineEnqueuer wraps worker.
func NewInlineEnqueuer(worker *WebhookWorker, logger *zap.Logger) *InlineEnqueuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineEnqueuer{worker: worker, logger: logger}
}

// EnqueueWebhook delivers immediately. Failures are logged and not
// returned, so a failing endpoint never blocks projection.
func (e *InlineEnqueuer) EnqueueWebhook(ctx context.Context, notification service.WebhookNotification) error {
	job := &river.Job[WebhookArgs]{Args: WebhookArgs{URL: notification.URL, Notification: notification}}
	if err := e.worker.Work(ctx, job); err != nil {
		e.logger.Warn("inline webhook delivery failed",
			zap.String("event_id", notification.EventID),
			zap.Error(err))
	}
	return nil
}
