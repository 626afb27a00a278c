package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportdesk/ticket-lifecycle/internal/config"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
)

type recordingEnqueuer struct {
	got []WebhookNotification
	err error
}

func (r *recordingEnqueuer) EnqueueWebhook(_ context.Context, n WebhookNotification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestNotificationServiceEnqueuesWebhooks(t *testing.T) {
	t.Parallel()

	d := events.NewInMemoryDispatcher()
	enq := &recordingEnqueuer{}
	svc := NewNotificationService(d, enq, nil, config.NotificationConfig{WebhookURL: "http://hooks.local/tickets"})
	svc.RegisterHandlers()

	ctx := context.Background()
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	created := events.NewActivityEvent("t-1", events.EventTicketCreated, "a", at, map[string]any{events.PayloadSubject: "x"})
	comment := events.NewActivityEvent("t-1", events.EventCommentAdded, "a", at.Add(time.Second), nil)
	status := events.NewActivityEvent("t-1", events.EventStatusChanged, "a", at.Add(2*time.Second), map[string]any{events.PayloadTo: "Pending"})
	for _, evt := range []events.ActivityEvent{created, comment, status} {
		require.NoError(t, d.Publish(ctx, evt))
	}

	require.Len(t, enq.got, 2)
	assert.Equal(t, created.ID, enq.got[0].EventID)
	assert.Equal(t, "http://hooks.local/tickets", enq.got[0].URL)
	assert.Equal(t, "StatusChanged", enq.got[1].Type)
}

func TestNotificationServiceWithoutWebhookURL(t *testing.T) {
	t.Parallel()

	d := events.NewInMemoryDispatcher()
	enq := &recordingEnqueuer{err: errors.New("should not be called")}
	NewNotificationService(d, enq, nil, config.NotificationConfig{}).RegisterHandlers()

	evt := events.NewActivityEvent("t-1", events.EventTicketCreated, "a", time.Now(), nil)
	require.NoError(t, d.Publish(context.Background(), evt))
	assert.Empty(t, enq.got)
}

func TestNotificationServicePropagatesEnqueueError(t *testing.T) {
	t.Parallel()

	d := events.NewInMemoryDispatcher()
	enq := &recordingEnqueuer{err: errors.New("queue down")}
	NewNotificationService(d, enq, nil, config.NotificationConfig{WebhookURL: "http://x"}).RegisterHandlers()

	evt := events.NewActivityEvent("t-1", events.EventStatusChanged, "a", time.Now(), nil)
	require.ErrorContains(t, d.Publish(context.Background(), evt), "queue down")
}

func TestNotificationServiceWebhooksPlan(t *testing.T) {
	t.Parallel()

	svc := NewNotificationService(nil, nil, nil, config.NotificationConfig{WebhookURL: " http://hooks.local "})
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	status := events.NewActivityEvent("t-1", events.EventStatusChanged, "a", at, map[string]any{events.PayloadTo: "Closed"})
	got := svc.Webhooks(status)
	require.Len(t, got, 1)
	assert.Equal(t, "http://hooks.local", got[0].URL)
	assert.Equal(t, status.ID, got[0].EventID)

	assert.Empty(t, svc.Webhooks(events.NewActivityEvent("t-1", events.EventCommentAdded, "a", at, nil)))
	assert.Empty(t, svc.Webhooks(events.NewActivityEvent("t-1", events.EventRejectedTransition, "a", at, nil)))
}
