package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportdesk/ticket-lifecycle/internal/service"
)

func webhookJob(eventID string) *river.Job[WebhookArgs] {
	return &river.Job[WebhookArgs]{Args: WebhookArgs{
		URL:          "http://hooks.local",
		Notification: service.WebhookNotification{EventID: eventID, TicketID: "t-1", Type: "TicketCreated"},
	}}
}

func stubPost(status int, err error, calls *int) PostFunc {
	return func(_ context.Context, url string, body any, timeout time.Duration) (int, error) {
		*calls++
		return status, err
	}
}

func TestWebhookArgsInsertOpts(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ticket_webhook", WebhookArgs{}.Kind())
	opts := WebhookArgs{}.InsertOpts()
	assert.Equal(t, river.QueueDefault, opts.Queue)
	assert.Equal(t, 8, opts.MaxAttempts)
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.True(t, opts.UniqueOpts.ByQueue)
}

func TestWebhookWorkerOutcomes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		err     error
		wantErr bool
		cancel  bool
	}{
		{name: "delivered", status: 204},
		{name: "server error retries", status: 503, wantErr: true},
		{name: "rate limited retries", status: 429, wantErr: true},
		{name: "client error cancels", status: 410, wantErr: true, cancel: true},
		{name: "transport error retries", err: errors.New("dial tcp: refused"), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			w := NewWebhookWorker(stubPost(tc.status, tc.err, &calls), time.Second, nil)
			err := w.Work(context.Background(), webhookJob("e-1"))
			assert.Equal(t, 1, calls)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.cancel, permanentFailure(tc.status))
		})
	}
}

func TestWebhookWorkerUninitialized(t *testing.T) {
	t.Parallel()

	var w *WebhookWorker
	require.ErrorContains(t, w.Work(context.Background(), webhookJob("e-1")), "not initialized")
}

func TestInlineEnqueuerSwallowsFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	enq := NewInlineEnqueuer(NewWebhookWorker(stubPost(500, nil, &calls), time.Second, nil), nil)
	err := enq.EnqueueWebhook(context.Background(), service.WebhookNotification{URL: "http://x", EventID: "e-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
