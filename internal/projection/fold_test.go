package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
	"github.com/supportdesk/ticket-lifecycle/internal/events"
)

var epoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time { return epoch.Add(offset) }

func TestApplyTicketCreated(t *testing.T) {
	t.Parallel()

	row := domain.NewTicketReadModel("t-1")
	evt := events.NewActivityEvent("t-1", events.EventTicketCreated, "a", at(0), map[string]any{
		events.PayloadCustomerID: "c1",
		events.PayloadSubject:    "S",
		events.PayloadPriority:   "High",
		events.PayloadTags:       []any{"a", "b"},
	})

	require.Equal(t, Applied, Apply(row, evt))
	require.Equal(t, "c1", row.CustomerID)
	require.Equal(t, "S", row.Subject)
	require.Equal(t, domain.TicketPriorityHigh, row.Priority)
	require.Equal(t, []string{"a", "b"}, row.Tags)
	require.Equal(t, evt.At, row.CreatedAt)
	require.Equal(t, evt.At, row.UpdatedAt)
	require.Equal(t, domain.TicketStatusOpen, row.Status)
	require.Equal(t, evt.SortKey, row.LastEventSortKey)
	require.Equal(t, domain.ReadModelSortKey(evt.At, "t-1"), row.SortKey)
}

func TestApplyIgnoresUnparseableValues(t *testing.T) {
	t.Parallel()

	row := domain.NewTicketReadModel("t-1")
	Apply(row, events.NewActivityEvent("t-1", events.EventTicketCreated, "a", at(0), map[string]any{
		events.PayloadPriority: "Sometime",
	}))
	require.Equal(t, domain.TicketPriorityNormal, row.Priority)

	Apply(row, events.NewActivityEvent("t-1", events.EventStatusChanged, "a", at(time.Second), map[string]any{
		events.PayloadTo: "Archived",
	}))
	require.Equal(t, domain.TicketStatusOpen, row.Status)
	require.Equal(t, at(time.Second), row.UpdatedAt)
}

func TestApplyTicketUpdatedOnlyOverwritesPresentFields(t *testing.T) {
	t.Parallel()

	row := domain.NewTicketReadModel("t-1")
	Apply(row, events.NewActivityEvent("t-1", events.EventTicketCreated, "a", at(0), map[string]any{
		events.PayloadSubject:  "S",
		events.PayloadPriority: "Low",
		events.PayloadTags:     []string{"x"},
	}))

	require.Equal(t, Applied, Apply(row, events.NewActivityEvent("t-1", events.EventTicketUpdated, "a", at(time.Second), map[string]any{
		events.PayloadDescriptionChanged: true,
		events.PayloadSubject:            "",
		events.PayloadTags:               []any{},
	})))
	require.Equal(t, "S", row.Subject)
	require.Equal(t, domain.TicketPriorityLow, row.Priority)
	require.Equal(t, []string{"x"}, row.Tags)
	require.Equal(t, at(time.Second), row.UpdatedAt)

	Apply(row, events.NewActivityEvent("t-1", events.EventTicketUpdated, "a", at(2*time.Second), map[string]any{
		events.PayloadSubject:  "S2",
		events.PayloadPriority: "urgent",
		events.PayloadTags:     []any{"y", "z"},
	}))
	require.Equal(t, "S2", row.Subject)
	require.Equal(t, domain.TicketPriorityUrgent, row.Priority)
	require.Equal(t, []string{"y", "z"}, row.Tags)
}

func TestApplyCommentAndStatus(t *testing.T) {
	t.Parallel()

	row := domain.NewTicketReadModel("t-1")
	Apply(row, events.NewActivityEvent("t-1", events.EventCommentAdded, "a", at(time.Second), map[string]any{
		events.PayloadAuthor:         "agent",
		events.PayloadMessagePreview: "hello",
	}))
	Apply(row, events.NewActivityEvent("t-1", events.EventStatusChanged, "a", at(2*time.Second), map[string]any{
		events.PayloadFrom: "Open",
		events.PayloadTo:   "Pending",
	}))

	require.Equal(t, 1, row.CommentCount)
	require.Equal(t, "hello", row.LastCommentPreview)
	require.Equal(t, domain.TicketStatusPending, row.Status)
	require.Equal(t, domain.ReadModelSortKey(at(2*time.Second), "t-1"), row.SortKey)
}

func TestApplySkipsRedelivery(t *testing.T) {
	t.Parallel()

	row := domain.NewTicketReadModel("t-1")
	comment := events.NewActivityEvent("t-1", events.EventCommentAdded, "a", at(time.Second), map[string]any{
		events.PayloadMessagePreview: "once",
	})
	require.Equal(t, Applied, Apply(row, comment))
	require.Equal(t, Duplicate, Apply(row, comment))
	require.Equal(t, 1, row.CommentCount)

	older := events.NewActivityEvent("t-1", events.EventCommentAdded, "a", at(0), nil)
	require.Equal(t, Duplicate, Apply(row, older))
	require.Equal(t, 1, row.CommentCount)
}

func TestApplyRejectedTransitionIsAuditOnly(t *testing.T) {
	t.Parallel()

	row := domain.NewTicketReadModel("t-1")
	before := *row.Clone()
	rejected := events.NewActivityEvent("t-1", events.EventRejectedTransition, "a", at(time.Second), map[string]any{
		events.PayloadReason: events.RejectReasonNotPermitted,
	})
	require.Equal(t, Ignored, Apply(row, rejected))
	require.Equal(t, before, *row)
}
