package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
)

func TestParseTrigger(t *testing.T) {
	t.Parallel()

	cases := map[string]Trigger{
		"start":     TriggerStartWork,
		"START":     TriggerStartWork,
		"startwork": TriggerStartWork,
		"Resolve":   TriggerResolve,
		" close ":   TriggerClose,
		"reopen":    TriggerReopen,
	}
	for in, want := range cases {
		got, err := ParseTrigger(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "explode", "started", "work"} {
		_, err := ParseTrigger(bad)
		require.ErrorIs(t, err, ErrUnknownTrigger, bad)
	}
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	full := func(status domain.TicketStatus) *domain.Ticket {
		return &domain.Ticket{
			Status:      status,
			Description: "printer on fire",
			Comments:    []domain.TicketComment{{Author: "a", Message: "m"}},
		}
	}

	want := map[edge]domain.TicketStatus{
		{domain.TicketStatusOpen, TriggerStartWork}:  domain.TicketStatusPending,
		{domain.TicketStatusOpen, TriggerResolve}:    domain.TicketStatusResolved,
		{domain.TicketStatusPending, TriggerResolve}: domain.TicketStatusResolved,
		{domain.TicketStatusPending, TriggerReopen}:  domain.TicketStatusOpen,
		{domain.TicketStatusResolved, TriggerClose}:  domain.TicketStatusClosed,
		{domain.TicketStatusResolved, TriggerReopen}: domain.TicketStatusOpen,
		{domain.TicketStatusClosed, TriggerReopen}:   domain.TicketStatusOpen,
	}

	m := New()
	for _, status := range []domain.TicketStatus{
		domain.TicketStatusOpen, domain.TicketStatusPending, domain.TicketStatusResolved, domain.TicketStatusClosed,
	} {
		for _, trig := range triggers {
			ticket := full(status)
			to, listed := want[edge{status, trig}]
			require.Equal(t, listed, m.CanFire(ticket, trig), "%s/%s", status, trig)

			got, err := m.Fire(ticket, trig)
			if listed {
				require.NoError(t, err)
				require.Equal(t, to, got)
				require.Equal(t, to, ticket.Status)
			} else {
				require.ErrorIs(t, err, ErrTransitionNotAllowed)
				require.Equal(t, status, ticket.Status)
			}
		}
	}
}

func TestGuards(t *testing.T) {
	t.Parallel()

	m := New()

	open := &domain.Ticket{Status: domain.TicketStatusOpen, Description: "   "}
	require.False(t, m.CanFire(open, TriggerResolve))
	_, err := m.Fire(open, TriggerResolve)
	require.ErrorIs(t, err, ErrTransitionNotAllowed)
	require.Equal(t, domain.TicketStatusOpen, open.Status)

	resolved := &domain.Ticket{Status: domain.TicketStatusResolved}
	require.False(t, m.CanFire(resolved, TriggerClose))
	require.True(t, m.CanFire(resolved, TriggerReopen))

	resolved.Comments = append(resolved.Comments, domain.TicketComment{Message: "done"})
	require.True(t, m.CanFire(resolved, TriggerClose))
}

func TestPermittedTriggers(t *testing.T) {
	t.Parallel()

	m := New()
	require.Equal(t, []Trigger{TriggerStartWork},
		m.PermittedTriggers(&domain.Ticket{Status: domain.TicketStatusOpen}))
	require.Equal(t, []Trigger{TriggerStartWork, TriggerResolve},
		m.PermittedTriggers(&domain.Ticket{Status: domain.TicketStatusOpen, Description: "d"}))
	require.Equal(t, []Trigger{TriggerReopen},
		m.PermittedTriggers(&domain.Ticket{Status: domain.TicketStatusClosed}))
	require.Empty(t, m.PermittedTriggers(nil))
}
