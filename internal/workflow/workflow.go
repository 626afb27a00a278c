// Package workflow holds the ticket status state machine. Transitions are a
// static table keyed by (status, trigger); guards read the ticket and never
// mutate it.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
)

// Trigger names a requested status transition.
type Trigger string

const (
	TriggerStartWork Trigger = "StartWork"
	TriggerResolve   Trigger = "Resolve"
	TriggerClose     Trigger = "Close"
	TriggerReopen    Trigger = "Reopen"
)

var (
	// ErrUnknownTrigger is returned by ParseTrigger for unrecognized names.
	ErrUnknownTrigger = errors.New("unknown trigger")
	// ErrTransitionNotAllowed is returned by Fire when CanFire is false.
	ErrTransitionNotAllowed = errors.New("transition not allowed")
)

var triggers = []Trigger{TriggerStartWork, TriggerResolve, TriggerClose, TriggerReopen}

// ParseTrigger resolves a trigger name case-insensitively. "start" is
// accepted for StartWork.
func ParseTrigger(name string) (Trigger, error) {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "start") {
		return TriggerStartWork, nil
	}
	for _, trig := range triggers {
		if strings.EqualFold(name, string(trig)) {
			return trig, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
}

type guard func(*domain.Ticket) bool

type transition struct {
	to    domain.TicketStatus
	guard guard
}

type edge struct {
	from    domain.TicketStatus
	trigger Trigger
}

func hasDescription(t *domain.Ticket) bool {
	return strings.TrimSpace(t.Description) != ""
}

func hasComment(t *domain.Ticket) bool {
	return len(t.Comments) > 0
}

var table = map[edge]transition{
	{domain.TicketStatusOpen, TriggerStartWork}: {to: domain.TicketStatusPending},
	{domain.TicketStatusOpen, TriggerResolve}:   {to: domain.TicketStatusResolved, guard: hasDescription},
	{domain.TicketStatusPending, TriggerResolve}: {to: domain.TicketStatusResolved, guard: hasDescription},
	{domain.TicketStatusPending, TriggerReopen}:  {to: domain.TicketStatusOpen},
	{domain.TicketStatusResolved, TriggerClose}:  {to: domain.TicketStatusClosed, guard: hasComment},
	{domain.TicketStatusResolved, TriggerReopen}: {to: domain.TicketStatusOpen},
	{domain.TicketStatusClosed, TriggerReopen}:   {to: domain.TicketStatusOpen},
}

// Machine evaluates the transition table. It holds no state; the zero value
// is ready to use.
type Machine struct{}

// New returns a Machine.
func New() *Machine {
	return &Machine{}
}

// CanFire reports whether trigger is listed for the ticket's status and its
// guard holds.
func (Machine) CanFire(ticket *domain.Ticket, trigger Trigger) bool {
	if ticket == nil {
		return false
	}
	tr, ok := table[edge{ticket.Status, trigger}]
	if !ok {
		return false
	}
	return tr.guard == nil || tr.guard(ticket)
}

// Fire moves the ticket to the target status and returns it. The ticket is
// left untouched when the transition is not allowed.
func (m Machine) Fire(ticket *domain.Ticket, trigger Trigger) (domain.TicketStatus, error) {
	if !m.CanFire(ticket, trigger) {
		from := domain.TicketStatus("")
		if ticket != nil {
			from = ticket.Status
		}
		return "", fmt.Errorf("%w: %s from %s", ErrTransitionNotAllowed, trigger, from)
	}
	tr := table[edge{ticket.Status, trigger}]
	ticket.Status = tr.to
	return tr.to, nil
}

// PermittedTriggers lists the triggers that can fire right now, in table
// order.
func (m Machine) PermittedTriggers(ticket *domain.Ticket) []Trigger {
	out := make([]Trigger, 0, len(triggers))
	for _, trig := range triggers {
		if m.CanFire(ticket, trig) {
			out = append(out, trig)
		}
	}
	return out
}
