package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const stampLayout = "20060102150405"

// Stamp renders at as yyyyMMddHHmmss followed by seven fractional digits
// (100ns units) in UTC. Stamps compare lexicographically in time order.
func Stamp(at time.Time) string {
	at = at.UTC()
	return at.Format(stampLayout) + fmt.Sprintf("%07d", at.Nanosecond()/100)
}

// EventID builds "ticket-activity/{ticketId}/{stamp}-{suffix}".
func EventID(ticketID string, at time.Time, suffix string) string {
	return "ticket-activity/" + ticketID + "/" + Stamp(at) + "-" + suffix
}

// SortKey builds "stamp|eventId".
func SortKey(at time.Time, eventID string) string {
	return Stamp(at) + "|" + eventID
}

// NewActivityEvent constructs an event with derived identity and sort key.
// The timestamp is truncated to microseconds so it survives a round trip
// through the database unchanged.
func NewActivityEvent(ticketID string, typ EventType, actor string, at time.Time, payload map[string]any) ActivityEvent {
	at = at.UTC().Truncate(time.Microsecond)
	if payload == nil {
		payload = map[string]any{}
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	id := EventID(ticketID, at, suffix)
	return ActivityEvent{
		ID:       id,
		TicketID: ticketID,
		Type:     typ,
		Actor:    actor,
		At:       at,
		Payload:  payload,
		SortKey:  SortKey(at, id),
	}
}
