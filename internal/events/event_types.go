package events

import "time"

// EventType enumerates activity event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "TicketCreated"
	EventTicketUpdated      EventType = "TicketUpdated"
	EventCommentAdded       EventType = "CommentAdded"
	EventStatusChanged      EventType = "StatusChanged"
	EventRejectedTransition EventType = "RejectedTransition"
)

// Reasons recorded on RejectedTransition events.
const (
	RejectReasonUnknownTrigger = "UnknownTrigger"
	RejectReasonNotPermitted   = "NotPermittedOrGuardFailed"
	RejectReasonException      = "Exception"
)

// Payload keys shared between the command side and the projector.
const (
	PayloadCustomerID         = "customer_id"
	PayloadSubject            = "subject"
	PayloadPriority           = "priority"
	PayloadTags               = "tags"
	PayloadDescriptionChanged = "description_changed"
	PayloadAuthor             = "author"
	PayloadMessagePreview     = "message_preview"
	PayloadFrom               = "from"
	PayloadTo                 = "to"
	PayloadTrigger            = "trigger"
	PayloadNote               = "note"
	PayloadReason             = "reason"
	PayloadMessage            = "message"
	PayloadCommentCount       = "comment_count"
)

// ActivityEvent is an immutable record of something that happened to a
// ticket, or of a command that was rejected.
type ActivityEvent struct {
	ID       string         `json:"id"`
	TicketID string         `json:"ticket_id"`
	Type     EventType      `json:"type"`
	Actor    string         `json:"actor"`
	At       time.Time      `json:"at"`
	Payload  map[string]any `json:"payload"`
	SortKey  string         `json:"sort_key"`
}

// String reads a string payload field.
func (e ActivityEvent) String(key string) (string, bool) {
	v, ok := e.Payload[key].(string)
	return v, ok
}

// Strings reads a string list payload field. Payloads decoded from JSON carry
// []any rather than []string; both are accepted.
func (e ActivityEvent) Strings(key string) ([]string, bool) {
	switch v := e.Payload[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
