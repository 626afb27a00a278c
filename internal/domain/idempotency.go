package domain

import "time"

// ReceiptPending marks a receipt whose claimant has not finished creating
// the ticket yet.
const ReceiptPending = "__PENDING__"

// IdempotencyReceipt records which ticket a client idempotency key produced.
type IdempotencyReceipt struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Resolved reports whether the receipt points at a created ticket.
func (r IdempotencyReceipt) Resolved() bool {
	return r.TicketID != "" && r.TicketID != ReceiptPending
}
