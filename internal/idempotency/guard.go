// Package idempotency implements claim-then-finalize receipts for
// create commands carrying a client idempotency key.
package idempotency

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/domain"
)

const receiptPrefix = "idempotency:"

// Outcome describes what Claim decided.
type Outcome int

const (
	// OutcomeSkipped means no key was supplied; the command is not
	// idempotent.
	OutcomeSkipped Outcome = iota
	// OutcomeAcquired means the caller owns the receipt and must create
	// the ticket, then call Finalize.
	OutcomeAcquired
	// OutcomeResolved means an earlier request already created the ticket.
	OutcomeResolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeAcquired:
		return "acquired"
	case OutcomeResolved:
		return "resolved"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Claim is the result of Guard.Claim.
type Claim struct {
	Outcome   Outcome
	ReceiptID string
	TicketID  string
}

// Options tunes a Guard.
type Options struct {
	TTL          time.Duration
	WaitAttempts int
	WaitInterval time.Duration
}

// Guard runs the claim protocol against a Store.
type Guard struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger
	opts   Options
}

// NewGuard constructs a guard. Zero options fall back to a 24h TTL and no
// waiting for a concurrent claimant.
func NewGuard(store Store, clk clock.Clock, logger *zap.Logger, opts Options) *Guard {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Guard{store: store, clock: clk, logger: logger, opts: opts}
}

// ReceiptID derives the receipt identity for a client key.
func ReceiptID(key string) string {
	sum := blake3.Sum256([]byte(key))
	return receiptPrefix + hex.EncodeToString(sum[:20])
}

// Claim claims key for the caller, or reports the ticket an earlier
// request created with it.
func (g *Guard) Claim(ctx context.Context, key string) (Claim, error) {
	if strings.TrimSpace(key) == "" {
		return Claim{Outcome: OutcomeSkipped}, nil
	}
	id := ReceiptID(key)

	existing, err := g.store.Get(ctx, id)
	switch {
	case err == nil && existing.Resolved():
		return Claim{Outcome: OutcomeResolved, ReceiptID: id, TicketID: existing.TicketID}, nil
	case err == nil:
		return g.awaitResolution(ctx, id)
	case !errors.Is(err, ErrReceiptNotFound):
		return Claim{}, err
	}

	pending := domain.IdempotencyReceipt{
		ID:        id,
		TicketID:  domain.ReceiptPending,
		CreatedAt: g.clock.Now().UTC(),
	}
	err = g.store.Create(ctx, pending, g.opts.TTL)
	if errors.Is(err, ErrReceiptExists) {
		return g.awaitResolution(ctx, id)
	}
	if err != nil {
		return Claim{}, err
	}
	return Claim{Outcome: OutcomeAcquired, ReceiptID: id}, nil
}

// awaitResolution reads back a receipt held by another request. The holder
// is expected to finalize shortly; a receipt that stays pending or vanishes
// is an inconsistency.
func (g *Guard) awaitResolution(ctx context.Context, id string) (Claim, error) {
	for attempt := 0; ; attempt++ {
		receipt, err := g.store.Get(ctx, id)
		if err != nil && !errors.Is(err, ErrReceiptNotFound) {
			return Claim{}, err
		}
		if err == nil && receipt.Resolved() {
			return Claim{Outcome: OutcomeResolved, ReceiptID: id, TicketID: receipt.TicketID}, nil
		}
		if attempt >= g.opts.WaitAttempts {
			g.logger.Warn("idempotency receipt unresolved",
				zap.String("receipt_id", id),
				zap.Bool("missing", err != nil),
				zap.Int("attempts", attempt+1),
			)
			return Claim{}, fmt.Errorf("%w: %s", ErrInconsistent, id)
		}
		select {
		case <-ctx.Done():
			return Claim{}, ctx.Err()
		case <-g.clock.After(g.opts.WaitInterval):
		}
	}
}

// Finalize records ticketID on an acquired claim. It is a no-op for other
// outcomes.
func (g *Guard) Finalize(ctx context.Context, claim Claim, ticketID string) error {
	if claim.Outcome != OutcomeAcquired {
		return nil
	}
	return g.store.Put(ctx, domain.IdempotencyReceipt{
		ID:        claim.ReceiptID,
		TicketID:  ticketID,
		CreatedAt: g.clock.Now().UTC(),
	})
}
