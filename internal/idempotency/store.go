package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/supportdesk/ticket-lifecycle/internal/clock"
	"github.com/supportdesk/ticket-lifecycle/internal/domain"
)

var (
	// ErrReceiptNotFound is returned by Store.Get for unknown or expired ids.
	ErrReceiptNotFound = errors.New("idempotency receipt not found")
	// ErrReceiptExists is returned by Store.Create when the id is taken.
	ErrReceiptExists = errors.New("idempotency receipt already exists")
	// ErrInconsistent reports a receipt that never resolved while another
	// request held the claim.
	ErrInconsistent = errors.New("idempotency receipt did not resolve")
)

// Store persists receipts. Create must be atomic create-if-absent; Put
// overwrites unconditionally and keeps the original expiry.
type Store interface {
	Get(ctx context.Context, id string) (domain.IdempotencyReceipt, error)
	Create(ctx context.Context, receipt domain.IdempotencyReceipt, ttl time.Duration) error
	Put(ctx context.Context, receipt domain.IdempotencyReceipt) error
}

// MemoryStore keeps receipts in process memory and purges them lazily once
// they expire.
type MemoryStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	receipts map[string]domain.IdempotencyReceipt
}

// NewMemoryStore creates an empty store using clk to evaluate expiry.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryStore{clock: clk, receipts: make(map[string]domain.IdempotencyReceipt)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.IdempotencyReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.liveLocked(id)
	if !ok {
		return domain.IdempotencyReceipt{}, ErrReceiptNotFound
	}
	return r, nil
}

func (s *MemoryStore) Create(_ context.Context, receipt domain.IdempotencyReceipt, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(receipt.ID); ok {
		return ErrReceiptExists
	}
	receipt.ExpiresAt = s.clock.Now().Add(ttl)
	s.receipts[receipt.ID] = receipt
	return nil
}

func (s *MemoryStore) Put(_ context.Context, receipt domain.IdempotencyReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.liveLocked(receipt.ID)
	if !ok {
		return ErrReceiptNotFound
	}
	receipt.ExpiresAt = existing.ExpiresAt
	s.receipts[receipt.ID] = receipt
	return nil
}

func (s *MemoryStore) liveLocked(id string) (domain.IdempotencyReceipt, bool) {
	r, ok := s.receipts[id]
	if !ok {
		return domain.IdempotencyReceipt{}, false
	}
	if !r.ExpiresAt.After(s.clock.Now()) {
		delete(s.receipts, id)
		return domain.IdempotencyReceipt{}, false
	}
	return r, true
}
