package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supportdesk/ticket-lifecycle/internal/domain"
)

// RedisStore keeps receipts as JSON strings with a native Redis TTL, so
// expired receipts are purged by the server.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, id string) (domain.IdempotencyReceipt, error) {
	raw, err := s.client.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.IdempotencyReceipt{}, ErrReceiptNotFound
	}
	if err != nil {
		return domain.IdempotencyReceipt{}, fmt.Errorf("get receipt %s: %w", id, err)
	}
	var receipt domain.IdempotencyReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return domain.IdempotencyReceipt{}, fmt.Errorf("decode receipt %s: %w", id, err)
	}
	return receipt, nil
}

func (s *RedisStore) Create(ctx context.Context, receipt domain.IdempotencyReceipt, ttl time.Duration) error {
	receipt.ExpiresAt = receipt.CreatedAt.Add(ttl)
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt %s: %w", receipt.ID, err)
	}
	ok, err := s.client.SetNX(ctx, receipt.ID, raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("create receipt %s: %w", receipt.ID, err)
	}
	if !ok {
		return ErrReceiptExists
	}
	return nil
}

func (s *RedisStore) Put(ctx context.Context, receipt domain.IdempotencyReceipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt %s: %w", receipt.ID, err)
	}
	err = s.client.SetArgs(ctx, receipt.ID, raw, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrReceiptNotFound
	}
	if err != nil {
		return fmt.Errorf("finalize receipt %s: %w", receipt.ID, err)
	}
	return nil
}
