package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Claims use SET NX with an expiry and
// finalization uses SET XX KEEPTTL, so every operation is a single atomic
// command. KEEPTTL requires Redis 6.0 or newer.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL connects using a redis:// or rediss:// URL.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("idempotency: invalid redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts)), nil
}

// Claim sets key with SET NX so only the first caller wins.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	ok, err := s.client.SetNX(ctx, key, string(StateProcessing), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: redis claim: %w", err)
	}
	return ok, nil
}

// Finalize marks key as used, keeping its remaining TTL.
func (s *RedisStore) Finalize(ctx context.Context, key string) error {
	err := s.client.SetArgs(ctx, key, string(StateUsed), redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrClaimNotFound
	}
	if err != nil {
		return fmt.Errorf("idempotency: redis finalize: %w", err)
	}
	return nil
}

// Release deletes key.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("idempotency: redis release: %w", err)
	}
	return nil
}

// State returns the live state of key.
func (s *RedisStore) State(ctx context.Context, key string) (State, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, fmt.Errorf("idempotency: redis get: %w", err)
	}
	return State(val), nil
}

// Ping checks connectivity, for health endpoints.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
