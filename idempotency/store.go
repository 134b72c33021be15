package idempotency

import (
	"context"
	"errors"
	"time"
)

// State is the value held for a claimed key.
type State string

const (
	// StateNone means the key is absent or has expired.
	StateNone State = ""
	// StateProcessing means a request is verifying the payment.
	StateProcessing State = "processing"
	// StateUsed means the payment was accepted and may not be reused.
	StateUsed State = "used"
)

var (
	// ErrClaimNotFound is returned by Finalize when the key is absent or expired.
	ErrClaimNotFound = errors.New("idempotency: claim not found")
	// ErrInvalidTTL is returned by Claim for a non-positive TTL.
	ErrInvalidTTL = errors.New("idempotency: ttl must be positive")
)

// Store defines claim storage. Implementations must be safe for concurrent
// use and every method must be atomic per key.
type Store interface {
	// Claim inserts key with StateProcessing and the given TTL. It returns
	// true only if this call performed the insert.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Finalize sets an existing key to StateUsed without changing when it
	// expires. It returns ErrClaimNotFound if the key is absent.
	Finalize(ctx context.Context, key string) error

	// Release deletes key. Releasing an absent key is not an error.
	Release(ctx context.Context, key string) error

	// State returns the current state of key, StateNone if absent.
	State(ctx context.Context, key string) (State, error)
}
