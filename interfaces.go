package txgate

import (
	"context"
	"math/big"
	"time"
)

// ClaimStore grants exclusive, time-bounded ownership of a transaction hash.
// It is the gate's only synchronization point, so every method must be
// atomic per key.
type ClaimStore interface {
	// Claim inserts key as processing with the given TTL and reports
	// whether this call performed the insert.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Finalize marks an owned key as used, keeping its remaining TTL.
	Finalize(ctx context.Context, key string) error

	// Release deletes key.
	Release(ctx context.Context, key string) error
}

// ChainReader reads transactions and blocks from a chain data provider.
//
// GetTransaction returns an error matching ErrTransactionNotFound when the
// hash is neither pending nor mined. Transport faults must match
// ErrChainUnavailable instead.
type ChainReader interface {
	GetTransaction(ctx context.Context, hash string) (*TransactionRecord, error)
	GetBlockTimestamp(ctx context.Context, number *big.Int) (time.Time, error)
}

// Verifier decides whether call data pays the requirement.
type Verifier interface {
	Matches(req *PaymentRequirement, callData []byte) bool
}
