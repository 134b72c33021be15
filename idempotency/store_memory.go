package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore provides an in-memory implementation of Store.
//
// This implementation is suitable for single-instance deployments where
// claims don't need to be shared across processes. For load-balanced
// deployments use RedisStore or SQLStore.
//
// Features:
//   - Thread-safe with mutex protection
//   - Per-entry expiry fixed at claim time
//   - Lazy cleanup of expired entries, plus an optional background sweeper
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces time.Now for expiry decisions.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory claim store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Claim atomically inserts key unless a live entry already exists.
func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, exists := s.entries[key]; exists && now.Before(e.expiresAt) {
		return false, nil
	}

	s.entries[key] = memoryEntry{
		state:     StateProcessing,
		expiresAt: now.Add(ttl),
	}
	return true, nil
}

// Finalize marks key as used, keeping its original expiry.
func (s *MemoryStore) Finalize(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return ErrClaimNotFound
	}
	e.state = StateUsed
	s.entries[key] = e

	// Lazy cleanup of expired entries
	s.sweepLocked()
	return nil
}

// Release deletes key.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// State returns the live state of key.
func (s *MemoryStore) State(_ context.Context, key string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return StateNone, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return StateNone, nil
	}
	return e.state, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// sweepLocked removes expired entries. Must be called with lock held.
func (s *MemoryStore) sweepLocked() int {
	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
