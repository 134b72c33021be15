package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithMemoryClock(clock.Now))
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if ok, _ := store.Claim(ctx, key, time.Minute); !ok {
			t.Fatalf("Expected claim of %s to succeed", key)
		}
	}
	if ok, _ := store.Claim(ctx, "d", time.Hour); !ok {
		t.Fatal("Expected claim of d to succeed")
	}

	clock.Advance(2 * time.Minute)

	if removed := store.Sweep(); removed != 3 {
		t.Errorf("Expected 3 expired entries removed, got %d", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 entry left, got %d", store.Len())
	}
}

func TestMemoryStore_FinalizeCleansExpired(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithMemoryClock(clock.Now))
	ctx := context.Background()

	store.Claim(ctx, "old", time.Second)
	clock.Advance(2 * time.Second)
	store.Claim(ctx, "new", time.Minute)

	if err := store.Finalize(ctx, "new"); err != nil {
		t.Fatalf("Expected finalize to succeed, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Expected lazy cleanup to leave 1 entry, got %d", store.Len())
	}
}

func TestMemoryStore_RunSweeperStops(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected sweeper to stop after cancellation")
	}
}
