package usecase

import (
	"context"
	"testing"
	"time"
)

func TestCooldownGateWindow(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := newMemStore()
	gate := NewCooldownGate(store, "client", 5*time.Minute, WithCooldownClock(clock.Now))

	if got := gate.RemainingMs(ctx); got != 0 {
		t.Fatalf("fresh gate remaining = %d", got)
	}
	if err := gate.Arm(ctx, gate.Now()); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if got := gate.RemainingMs(ctx); got != 300_000 {
		t.Fatalf("remaining = %d, want 300000", got)
	}
	clock.Advance(299 * time.Second)
	if got := gate.RemainingMs(ctx); got != 1000 {
		t.Fatalf("remaining = %d, want 1000", got)
	}
	clock.Advance(2 * time.Second)
	if got := gate.RemainingMs(ctx); got != 0 {
		t.Fatalf("remaining = %d after expiry", got)
	}
}

func TestCooldownGateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := newMemStore()

	first := NewCooldownGate(store, "client", 5*time.Minute, WithCooldownClock(clock.Now))
	if err := first.Arm(ctx, first.Now()); err != nil {
		t.Fatalf("arm: %v", err)
	}
	clock.Advance(time.Minute)

	reloaded := NewCooldownGate(store, "client", 5*time.Minute, WithCooldownClock(clock.Now))
	if got := reloaded.RemainingMs(ctx); got != 240_000 {
		t.Fatalf("remaining after reload = %d, want 240000", got)
	}
	other := NewCooldownGate(store, "someone-else", 5*time.Minute, WithCooldownClock(clock.Now))
	if got := other.RemainingMs(ctx); got != 0 {
		t.Fatalf("keys must not share a window, got %d", got)
	}
}

func TestCooldownGateStoreFailure(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := newMemStore()
	store.saveErr = errBoom
	gate := NewCooldownGate(store, "client", time.Minute, WithCooldownClock(clock.Now))

	if err := gate.Arm(ctx, gate.Now()); err == nil {
		t.Fatalf("expected save error")
	}
	store.loadErr = errBoom
	if got := gate.RemainingMs(ctx); got != 60_000 {
		t.Fatalf("locally armed window lost: %d", got)
	}
}

func TestCooldownGateDisabled(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	gate := NewCooldownGate(store, "client", 0)
	if err := gate.Arm(ctx, gate.Now()); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if gate.RemainingMs(ctx) != 0 || store.saves != 0 {
		t.Fatalf("a zero window must never lock or persist")
	}
}
