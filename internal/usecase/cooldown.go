package usecase

import (
	"context"
	"sync"
	"time"

	"speedliner/internal/domain/repository"
	"speedliner/pkg/logger"
)

// CooldownGate tracks the last successful express submission of one client.
// The timestamp lives in a CooldownStore so it survives reconnects and
// restarts; the gate also remembers what it armed itself, so a store outage
// never reopens a window this process already closed.
type CooldownGate struct {
	store  repository.CooldownStore
	key    string
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger

	mu        sync.Mutex
	lastArmed int64
}

type CooldownOption func(*CooldownGate)

func WithCooldownClock(now func() time.Time) CooldownOption {
	return func(g *CooldownGate) {
		g.now = now
	}
}

func WithCooldownLogger(log *logger.Logger) CooldownOption {
	return func(g *CooldownGate) {
		g.logger = log
	}
}

func NewCooldownGate(store repository.CooldownStore, key string, ttl time.Duration, opts ...CooldownOption) *CooldownGate {
	g := &CooldownGate{
		store:  store,
		key:    key,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RemainingMs returns the lockout left, floored at zero.
func (g *CooldownGate) RemainingMs(ctx context.Context) int64 {
	if g.ttl <= 0 {
		return 0
	}

	g.mu.Lock()
	last := g.lastArmed
	g.mu.Unlock()

	if g.store != nil {
		stored, ok, err := g.store.Load(ctx, g.key)
		if err != nil {
			g.logger.Warn("cooldown store load failed", logger.String("key", g.key), logger.Error(err))
		} else if ok && stored > last {
			last = stored
		}
	}
	if last == 0 {
		return 0
	}

	remaining := last + g.ttl.Milliseconds() - g.now().UnixMilli()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Arm starts a new lockout window at nowMs.
func (g *CooldownGate) Arm(ctx context.Context, nowMs int64) error {
	g.mu.Lock()
	if nowMs > g.lastArmed {
		g.lastArmed = nowMs
	}
	g.mu.Unlock()

	if g.ttl <= 0 || g.store == nil {
		return nil
	}
	return g.store.Save(ctx, g.key, nowMs, g.ttl)
}

// Now is the gate's clock in epoch milliseconds.
func (g *CooldownGate) Now() int64 {
	return g.now().UnixMilli()
}

// TTL is the lockout window.
func (g *CooldownGate) TTL() time.Duration {
	return g.ttl
}
