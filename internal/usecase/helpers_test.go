package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"speedliner/internal/domain/models"
)

func testRoutes() []models.Route {
	return []models.Route{
		{ID: "1", From: "Jita", To: "Amarr", PricePerM3: 500},
		{ID: "2", From: "Jita", To: "Dodixie", PricePerM3: 300, NoCollateral: true},
		{ID: "3", From: "Amarr", To: "Hek", PricePerM3: 800, Visibility: models.VisibilityWhitelist, AllowedCorps: []int64{98000001}},
	}
}

func testRegistry(t *testing.T) *RouteRegistry {
	t.Helper()
	reg := NewRouteRegistry(nil)
	res := reg.Replace(testRoutes())
	if res.Accepted != 3 {
		t.Fatalf("expected 3 routes accepted, got %+v", res)
	}
	return reg
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memStore struct {
	mu      sync.Mutex
	values  map[string]int64
	saves   int
	loadErr error
	saveErr error
}

func newMemStore() *memStore { return &memStore{values: make(map[string]int64)} }

func (s *memStore) Load(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return 0, false, s.loadErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memStore) Save(_ context.Context, key string, epochMs int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.values[key] = epochMs
	s.saves++
	return nil
}

func (s *memStore) value(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

type fakeEndpoint struct {
	mu       sync.Mutex
	calls    int
	status   int
	err      error
	requests []models.ExpressRequest
	entered  chan struct{}
	release  chan struct{}
}

func (e *fakeEndpoint) Submit(ctx context.Context, req *models.ExpressRequest, _ models.Credentials) (int, error) {
	e.mu.Lock()
	e.calls++
	e.requests = append(e.requests, *req)
	entered, release := e.entered, e.release
	status, err := e.status, e.err
	e.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return status, err
}

func (e *fakeEndpoint) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEndpoint) LastRequest() models.ExpressRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[len(e.requests)-1]
}

type fakeIdentity struct {
	id  models.Identity
	err error
}

func (f fakeIdentity) Resolve(context.Context, models.Credentials) (models.Identity, error) {
	return f.id, f.err
}

type fakeAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (a *fakeAudit) Record(_ context.Context, ev *models.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *ev)
	return nil
}

func (a *fakeAudit) Close() error { return nil }

func (a *fakeAudit) Events() []models.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.AuditEvent(nil), a.events...)
}

var errBoom = errors.New("boom")
