package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"speedliner/internal/domain/models"
)

func waitForSnapshot(t *testing.T, s *Session, cond func(models.Snapshot) bool) models.Snapshot {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, last snapshot %+v", snap)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestHub(t *testing.T, endpoint *fakeEndpoint) *SessionHub {
	t.Helper()
	factory := &SubmitterFactory{
		Identity: fakeIdentity{id: models.Identity{CharacterID: 1, CharacterName: "Pilot"}},
		Endpoint: endpoint,
		Store:    newMemStore(),
		Cooldown: 5 * time.Minute,
		Config:   SubmissionConfig{Note: "note"},
	}
	hub := NewSessionHub(NewRouteRegistry(nil), factory, SessionConfig{Debounce: 120 * time.Millisecond, Cooldown: 5 * time.Minute}, nil, nil)
	hub.SetRoutes(testRoutes())
	t.Cleanup(hub.Shutdown)
	return hub
}

func TestSessionKeystrokeBurstEvaluatesOnce(t *testing.T) {
	hub := newTestHub(t, &fakeEndpoint{status: http.StatusCreated})
	s := hub.Open(context.Background(), "client", models.Credentials{})

	_ = s.Post(models.RouteChanged{RouteID: "1"})
	_ = s.Post(models.VolumeEdited{Raw: "100000"})
	base := waitForSnapshot(t, s, func(snap models.Snapshot) bool { return snap.Evaluations == 2 }).Evaluations

	raws := []string{"1", "10", "100", "1.000", "1.000.000"}
	for _, raw := range raws {
		if err := s.Post(models.CollateralEdited{Raw: raw}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}

	snap := waitForSnapshot(t, s, func(snap models.Snapshot) bool { return snap.Quote != nil })
	if snap.Evaluations != base+1 {
		t.Fatalf("evaluations = %d, want %d", snap.Evaluations, base+1)
	}
	if snap.Quote.Collateral != 1_000_000 || snap.Quote.BaseTotal != 50_030_000 {
		t.Fatalf("quote used a stale keystroke: %+v", snap.Quote)
	}

	time.Sleep(250 * time.Millisecond)
	snap, _ = s.Snapshot(context.Background())
	if snap.Evaluations != base+1 {
		t.Fatalf("late timer fired: evaluations = %d", snap.Evaluations)
	}
}

func TestSessionRouteChangeCancelsPendingRecalc(t *testing.T) {
	hub := newTestHub(t, &fakeEndpoint{status: http.StatusCreated})
	s := hub.Open(context.Background(), "client", models.Credentials{})

	_ = s.Post(models.VolumeEdited{Raw: "100000"})
	_ = s.Post(models.CollateralEdited{Raw: "1000000"})
	_ = s.Post(models.RouteChanged{RouteID: "1"})

	snap := waitForSnapshot(t, s, func(snap models.Snapshot) bool { return snap.Quote != nil })
	time.Sleep(250 * time.Millisecond)
	after, _ := s.Snapshot(context.Background())
	if after.Evaluations != snap.Evaluations {
		t.Fatalf("cancelled timer still evaluated: %d -> %d", snap.Evaluations, after.Evaluations)
	}
}

func TestSessionExpressSubmission(t *testing.T) {
	endpoint := &fakeEndpoint{status: http.StatusCreated}
	hub := newTestHub(t, endpoint)
	s := hub.Open(context.Background(), "client", models.Credentials{})

	_ = s.Post(models.RouteChanged{RouteID: "1"})
	_ = s.Post(models.VolumeEdited{Raw: "100000"})
	_ = s.Post(models.CollateralEdited{Raw: "1000000"})
	_ = s.Calculate()
	_ = s.Post(models.ExpressToggled{On: true})
	waitForSnapshot(t, s, func(snap models.Snapshot) bool { return snap.ModalOpen })

	if err := s.SendExpressOnce(); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := waitForSnapshot(t, s, func(snap models.Snapshot) bool { return snap.State == models.StateSubmitted })
	if snap.CooldownMs <= 0 || snap.CooldownText == "" {
		t.Fatalf("cooldown not reported: %+v", snap)
	}
	if endpoint.Calls() != 1 {
		t.Fatalf("calls = %d", endpoint.Calls())
	}

	// a second tab of the same client shares the cooldown
	other := hub.Open(context.Background(), "client", models.Credentials{})
	_ = other.Post(models.RouteChanged{RouteID: "1"})
	_ = other.Post(models.VolumeEdited{Raw: "100000"})
	_ = other.Post(models.CollateralEdited{Raw: "5"})
	_ = other.Calculate()
	_ = other.Post(models.ExpressToggled{On: true})
	waitForSnapshot(t, other, func(snap models.Snapshot) bool { return snap.ModalOpen })
	_ = other.SendExpressOnce()

	blocked := waitForSnapshot(t, other, func(snap models.Snapshot) bool { return snap.Notice.Kind == models.NoticeCooldown })
	if blocked.State != models.StateReadyExpressPending {
		t.Fatalf("state %s", blocked.State)
	}
	if endpoint.Calls() != 1 {
		t.Fatalf("cooldown must prevent the request, calls = %d", endpoint.Calls())
	}
}

func TestHubSetRoutesDataBroadcasts(t *testing.T) {
	hub := newTestHub(t, &fakeEndpoint{status: http.StatusCreated})
	s := hub.Open(context.Background(), "client", models.Credentials{})
	_ = s.Post(models.RouteChanged{RouteID: "2"})
	_ = s.Post(models.VolumeEdited{Raw: "1000"})
	waitForSnapshot(t, s, func(snap models.Snapshot) bool { return snap.Quote != nil && snap.Quote.BaseTotal == 300_000 })

	res, err := hub.SetRoutesData([]byte(`[{"id":"2","from":"Jita","to":"Dodixie","pricePerM3":400,"noCollateral":true}]`))
	if err != nil || res.Accepted != 1 {
		t.Fatalf("set routes: %+v %v", res, err)
	}
	snap := waitForSnapshot(t, s, func(snap models.Snapshot) bool {
		return snap.Quote != nil && snap.Quote.BaseTotal == 400_000
	})
	if snap.State != models.StateReadyStandard {
		t.Fatalf("state %s", snap.State)
	}

	if _, err := hub.SetRoutesData([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if hub.Registry().Len() != 1 {
		t.Fatalf("bad document replaced the registry")
	}
}

func TestHubReleaseForgetsIdleClients(t *testing.T) {
	hub := newTestHub(t, &fakeEndpoint{status: http.StatusCreated})
	sessions := make([]*Session, 3)
	for i := range sessions {
		sessions[i] = hub.Open(context.Background(), "client-"+strconv.Itoa(i%2), models.Credentials{})
	}
	if hub.Count() != 3 {
		t.Fatalf("count = %d", hub.Count())
	}
	if hub.Submitter("client-0") != hub.Submitter("client-0") {
		t.Fatalf("submitter must be shared per client")
	}
	for _, s := range sessions {
		hub.Release(s)
	}
	if hub.Count() != 0 {
		t.Fatalf("count = %d", hub.Count())
	}
	if err := sessions[0].Post(models.Recalculate{}); err != ErrSessionClosed {
		t.Fatalf("post after release: %v", err)
	}
}

func TestHubSendExpressSharesCooldown(t *testing.T) {
	endpoint := &fakeEndpoint{status: http.StatusCreated}
	hub := newTestHub(t, endpoint)
	ctx := context.Background()
	q := expressQuote(t)

	if got := hub.CooldownRemainingMs(ctx, "api-client"); got != 0 {
		t.Fatalf("fresh client has cooldown %d", got)
	}
	if err := hub.SendExpress(ctx, "api-client", q, models.Credentials{}); err != nil {
		t.Fatalf("send: %v", err)
	}

	// the entry is gone but the store still knows the lockout
	if got := hub.CooldownRemainingMs(ctx, "api-client"); got <= 0 {
		t.Fatalf("expected cooldown after send, got %d", got)
	}
	err := hub.SendExpress(ctx, "api-client", q, models.Credentials{})
	var cd *models.CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	if endpoint.Calls() != 1 {
		t.Fatalf("endpoint called %d times", endpoint.Calls())
	}
	if got := hub.CooldownRemainingMs(ctx, "other-client"); got != 0 {
		t.Fatalf("cooldown leaked to another client: %d", got)
	}
}
