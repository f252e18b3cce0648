package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"speedliner/internal/domain/models"
	drepo "speedliner/internal/domain/repository"
	"speedliner/pkg/logger"
)

// SubmitterFactory builds the submission client of one client key.
type SubmitterFactory struct {
	Identity  drepo.IdentitySource
	Endpoint  drepo.SubmissionEndpoint
	Store     drepo.CooldownStore
	Audit     drepo.AuditSink
	Metrics   drepo.Metrics
	Logger    *logger.Logger
	Cooldown  time.Duration
	KeyPrefix string
	Config    SubmissionConfig
	Clock     func() time.Time
}

func (f *SubmitterFactory) New(clientKey string) *SubmissionClient {
	opts := []CooldownOption{WithCooldownLogger(f.Logger)}
	if f.Clock != nil {
		opts = append(opts, WithCooldownClock(f.Clock))
	}
	key := clientKey
	if f.KeyPrefix != "" {
		key = f.KeyPrefix + ":" + clientKey
	}
	gate := NewCooldownGate(f.Store, key, f.Cooldown, opts...)
	return NewSubmissionClient(clientKey, f.Identity, f.Endpoint, gate, f.Audit, f.Metrics, f.Logger, f.Config)
}

type clientEntry struct {
	submitter *SubmissionClient
	sessions  int
}

// SessionHub owns the route registry and every open session. Sessions of the
// same client share one submission client, so the in-flight guard and the
// cooldown hold across tabs.
type SessionHub struct {
	registry *RouteRegistry
	factory  *SubmitterFactory
	cfg      SessionConfig
	metrics  drepo.Metrics
	logger   *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	clients  map[string]*clientEntry
}

func NewSessionHub(
	registry *RouteRegistry,
	factory *SubmitterFactory,
	cfg SessionConfig,
	metrics drepo.Metrics,
	log *logger.Logger,
) *SessionHub {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionHub{
		registry: registry,
		factory:  factory,
		cfg:      cfg,
		metrics:  metricsOrNop(metrics),
		logger:   log,
		sessions: make(map[string]*Session),
		clients:  make(map[string]*clientEntry),
	}
}

func (h *SessionHub) Registry() *RouteRegistry { return h.registry }

// Submitter returns the shared submission client of clientKey.
func (h *SessionHub) Submitter(clientKey string) *SubmissionClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clientLocked(clientKey).submitter
}

func (h *SessionHub) clientLocked(clientKey string) *clientEntry {
	entry, ok := h.clients[clientKey]
	if !ok {
		entry = &clientEntry{}
		if h.factory != nil {
			entry.submitter = h.factory.New(clientKey)
		}
		h.clients[clientKey] = entry
	}
	return entry
}

// CooldownRemainingMs reports the lockout of clientKey without registering it.
func (h *SessionHub) CooldownRemainingMs(ctx context.Context, clientKey string) int64 {
	h.mu.Lock()
	entry, ok := h.clients[clientKey]
	h.mu.Unlock()

	var sub *SubmissionClient
	switch {
	case ok:
		sub = entry.submitter
	case h.factory != nil:
		sub = h.factory.New(clientKey)
	}
	if sub == nil {
		return 0
	}
	return sub.CooldownRemainingMs(ctx)
}

// SendExpress submits q for clientKey outside any session. It shares the
// in-flight guard and cooldown of the client's sessions.
func (h *SessionHub) SendExpress(ctx context.Context, clientKey string, q models.Quote, creds models.Credentials) error {
	h.mu.Lock()
	entry := h.clientLocked(clientKey)
	entry.sessions++
	sub := entry.submitter
	h.mu.Unlock()

	defer h.releaseClient(clientKey)

	if sub == nil {
		return &models.SubmissionError{Kind: models.SubmissionNetwork, Err: errors.New("express submission not configured")}
	}
	return sub.SendExpressOnce(ctx, q, creds)
}

func (h *SessionHub) releaseClient(clientKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseClientLocked(clientKey)
}

func (h *SessionHub) releaseClientLocked(clientKey string) {
	entry, ok := h.clients[clientKey]
	if !ok {
		return
	}
	entry.sessions--
	if entry.sessions <= 0 && (entry.submitter == nil || !entry.submitter.InFlight()) {
		delete(h.clients, clientKey)
	}
}

// Open starts a new session for clientKey.
func (h *SessionHub) Open(ctx context.Context, clientKey string, creds models.Credentials) *Session {
	h.mu.Lock()
	entry := h.clientLocked(clientKey)
	entry.sessions++
	s := NewSession(uuid.NewString(), clientKey, h.registry, entry.submitter, creds, h.cfg, h.metrics, h.logger)
	h.sessions[s.ID()] = s
	count := len(h.sessions)
	h.mu.Unlock()

	s.Start(ctx)
	h.metrics.SetActiveSessions(count)
	h.logger.Debug("session opened", logger.String("session_id", s.ID()))
	return s
}

// Release closes a session and forgets its client once nothing uses it.
func (h *SessionHub) Release(s *Session) {
	s.Close()

	h.mu.Lock()
	if _, ok := h.sessions[s.ID()]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID())
	h.releaseClientLocked(s.ClientKey())
	count := len(h.sessions)
	h.mu.Unlock()

	h.metrics.SetActiveSessions(count)
	h.logger.Debug("session closed", logger.String("session_id", s.ID()))
}

// SetRoutesData replaces the registry from a raw route document and tells
// every session to re-evaluate.
func (h *SessionHub) SetRoutesData(raw []byte) (models.ReplaceRoutesResponse, error) {
	res, err := h.registry.ReplaceJSON(raw)
	if err != nil {
		h.metrics.RecordError("routes_decode")
		return res, err
	}
	h.afterReplace(res)
	return res, nil
}

// SetRoutes is SetRoutesData for already decoded routes.
func (h *SessionHub) SetRoutes(routes []models.Route) models.ReplaceRoutesResponse {
	res := h.registry.Replace(routes)
	h.afterReplace(res)
	return res
}

func (h *SessionHub) afterReplace(res models.ReplaceRoutesResponse) {
	h.metrics.SetRoutesLoaded(res.Accepted)

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	ev := models.RoutesReplaced{Version: res.Version}
	for _, s := range sessions {
		if !s.TryPost(ev) {
			h.logger.Warn("session queue full, routes update dropped", logger.String("session_id", s.ID()))
		}
	}
}

func (h *SessionHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every session.
func (h *SessionHub) Shutdown() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Release(s)
	}
}
