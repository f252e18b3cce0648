package repository

import (
	"context"
	"time"

	"speedliner/internal/domain/models"
)

// RouteSource returns the raw route collection as published upstream.
type RouteSource interface {
	FetchRoutes(ctx context.Context) ([]byte, error)
}

// IdentitySource resolves the character behind a set of browser credentials.
type IdentitySource interface {
	Resolve(ctx context.Context, creds models.Credentials) (models.Identity, error)
}

// SubmissionEndpoint posts an express request and reports the HTTP status.
// A non-nil error means the request never got a response.
type SubmissionEndpoint interface {
	Submit(ctx context.Context, req *models.ExpressRequest, creds models.Credentials) (int, error)
}

// CooldownStore is a key-value store with per-key expiry.
type CooldownStore interface {
	Load(ctx context.Context, key string) (epochMs int64, ok bool, err error)
	Save(ctx context.Context, key string, epochMs int64, ttl time.Duration) error
}

// AuditSink records submission attempts.
type AuditSink interface {
	Record(ctx context.Context, ev *models.AuditEvent) error
	Close() error
}

type Metrics interface {
	RecordQuote(express bool)
	RecordValidationFailure(code string)
	RecordSubmission(outcome models.AuditOutcome)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetRoutesLoaded(n int)
	SetActiveSessions(n int)
}
