package usecase

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"speedliner/internal/domain/models"
	drepo "speedliner/internal/domain/repository"
	"speedliner/pkg/logger"
)

// SubmissionConfig holds the fixed parts of every express request.
type SubmissionConfig struct {
	Note            string
	Fallback        models.Identity
	IdentityTimeout time.Duration
	SubmitTimeout   time.Duration
}

// SubmissionClient sends express requests for one client. At most one request
// is outstanding at any time; a call made while another is in flight returns
// ErrSubmissionInFlight without doing anything.
type SubmissionClient struct {
	clientKey string
	identity  drepo.IdentitySource
	endpoint  drepo.SubmissionEndpoint
	gate      *CooldownGate
	audit     drepo.AuditSink
	metrics   drepo.Metrics
	logger    *logger.Logger
	cfg       SubmissionConfig

	inFlight atomic.Bool
}

func NewSubmissionClient(
	clientKey string,
	identity drepo.IdentitySource,
	endpoint drepo.SubmissionEndpoint,
	gate *CooldownGate,
	audit drepo.AuditSink,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg SubmissionConfig,
) *SubmissionClient {
	if log == nil {
		log = logger.Nop()
	}
	return &SubmissionClient{
		clientKey: clientKey,
		identity:  identity,
		endpoint:  endpoint,
		gate:      gate,
		audit:     audit,
		metrics:   metricsOrNop(metrics),
		logger:    log.With(logger.String("client_key", clientKey)),
		cfg:       cfg,
	}
}

// InFlight reports whether a submission is outstanding.
func (c *SubmissionClient) InFlight() bool {
	return c.inFlight.Load()
}

// CooldownRemainingMs exposes the gate of this client.
func (c *SubmissionClient) CooldownRemainingMs(ctx context.Context) int64 {
	return c.gate.RemainingMs(ctx)
}

// SendExpressOnce submits q as an express request. Errors:
//   - ErrSubmissionInFlight: another call is outstanding, nothing was sent
//   - *CooldownError: the gate is locked, nothing was sent
//   - *SubmissionError: the endpoint failed or answered with anything but 201
//
// Only a 201 arms the cooldown.
func (c *SubmissionClient) SendExpressOnce(ctx context.Context, q models.Quote, creds models.Credentials) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return models.ErrSubmissionInFlight
	}
	defer c.inFlight.Store(false)

	start := time.Now()

	if remaining := c.gate.RemainingMs(ctx); remaining > 0 {
		c.logger.Info("express submission refused by cooldown", logger.Int64("remaining_ms", remaining))
		c.metrics.RecordSubmission(models.OutcomeCooldownBlocked)
		return &models.CooldownError{RemainingMs: remaining}
	}

	id := c.resolveIdentity(ctx, creds)
	req := BuildExpressRequest(q, id, c.cfg.Note)

	submitCtx := ctx
	if c.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, c.cfg.SubmitTimeout)
		defer cancel()
	}

	status, err := c.endpoint.Submit(submitCtx, req, creds)
	c.metrics.RecordLatency("submit", time.Since(start).Seconds())

	switch {
	case err != nil:
		c.logger.Warn("express submission failed", logger.String("route", req.Route), logger.Error(err))
		c.record(ctx, req, models.OutcomeNetworkError, 0)
		return &models.SubmissionError{Kind: models.SubmissionNetwork, Err: err}
	case status != http.StatusCreated:
		c.logger.Warn("express submission rejected", logger.String("route", req.Route), logger.Int("status", status))
		c.record(ctx, req, models.OutcomeRejected, status)
		return &models.SubmissionError{
			Kind:   models.SubmissionRejected,
			Status: status,
			Err:    fmt.Errorf("unexpected status %d", status),
		}
	}

	if err := c.gate.Arm(ctx, c.gate.Now()); err != nil {
		c.metrics.RecordError("cooldown_save")
		c.logger.Error("cooldown store save failed", logger.Error(err))
	}

	c.logger.Info("express submission sent",
		logger.String("route", req.Route),
		logger.Int64("reward_isk", req.RewardISK),
		logger.Int64("character_id", req.CustomerCharID),
	)
	c.record(ctx, req, models.OutcomeSubmitted, status)
	return nil
}

func (c *SubmissionClient) resolveIdentity(ctx context.Context, creds models.Credentials) models.Identity {
	if c.identity == nil {
		return c.cfg.Fallback
	}

	lookupCtx := ctx
	if c.cfg.IdentityTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, c.cfg.IdentityTimeout)
		defer cancel()
	}

	id, err := c.identity.Resolve(lookupCtx, creds)
	if err != nil {
		c.logger.Warn("identity lookup failed, using fallback identity", logger.Error(err))
		return c.cfg.Fallback
	}
	return id
}

func (c *SubmissionClient) record(ctx context.Context, req *models.ExpressRequest, outcome models.AuditOutcome, status int) {
	c.metrics.RecordSubmission(outcome)
	if c.audit == nil {
		return
	}

	ev := &models.AuditEvent{
		ID:            uuid.NewString(),
		ClientKey:     c.clientKey,
		Route:         req.Route,
		RewardISK:     req.RewardISK,
		VolumeM3:      req.VolumeM3,
		CollateralISK: req.CollateralISK,
		CharacterID:   req.CustomerCharID,
		CharacterName: req.CustomerCharName,
		Outcome:       outcome,
		Status:        status,
		Subject:       req.Subject,
		OccurredAt:    time.Now().UTC(),
	}
	if err := c.audit.Record(ctx, ev); err != nil {
		c.metrics.RecordError("audit")
		c.logger.Error("audit record failed", logger.String("outcome", string(outcome)), logger.Error(err))
	}
}
