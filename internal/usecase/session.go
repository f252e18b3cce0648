package usecase

import (
	"context"
	"errors"
	"time"

	"speedliner/internal/domain/models"
	drepo "speedliner/internal/domain/repository"
	"speedliner/pkg/logger"
	"speedliner/pkg/util"
)

var ErrSessionClosed = errors.New("session closed")

// SessionConfig tunes one quoting session.
type SessionConfig struct {
	Debounce  time.Duration
	QueueSize int
	Cooldown  time.Duration
}

// Session runs one workflow controller on its own event loop. Everything that
// touches controller state happens on that loop; timers and network calls
// post their results back as events.
type Session struct {
	id        string
	clientKey string
	ctl       *WorkflowController
	debounce  *Debouncer
	submitter *SubmissionClient
	creds     models.Credentials
	cfg       SessionConfig
	metrics   drepo.Metrics
	logger    *logger.Logger

	events  chan models.Event
	updates chan models.Snapshot

	// cooldownUntil is the last known end of the lockout, epoch ms.
	cooldownUntil int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type snapshotRequest struct {
	reply chan models.Snapshot
}

func (snapshotRequest) EventName() string { return "snapshot_request" }

type cooldownObserved struct {
	remainingMs int64
	at          time.Time
}

func (cooldownObserved) EventName() string { return "cooldown_observed" }

func NewSession(
	id, clientKey string,
	routes RouteLookup,
	submitter *SubmissionClient,
	creds models.Credentials,
	cfg SessionConfig,
	metrics drepo.Metrics,
	log *logger.Logger,
) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 120 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Session{
		id:        id,
		clientKey: clientKey,
		ctl:       NewWorkflowController(routes),
		submitter: submitter,
		creds:     creds,
		cfg:       cfg,
		metrics:   metricsOrNop(metrics),
		logger:    log.With(logger.String("session_id", id)),
		events:    make(chan models.Event, cfg.QueueSize),
		updates:   make(chan models.Snapshot, 1),
		done:      make(chan struct{}),
	}
	s.debounce = NewDebouncer(cfg.Debounce, func(seq uint64) {
		_ = s.Post(models.RecalculateDue{Seq: seq})
	})
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) ClientKey() string { return s.clientKey }

// Start runs the event loop until ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.loop()

	if s.submitter != nil {
		go func() {
			remaining := s.submitter.CooldownRemainingMs(s.ctx)
			if remaining > 0 {
				_ = s.Post(cooldownObserved{remainingMs: remaining, at: time.Now()})
			}
		}()
	}
}

// Close stops the loop and waits for it to exit.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.debounce.Cancel()
}

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Post queues an event. It blocks while the queue is full.
func (s *Session) Post(ev models.Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// TryPost queues an event unless the queue is full.
func (s *Session) TryPost(ev models.Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Calculate recomputes the quote from the current inputs.
func (s *Session) Calculate() error {
	return s.Post(models.Recalculate{})
}

// SendExpressOnce confirms the pending express request.
func (s *Session) SendExpressOnce() error {
	return s.Post(models.ConfirmClicked{})
}

// Snapshot asks the loop for the current state.
func (s *Session) Snapshot(ctx context.Context) (models.Snapshot, error) {
	req := snapshotRequest{reply: make(chan models.Snapshot, 1)}
	if err := s.Post(req); err != nil {
		return models.Snapshot{}, err
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return models.Snapshot{}, ctx.Err()
	case <-s.done:
		return models.Snapshot{}, ErrSessionClosed
	}
}

// Updates delivers a snapshot after each event that changed something.
// Only the newest undelivered snapshot is kept.
func (s *Session) Updates() <-chan models.Snapshot { return s.updates }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev models.Event) {
	switch e := ev.(type) {
	case snapshotRequest:
		e.reply <- s.snapshot()
		return
	case cooldownObserved:
		s.observeCooldown(e.remainingMs, e.at)
		s.publish()
		return
	case models.RecalculateDue:
		if !s.debounce.Claim(e.Seq) {
			return
		}
	case models.SubmissionResult:
		s.afterSubmission(e)
	}

	cmds := s.ctl.Handle(ev)

	if cmds.CancelRecalc {
		s.debounce.Cancel()
	}
	if cmds.ScheduleRecalc {
		s.debounce.Schedule()
	}
	if eval := cmds.Evaluation; eval != nil {
		if eval.Err != nil {
			var ve *models.ValidationError
			if errors.As(eval.Err, &ve) && ve != models.ErrNoRouteSelected {
				s.metrics.RecordValidationFailure(ve.Code)
			}
		} else {
			s.metrics.RecordQuote(eval.Quote.ExpressOn)
		}
	}
	if cmds.Submit != nil {
		s.startSubmission(cmds.Attempt, *cmds.Submit)
	}
	s.publish()
}

func (s *Session) startSubmission(attempt uint64, q models.Quote) {
	if s.submitter == nil {
		s.TryPost(models.SubmissionResult{
			Attempt: attempt,
			Err:     &models.SubmissionError{Kind: models.SubmissionNetwork, Err: errors.New("express submission not configured")},
		})
		return
	}
	// the request outlives a closed socket so a sent express still arms the cooldown
	ctx := context.WithoutCancel(s.ctx)
	go func() {
		err := s.submitter.SendExpressOnce(ctx, q, s.creds)
		if postErr := s.Post(models.SubmissionResult{Attempt: attempt, Err: err}); postErr != nil {
			s.logger.Debug("submission result dropped", logger.Uint64("attempt", attempt))
		}
	}()
}

func (s *Session) afterSubmission(e models.SubmissionResult) {
	var cooldown *models.CooldownError
	switch {
	case e.Err == nil:
		s.observeCooldown(s.cfg.Cooldown.Milliseconds(), time.Now())
	case errors.As(e.Err, &cooldown):
		s.observeCooldown(cooldown.RemainingMs, time.Now())
	}
}

func (s *Session) observeCooldown(remainingMs int64, at time.Time) {
	if remainingMs <= 0 {
		return
	}
	if until := at.UnixMilli() + remainingMs; until > s.cooldownUntil {
		s.cooldownUntil = until
	}
}

func (s *Session) snapshot() models.Snapshot {
	snap := s.ctl.Snapshot()
	snap.SessionID = s.id
	if remaining := s.cooldownUntil - time.Now().UnixMilli(); remaining > 0 {
		snap.CooldownMs = remaining
		snap.CooldownText = "Cooldown active: " + util.FormatCountdown(remaining)
	}
	return snap
}

func (s *Session) publish() {
	snap := s.snapshot()
	select {
	case s.updates <- snap:
		return
	default:
	}
	// drop the stale one and retry once; the reader may have raced us
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}
