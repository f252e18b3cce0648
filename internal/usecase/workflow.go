package usecase

import (
	"errors"
	"fmt"

	"speedliner/internal/domain/models"
	"speedliner/pkg/util"
)

// RouteLookup is the part of the registry the controller reads.
type RouteLookup interface {
	Get(id string) (models.Route, bool)
}

// Transition is one recorded state change.
type Transition struct {
	From  models.WorkflowState
	To    models.WorkflowState
	Event string
}

// Evaluation is the outcome of one calculation run by the controller.
type Evaluation struct {
	Quote *models.Quote
	Err   error
}

// Commands tell the session which side effects an event requires.
type Commands struct {
	ScheduleRecalc bool
	CancelRecalc   bool
	// Submit is set when the user confirmed; the session sends it and reports
	// back with a SubmissionResult carrying Attempt.
	Submit     *models.Quote
	Attempt    uint64
	Evaluation *Evaluation
}

const maxTransitions = 64

// WorkflowController owns the express confirmation state of one session. It
// does no I/O: every event produces a deterministic next state plus the
// commands the caller must carry out.
type WorkflowController struct {
	routes RouteLookup
	cache  *QuoteCache

	inputs      models.FormInputs
	state       models.WorkflowState
	interacted  bool
	modalShown  bool
	attempt     uint64
	lastErr     error
	notice      models.Notice
	evaluations uint64
	modalOpens  uint64
	lastDismiss models.DismissReason
	transitions []Transition
	event       string
}

func NewWorkflowController(routes RouteLookup) *WorkflowController {
	return &WorkflowController{
		routes: routes,
		cache:  &QuoteCache{},
		state:  models.StateIdle,
	}
}

// Handle applies ev and returns the side effects it requires.
func (c *WorkflowController) Handle(ev models.Event) Commands {
	c.event = ev.EventName()

	switch e := ev.(type) {
	case models.RouteChanged:
		c.inputs.RouteID = e.RouteID
		c.touch()
		return c.evaluateNow()

	case models.VolumeEdited:
		c.inputs.VolumeRaw = e.Raw
		c.touch()
		return c.evaluateNow()

	case models.CollateralEdited:
		c.inputs.CollateralRaw = e.Raw
		c.touch()
		return Commands{ScheduleRecalc: true}

	case models.ExpressToggled:
		if e.On == c.inputs.Express {
			return Commands{}
		}
		if c.state == models.StateModalOpen && !e.On {
			return c.dismiss(models.DismissCancel)
		}
		c.inputs.Express = e.On
		c.modalShown = false
		c.touch()
		return c.evaluateNow()

	case models.RoutesReplaced:
		c.cache.Invalidate()
		if !c.interacted {
			return Commands{}
		}
		if c.state == models.StateModalOpen {
			c.revoke()
		}
		return c.evaluateNow()

	case models.Recalculate:
		return c.evaluateNow()

	case models.RecalculateDue:
		return Commands{Evaluation: c.evaluate()}

	case models.ModalRequested:
		if c.state == models.StateReadyExpressPending {
			c.openModal()
		}
		return Commands{}

	case models.ModalDismissed:
		if c.state != models.StateModalOpen {
			return Commands{}
		}
		return c.dismiss(e.Reason)

	case models.ConfirmClicked:
		if c.state != models.StateModalOpen {
			return Commands{}
		}
		q, ok := c.cache.Get()
		if !ok || !q.ExpressOn {
			return Commands{}
		}
		c.attempt++
		c.notice = models.Notice{}
		c.setState(models.StateSubmitting)
		return Commands{Submit: &q, Attempt: c.attempt}

	case models.SubmissionResult:
		c.handleResult(e)
		return Commands{}
	}
	return Commands{}
}

// touch records an input change: the cached quote is stale and the notice of
// the previous action is gone.
func (c *WorkflowController) touch() {
	c.interacted = true
	c.cache.Invalidate()
	c.lastErr = nil
	c.notice = models.Notice{}
	if c.state == models.StateModalOpen {
		c.revoke()
		return
	}
	c.setState(models.StateAwaitingInput)
}

// revoke closes the dialog because what it confirms no longer holds.
func (c *WorkflowController) revoke() {
	c.inputs.Express = false
	c.modalShown = false
	c.lastDismiss = models.DismissRevoked
	c.setState(models.StateAwaitingInput)
}

func (c *WorkflowController) dismiss(reason models.DismissReason) Commands {
	c.inputs.Express = false
	c.modalShown = false
	c.lastDismiss = reason
	c.cache.Invalidate()
	c.notice = models.Notice{}
	c.setState(models.StateAwaitingInput)
	return c.evaluateNow()
}

func (c *WorkflowController) evaluateNow() Commands {
	return Commands{CancelRecalc: true, Evaluation: c.evaluate()}
}

func (c *WorkflowController) evaluate() *Evaluation {
	c.evaluations++
	seq := c.cache.Seq()

	var route *models.Route
	if c.inputs.RouteID != "" {
		if r, ok := c.routes.Get(c.inputs.RouteID); ok {
			route = &r
		}
	}

	q, err := Calculate(route, c.inputs.VolumeRaw, c.inputs.CollateralRaw, c.inputs.Express)
	if err != nil {
		c.cache.Clear(seq)
		c.lastErr = err
		switch {
		case !errors.Is(err, models.ErrNoRouteSelected):
			c.setState(models.StateInvalid)
		case c.interacted:
			c.setState(models.StateAwaitingInput)
		default:
			c.setState(models.StateIdle)
		}
		return &Evaluation{Err: err}
	}

	c.cache.Store(seq, q)
	c.lastErr = nil

	switch {
	case c.state == models.StateSubmitting || c.state == models.StateModalOpen:
		// quote refreshed under an open dialog or an outstanding request
	case !q.ExpressOn:
		c.setState(models.StateReadyStandard)
	case c.modalShown:
		c.setState(models.StateReadyExpressPending)
	default:
		c.setState(models.StateReadyExpressPending)
		c.openModal()
	}
	return &Evaluation{Quote: &q}
}

func (c *WorkflowController) openModal() {
	c.modalShown = true
	c.modalOpens++
	c.setState(models.StateModalOpen)
}

func (c *WorkflowController) handleResult(e models.SubmissionResult) {
	if e.Attempt != c.attempt {
		return
	}
	submitting := c.state == models.StateSubmitting

	var cooldown *models.CooldownError
	switch {
	case e.Err == nil:
		c.notice = models.Notice{Kind: models.NoticeSubmitted, Message: "Express request sent."}
		if submitting {
			c.setState(models.StateSubmitted)
		}

	case errors.Is(e.Err, models.ErrSubmissionInFlight):
		if submitting {
			c.setState(models.StateModalOpen)
		}

	case errors.As(e.Err, &cooldown):
		c.notice = models.Notice{
			Kind:    models.NoticeCooldown,
			Message: "Cooldown active: " + util.FormatCountdown(cooldown.RemainingMs),
		}
		if submitting {
			c.setState(models.StateCooldownBlocked)
			c.setState(models.StateReadyExpressPending)
		}

	default:
		c.notice = models.Notice{Kind: models.NoticeSubmissionError, Message: submissionErrorText(e.Err)}
		if submitting {
			c.setState(models.StateModalOpen)
		}
	}
}

func submissionErrorText(err error) string {
	var se *models.SubmissionError
	if errors.As(err, &se) && se.Kind == models.SubmissionRejected {
		return fmt.Sprintf("Express request failed (status %d).", se.Status)
	}
	return "Express request failed: network error."
}

func (c *WorkflowController) setState(to models.WorkflowState) {
	if to == c.state {
		return
	}
	if len(c.transitions) == maxTransitions {
		copy(c.transitions, c.transitions[1:])
		c.transitions = c.transitions[:maxTransitions-1]
	}
	c.transitions = append(c.transitions, Transition{From: c.state, To: to, Event: c.event})
	c.state = to
}

func (c *WorkflowController) State() models.WorkflowState { return c.state }

func (c *WorkflowController) Inputs() models.FormInputs { return c.inputs }

func (c *WorkflowController) Quote() (models.Quote, bool) { return c.cache.Get() }

// ModalOpens counts how often the confirmation dialog was opened.
func (c *WorkflowController) ModalOpens() uint64 { return c.modalOpens }

func (c *WorkflowController) Evaluations() uint64 { return c.evaluations }

func (c *WorkflowController) LastDismiss() models.DismissReason { return c.lastDismiss }

// Transitions returns the most recent state changes, oldest first.
func (c *WorkflowController) Transitions() []Transition {
	out := make([]Transition, len(c.transitions))
	copy(out, c.transitions)
	return out
}

// Snapshot describes the controller state for rendering. Cooldown fields are
// left for the session to fill in.
func (c *WorkflowController) Snapshot() models.Snapshot {
	snap := models.Snapshot{
		State:             c.state,
		ModalOpen:         c.state == models.StateModalOpen,
		Express:           c.inputs.Express,
		Days:              models.DaysStandard,
		VolumeDisplay:     FormatDigits(c.inputs.VolumeRaw),
		CollateralDisplay: FormatDigits(c.inputs.CollateralRaw),
		Notice:            c.notice,
		Evaluations:       c.evaluations,
	}
	if c.inputs.Express {
		snap.Days = models.DaysExpress
	}

	if route, ok := c.routes.Get(c.inputs.RouteID); ok && c.inputs.RouteID != "" {
		snap.RouteFlags = route.Flags()
		snap.CollateralDisabled = route.NoCollateral
		snap.CollateralHint = CollateralHint(route)
		if route.NoCollateral {
			snap.CollateralDisplay = ""
		}
	}

	if q, ok := c.cache.Get(); ok {
		snap.Quote = &q
		snap.Message = RenderQuote(q)
		return snap
	}
	if c.lastErr != nil && (c.interacted || !errors.Is(c.lastErr, models.ErrNoRouteSelected)) {
		snap.Message = RenderError(c.lastErr)
		snap.IsError = true
	}
	return snap
}
