package usecase

import (
	"net/http"
	"testing"

	"speedliner/internal/domain/models"
)

func readyController(t *testing.T) *WorkflowController {
	t.Helper()
	c := NewWorkflowController(testRegistry(t))
	c.Handle(models.RouteChanged{RouteID: "1"})
	c.Handle(models.VolumeEdited{Raw: "100000"})
	c.Handle(models.CollateralEdited{Raw: "1000000"})
	c.Handle(models.RecalculateDue{})
	if c.State() != models.StateReadyStandard {
		t.Fatalf("setup: state %s", c.State())
	}
	return c
}

func TestWorkflowInitialStates(t *testing.T) {
	c := NewWorkflowController(testRegistry(t))
	if c.State() != models.StateIdle {
		t.Fatalf("initial state %s", c.State())
	}
	if snap := c.Snapshot(); snap.Message != "" || snap.IsError {
		t.Fatalf("idle snapshot shows a message: %+v", snap)
	}

	c.Handle(models.VolumeEdited{Raw: "100000"})
	if c.State() != models.StateAwaitingInput {
		t.Fatalf("state %s, want awaiting_input", c.State())
	}
	snap := c.Snapshot()
	if snap.Message != "Please select a route." || !snap.IsError || snap.VolumeDisplay != "100.000" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	c.Handle(models.RouteChanged{RouteID: "1"})
	if c.State() != models.StateInvalid {
		t.Fatalf("state %s, want invalid", c.State())
	}
	if snap := c.Snapshot(); snap.Message != "Please enter a valid collateral." {
		t.Fatalf("message %q", snap.Message)
	}
}

func TestWorkflowCollateralIsDebounced(t *testing.T) {
	c := NewWorkflowController(testRegistry(t))
	c.Handle(models.RouteChanged{RouteID: "1"})
	c.Handle(models.VolumeEdited{Raw: "100000"})
	before := c.Evaluations()

	cmds := c.Handle(models.CollateralEdited{Raw: "1.000.000"})
	if !cmds.ScheduleRecalc || cmds.Evaluation != nil {
		t.Fatalf("collateral edits must only schedule: %+v", cmds)
	}
	if c.Evaluations() != before || c.State() != models.StateAwaitingInput {
		t.Fatalf("evaluated too early: %d %s", c.Evaluations(), c.State())
	}
	if _, ok := c.Quote(); ok {
		t.Fatalf("edit must invalidate the cached quote")
	}

	cmds = c.Handle(models.RecalculateDue{})
	if cmds.Evaluation == nil || cmds.Evaluation.Quote == nil || cmds.Evaluation.Quote.BaseTotal != 50_030_000 {
		t.Fatalf("unexpected evaluation %+v", cmds.Evaluation)
	}
	if c.State() != models.StateReadyStandard {
		t.Fatalf("state %s", c.State())
	}
	if snap := c.Snapshot(); snap.Message != "Reward: 50.030.000 ISK" || snap.Days != 3 {
		t.Fatalf("snapshot %+v", snap)
	}
}

func TestWorkflowModalOncePerToggleOn(t *testing.T) {
	c := readyController(t)

	c.Handle(models.ExpressToggled{On: true})
	if c.State() != models.StateModalOpen || c.ModalOpens() != 1 {
		t.Fatalf("state %s opens %d", c.State(), c.ModalOpens())
	}
	tr := c.Transitions()
	if tr[len(tr)-2].To != models.StateReadyExpressPending || tr[len(tr)-1].To != models.StateModalOpen {
		t.Fatalf("modal must open from ready_express_pending: %+v", tr)
	}

	if cmds := c.Handle(models.ExpressToggled{On: true}); cmds.Evaluation != nil {
		t.Fatalf("repeated toggle-on must be a no-op")
	}
	c.Handle(models.Recalculate{})
	if c.ModalOpens() != 1 || c.State() != models.StateModalOpen {
		t.Fatalf("recalculation reopened the modal: opens %d state %s", c.ModalOpens(), c.State())
	}

	c.Handle(models.ModalDismissed{Reason: models.DismissEscape})
	if c.State() != models.StateReadyStandard || c.Inputs().Express || c.LastDismiss() != models.DismissEscape {
		t.Fatalf("dismiss: state %s express %v reason %s", c.State(), c.Inputs().Express, c.LastDismiss())
	}
	q, _ := c.Quote()
	if q.ExpressOn || q.FinalTotal != 50_030_000 {
		t.Fatalf("dismiss must recompute as standard: %+v", q)
	}

	c.Handle(models.ExpressToggled{On: true})
	if c.ModalOpens() != 2 {
		t.Fatalf("off-then-on must reset eligibility, opens %d", c.ModalOpens())
	}
}

func TestWorkflowEditsDoNotReopenModal(t *testing.T) {
	c := readyController(t)
	c.Handle(models.ExpressToggled{On: true})
	cmds := c.Handle(models.ConfirmClicked{})
	c.Handle(models.SubmissionResult{Attempt: cmds.Attempt})
	if c.State() != models.StateSubmitted {
		t.Fatalf("state %s", c.State())
	}

	c.Handle(models.VolumeEdited{Raw: "200000"})
	if c.State() != models.StateReadyExpressPending || c.ModalOpens() != 1 {
		t.Fatalf("state %s opens %d", c.State(), c.ModalOpens())
	}
	if snap := c.Snapshot(); snap.Notice.Kind != models.NoticeNone {
		t.Fatalf("input must clear the notice: %+v", snap.Notice)
	}

	c.Handle(models.ModalRequested{})
	if c.State() != models.StateModalOpen || c.ModalOpens() != 2 {
		t.Fatalf("explicit request must reopen: state %s opens %d", c.State(), c.ModalOpens())
	}
}

func TestWorkflowExpressWaitsForValidQuote(t *testing.T) {
	c := NewWorkflowController(testRegistry(t))
	c.Handle(models.RouteChanged{RouteID: "1"})
	c.Handle(models.ExpressToggled{On: true})
	if c.State() != models.StateInvalid || c.ModalOpens() != 0 {
		t.Fatalf("state %s opens %d", c.State(), c.ModalOpens())
	}
	c.Handle(models.VolumeEdited{Raw: "100000"})
	c.Handle(models.CollateralEdited{Raw: "1000000"})
	c.Handle(models.RecalculateDue{})
	if c.State() != models.StateModalOpen || c.ModalOpens() != 1 {
		t.Fatalf("state %s opens %d", c.State(), c.ModalOpens())
	}
	if snap := c.Snapshot(); snap.Days != 1 || snap.Quote.FinalTotal != 100_060_000 {
		t.Fatalf("snapshot %+v", snap)
	}
}

func TestWorkflowSubmission(t *testing.T) {
	c := readyController(t)
	c.Handle(models.ExpressToggled{On: true})

	cmds := c.Handle(models.ConfirmClicked{})
	if cmds.Submit == nil || cmds.Attempt != 1 || cmds.Submit.FinalTotal != 100_060_000 {
		t.Fatalf("confirm must request a submission: %+v", cmds)
	}
	if c.State() != models.StateSubmitting {
		t.Fatalf("state %s", c.State())
	}
	if again := c.Handle(models.ConfirmClicked{}); again.Submit != nil {
		t.Fatalf("confirm outside the dialog must be ignored")
	}

	c.Handle(models.SubmissionResult{Attempt: 1})
	if c.State() != models.StateSubmitted {
		t.Fatalf("state %s", c.State())
	}
	if snap := c.Snapshot(); snap.Notice.Kind != models.NoticeSubmitted {
		t.Fatalf("notice %+v", snap.Notice)
	}
}

func TestWorkflowCooldownBlocked(t *testing.T) {
	c := readyController(t)
	c.Handle(models.ExpressToggled{On: true})
	cmds := c.Handle(models.ConfirmClicked{})

	c.Handle(models.SubmissionResult{Attempt: cmds.Attempt, Err: &models.CooldownError{RemainingMs: 60_000}})
	if c.State() != models.StateReadyExpressPending {
		t.Fatalf("state %s, want ready_express_pending", c.State())
	}
	tr := c.Transitions()
	if tr[len(tr)-2].To != models.StateCooldownBlocked {
		t.Fatalf("cooldown_blocked not recorded: %+v", tr)
	}
	if _, ok := c.Quote(); !ok || !c.Inputs().Express {
		t.Fatalf("a blocked submission must not clear anything")
	}
	if snap := c.Snapshot(); snap.Notice.Kind != models.NoticeCooldown || snap.Notice.Message != "Cooldown active: 01:00" {
		t.Fatalf("notice %+v", snap.Notice)
	}
}

func TestWorkflowRejectedSubmissionAllowsRetry(t *testing.T) {
	c := readyController(t)
	c.Handle(models.ExpressToggled{On: true})
	first := c.Handle(models.ConfirmClicked{})

	c.Handle(models.SubmissionResult{
		Attempt: first.Attempt,
		Err:     &models.SubmissionError{Kind: models.SubmissionRejected, Status: http.StatusInternalServerError},
	})
	if c.State() != models.StateModalOpen {
		t.Fatalf("state %s", c.State())
	}
	if snap := c.Snapshot(); snap.Notice.Message != "Express request failed (status 500)." {
		t.Fatalf("notice %+v", snap.Notice)
	}

	second := c.Handle(models.ConfirmClicked{})
	if second.Submit == nil || second.Attempt != first.Attempt+1 {
		t.Fatalf("retry not allowed: %+v", second)
	}
	c.Handle(models.SubmissionResult{Attempt: first.Attempt})
	if c.State() != models.StateSubmitting {
		t.Fatalf("stale result applied: %s", c.State())
	}
}

func TestWorkflowEditRevokesOpenModal(t *testing.T) {
	c := readyController(t)
	c.Handle(models.ExpressToggled{On: true})

	c.Handle(models.VolumeEdited{Raw: "abc"})
	if c.Inputs().Express || c.LastDismiss() != models.DismissRevoked {
		t.Fatalf("edit under the dialog must revoke express")
	}
	if c.State() != models.StateInvalid {
		t.Fatalf("state %s", c.State())
	}
	if _, ok := c.Quote(); ok {
		t.Fatalf("invalid input must clear the quote")
	}
	if snap := c.Snapshot(); snap.Message != "Please enter valid values for volume." || !snap.IsError {
		t.Fatalf("snapshot %+v", snap)
	}
}

func TestWorkflowRoutesReplaced(t *testing.T) {
	reg := testRegistry(t)
	c := NewWorkflowController(reg)
	if cmds := c.Handle(models.RoutesReplaced{Version: 2}); cmds.Evaluation != nil || c.State() != models.StateIdle {
		t.Fatalf("untouched session must stay idle")
	}

	c.Handle(models.RouteChanged{RouteID: "2"})
	c.Handle(models.VolumeEdited{Raw: "1000"})
	if c.State() != models.StateReadyStandard {
		t.Fatalf("state %s", c.State())
	}
	snap := c.Snapshot()
	if !snap.CollateralDisabled || snap.CollateralHint != "For this route no collateral is required." || len(snap.RouteFlags) != 1 {
		t.Fatalf("snapshot %+v", snap)
	}

	reg.Replace([]models.Route{{ID: "1", From: "Jita", To: "Amarr", PricePerM3: 500}})
	c.Handle(models.RoutesReplaced{Version: reg.Version()})
	if c.State() != models.StateAwaitingInput {
		t.Fatalf("removed route: state %s", c.State())
	}
	if snap := c.Snapshot(); snap.Message != "Please select a route." {
		t.Fatalf("message %q", snap.Message)
	}
}
