package models

// Event is one input consumed by the workflow controller.
type Event interface {
	EventName() string
}

// RouteChanged selects a route by id; an empty id clears the selection.
type RouteChanged struct{ RouteID string }

// VolumeEdited carries the raw volume field.
type VolumeEdited struct{ Raw string }

// CollateralEdited carries the raw collateral field. It is debounced.
type CollateralEdited struct{ Raw string }

// ExpressToggled flips the express checkbox.
type ExpressToggled struct{ On bool }

// RoutesReplaced is broadcast after the registry received a new collection.
type RoutesReplaced struct{ Version uint64 }

// Recalculate asks for an evaluation of the current inputs.
type Recalculate struct{}

// RecalculateDue is delivered by the debounce timer.
type RecalculateDue struct{ Seq uint64 }

// ModalRequested reopens the confirmation dialog for an already pending express quote.
type ModalRequested struct{}

// ModalDismissed closes the confirmation dialog without submitting.
type ModalDismissed struct{ Reason DismissReason }

// ConfirmClicked confirms the express request in the dialog.
type ConfirmClicked struct{}

// SubmissionResult reports the outcome of the submission started by attempt Attempt.
type SubmissionResult struct {
	Attempt uint64
	Err     error
}

func (RouteChanged) EventName() string     { return "route_changed" }
func (VolumeEdited) EventName() string     { return "volume_edited" }
func (CollateralEdited) EventName() string { return "collateral_edited" }
func (ExpressToggled) EventName() string   { return "express_toggled" }
func (RoutesReplaced) EventName() string   { return "routes_replaced" }
func (Recalculate) EventName() string      { return "recalculate" }
func (RecalculateDue) EventName() string   { return "recalculate_due" }
func (ModalRequested) EventName() string   { return "modal_requested" }
func (ModalDismissed) EventName() string   { return "modal_dismissed" }
func (ConfirmClicked) EventName() string   { return "confirm_clicked" }
func (SubmissionResult) EventName() string { return "submission_result" }
