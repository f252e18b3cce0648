package models

// WorkflowState is the express confirmation state of one quoting session.
type WorkflowState string

const (
	StateIdle                WorkflowState = "idle"
	StateAwaitingInput       WorkflowState = "awaiting_input"
	StateInvalid             WorkflowState = "invalid"
	StateReadyStandard       WorkflowState = "ready_standard"
	StateReadyExpressPending WorkflowState = "ready_express_pending"
	StateModalOpen           WorkflowState = "modal_open"
	StateSubmitting          WorkflowState = "submitting"
	StateCooldownBlocked     WorkflowState = "cooldown_blocked"
	StateSubmitted           WorkflowState = "submitted"
)

// DismissReason records how the confirmation dialog was closed.
type DismissReason string

const (
	DismissCancel  DismissReason = "cancel"
	DismissEscape  DismissReason = "escape"
	DismissOverlay DismissReason = "overlay"
	DismissClose   DismissReason = "close"
	DismissRevoked DismissReason = "revoked"
)

// NoticeKind is a transient, visual-only signal attached to one snapshot.
type NoticeKind string

const (
	NoticeNone            NoticeKind = ""
	NoticeCooldown        NoticeKind = "cooldown"
	NoticeSubmitted       NoticeKind = "submitted"
	NoticeSubmissionError NoticeKind = "submission_error"
)

// Notice is shown once on the confirming control and then cleared by the next input.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message,omitempty"`
}

// Snapshot is what a session reports to its rendering collaborator after each event.
type Snapshot struct {
	SessionID          string        `json:"session_id"`
	State              WorkflowState `json:"state"`
	Message            string        `json:"message"`
	IsError            bool          `json:"is_error"`
	Quote              *Quote        `json:"quote,omitempty"`
	ModalOpen          bool          `json:"modal_open"`
	Express            bool          `json:"express"`
	Days               int           `json:"days"`
	RouteFlags         []string      `json:"route_flags,omitempty"`
	CollateralDisabled bool          `json:"collateral_disabled"`
	CollateralHint     string        `json:"collateral_hint,omitempty"`
	VolumeDisplay      string        `json:"volume_display"`
	CollateralDisplay  string        `json:"collateral_display"`
	Notice             Notice        `json:"notice"`
	CooldownMs         int64         `json:"cooldown_ms"`
	CooldownText       string        `json:"cooldown_text,omitempty"`
	Evaluations        uint64        `json:"evaluations"`
}
