package models

import "time"

// Identity is the character requesting an express delivery.
type Identity struct {
	CharacterID   int64  `json:"characterId"`
	CharacterName string `json:"characterName"`
}

// Credentials are forwarded from the browser so the identity source can
// recognise the caller. Both fields are opaque to this service.
type Credentials struct {
	Cookie        string
	Authorization string
}

// ExpressRequest is the document posted to the submission endpoint.
type ExpressRequest struct {
	Express          bool   `json:"express"`
	Route            string `json:"route"`
	RewardISK        int64  `json:"reward_isk"`
	VolumeM3         int64  `json:"volume_m3"`
	CollateralISK    int64  `json:"collateral_isk"`
	Notes            string `json:"notes,omitempty"`
	CustomerCharID   int64  `json:"customer_char_id,omitempty"`
	CustomerCharName string `json:"customer_char_name,omitempty"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
}

// AuditOutcome is the result recorded for one submission attempt.
type AuditOutcome string

const (
	OutcomeSubmitted       AuditOutcome = "submitted"
	OutcomeRejected        AuditOutcome = "rejected"
	OutcomeNetworkError    AuditOutcome = "network_error"
	OutcomeCooldownBlocked AuditOutcome = "cooldown_blocked"
)

// AuditEvent describes one express submission attempt. Quotes themselves are
// never stored.
type AuditEvent struct {
	ID            string       `json:"id"`
	ClientKey     string       `json:"client_key"`
	Route         string       `json:"route"`
	RewardISK     int64        `json:"reward_isk"`
	VolumeM3      int64        `json:"volume_m3"`
	CollateralISK int64        `json:"collateral_isk"`
	CharacterID   int64        `json:"character_id"`
	CharacterName string       `json:"character_name"`
	Outcome       AuditOutcome `json:"outcome"`
	Status        int          `json:"status"`
	Subject       string       `json:"subject"`
	OccurredAt    time.Time    `json:"occurred_at"`
}
