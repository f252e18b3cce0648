package models

import (
	"errors"
	"fmt"
)

// ValidationError is a recoverable input problem. Message is what the user sees.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrNoRouteSelected    = &ValidationError{Code: "ERR_NO_ROUTE", Message: "Please select a route."}
	ErrInvalidVolume      = &ValidationError{Code: "ERR_INVALID_VOLUME", Message: "Please enter valid values for volume."}
	ErrInvalidCollateral  = &ValidationError{Code: "ERR_INVALID_COLLATERAL", Message: "Please enter a valid collateral."}
	ErrVolumeExceeded     = &ValidationError{Code: "ERR_VOLUME_EXCEEDED", Message: "Maximum volume exceeded (351.000 m³)."}
	ErrCollateralExceeded = &ValidationError{Code: "ERR_COLLATERAL_EXCEEDED", Message: "Maximum of collateral can be only 20B ISK"}
)

var (
	// ErrSubmissionInFlight is returned when a submission is already outstanding.
	ErrSubmissionInFlight = errors.New("express submission already in flight")
	// ErrCooldownActive is matched by CooldownError.
	ErrCooldownActive = errors.New("express cooldown active")
)

// CooldownError refuses a submission while the gate is locked.
type CooldownError struct {
	RemainingMs int64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("express cooldown active: %dms remaining", e.RemainingMs)
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// SubmissionKind classifies a failed submission.
type SubmissionKind string

const (
	SubmissionNetwork  SubmissionKind = "network_error"
	SubmissionRejected SubmissionKind = "rejected"
)

// SubmissionError reports a failed express submission. Both kinds leave the
// quote and the cooldown untouched.
type SubmissionError struct {
	Kind   SubmissionKind
	Status int
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Kind == SubmissionRejected {
		return fmt.Sprintf("express submission rejected: status %d", e.Status)
	}
	return fmt.Sprintf("express submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsValidation reports whether err is one of the local input errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
