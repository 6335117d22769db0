package services

import (
	"errors"
	"fmt"
)

// Validation
var ErrValidation = errors.New("validation failed")

// Ownership: absent and not-owned look the same to the caller.
var ErrCampaignNotFound = errors.New("campaign not found")

// State guards. All refinements wrap ErrInvalidStateTransition.
var (
	ErrInvalidStateTransition = errors.New("invalid campaign state transition")
	ErrAlreadyActive          = fmt.Errorf("%w: campaign is already active", ErrInvalidStateTransition)
	ErrAlreadyCompleted       = fmt.Errorf("%w: campaign is already completed", ErrInvalidStateTransition)
	ErrTerminalState          = fmt.Errorf("%w: campaign is in a terminal state, create a new campaign", ErrInvalidStateTransition)
	ErrInvalidStateForPause   = fmt.Errorf("%w: only an active campaign can be paused", ErrInvalidStateTransition)
	ErrScheduleNotReached     = fmt.Errorf("%w: scheduled start time has not been reached", ErrInvalidStateTransition)
	ErrConcurrentTransition   = fmt.Errorf("%w: campaign status changed concurrently", ErrInvalidStateTransition)
)

// Session availability
var (
	ErrSessionAvailability        = errors.New("session availability")
	ErrNoActiveSessions           = fmt.Errorf("%w: no active sessions", ErrSessionAvailability)
	ErrPartialSessionAvailability = fmt.Errorf("%w: not all requested sessions are active", ErrSessionAvailability)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
