package engine

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotRunning     = errors.New("engine not running")
	ErrNotReady       = errors.New("no master account with an enabled copy config")
	ErrCircuitOpen    = errors.New("circuit open for account")
	ErrDuplicateJob   = errors.New("job already claimed")
)

// SizingError means no valid quantity could be computed. Never retried.
type SizingError struct {
	Reason string
	Err    error
}

func (e *SizingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sizing: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("sizing: %s", e.Reason)
}

func (e *SizingError) Unwrap() error { return e.Err }

// RiskRejected means a guard check failed. The order is never submitted and
// the job is never retried.
type RiskRejected struct {
	Reason string
}

func (e *RiskRejected) Error() string {
	return fmt.Sprintf("risk rejected: %s", e.Reason)
}
