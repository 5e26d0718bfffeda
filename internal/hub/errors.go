package hub

import (
	"errors"
	"fmt"
)

// Domain-specific errors for hub operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSnapshotFailed is returned when the full device snapshot cannot be
	// fetched or decoded. Transient; callers own the retry policy.
	ErrSnapshotFailed = errors.New("hub: snapshot failed")

	// ErrCommandRejected is returned when the hub refuses a control command.
	// The wrapping *CommandError carries the machine-readable reason.
	ErrCommandRejected = errors.New("hub: command rejected")
)

// CommandError is a control-command rejection with the hub's reason.
type CommandError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hub: command rejected (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("hub: command rejected (%s, status %d)", e.Code, e.StatusCode)
}

// Unwrap allows errors.Is(err, ErrCommandRejected).
func (e *CommandError) Unwrap() error {
	return ErrCommandRejected
}
