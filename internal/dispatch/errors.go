package dispatch

import "errors"

// Sentinel errors returned by the dispatcher.
//
// Use errors.Is() to check for specific error conditions:
//
//	handle, err := dispatcher.Dispatch(ctx, "light-1", state)
//	if errors.Is(err, dispatch.ErrEmptyCommand) {
//	    // nothing valid to send
//	}
var (
	// ErrClosed is returned when dispatching after Close.
	ErrClosed = errors.New("dispatch: dispatcher closed")

	// ErrEmptyCommand is returned when no key of the desired state falls
	// within the target device's capability set.
	ErrEmptyCommand = errors.New("dispatch: no valid state keys in command")

	// ErrTimeout is returned by Handle.Wait when the control endpoint did
	// not answer within the confirmation timeout. The speculative state has
	// been rolled back.
	ErrTimeout = errors.New("dispatch: command confirmation timed out")

	// ErrCancelled is returned by Handle.Wait when the command was cancelled
	// before resolution. The speculative state has been rolled back.
	ErrCancelled = errors.New("dispatch: command cancelled")

	// ErrUnknownCommand is returned by Cancel for correlation ids that are
	// not (or no longer) in flight.
	ErrUnknownCommand = errors.New("dispatch: unknown correlation id")
)
