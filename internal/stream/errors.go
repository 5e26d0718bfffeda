package stream

import "errors"

// Sentinel errors returned by the subscriber.
var (
	// ErrAlreadyRunning is returned by Run when the subscriber is active.
	ErrAlreadyRunning = errors.New("stream: subscriber already running")
)
