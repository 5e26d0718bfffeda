package voice

import "errors"

// Sentinel errors for intent validation.
var (
	// ErrUnknownAction is returned for intents with an unrecognised action.
	ErrUnknownAction = errors.New("voice: unknown action")

	// ErrMissingDevice is returned for intents without a target device.
	ErrMissingDevice = errors.New("voice: missing device id")

	// ErrMissingValue is returned for set-style actions without a value.
	ErrMissingValue = errors.New("voice: missing value")
)
