// Package voice bridges voice assistant intents into the command path.
//
// The voice pipeline publishes intents on graysync/voice/intent/{platform};
// the bridge translates the small intent vocabulary (turn_on, turn_off,
// set_brightness, set_temperature, lock, unlock, set_volume) into partial
// device state and dispatches it through the identical optimistic command
// contract used by UI controls — there is no privileged voice path.
//
// Command outcomes (confirmed, failed after rollback) are published back on
// graysync/voice/result/{correlation_id} so the pipeline can answer the
// user.
package voice
