// Package hub is the REST client for the hub's control plane.
//
// Two operations cover everything the sync core sends upstream:
//
//   - LoadSnapshot: the authoritative full device list, used to seed the
//     store on startup and to resynchronize after a stream outage
//   - SendCommand: a device control call, returning confirmed state or a
//     machine-readable rejection
//
// The client deliberately contains no retry loop. Startup retries belong to
// cmd/graysync (via WithRetry); resync retries belong to the stream
// subscriber's reconnect cycle. Keeping policy out of the client means a
// failed load surfaces immediately to whoever owns the decision.
package hub
