// Package dispatch implements optimistic command dispatch for Gray Logic Sync.
//
// Every command producer (local API, voice bridge) goes through the same
// path: the desired state is applied to the device store immediately as a
// speculative delta so the panel reacts without waiting for the hub, then
// the command is sent asynchronously. The hub's verdict reconciles the
// speculation:
//
//   - Confirmed: the speculative value stands; a confirmed-state payload in
//     the response is merged authoritatively right away.
//   - Rejected, timed out, or cancelled: the captured pre-image of the
//     touched keys is restored, leaving the device exactly as it was before
//     dispatch, and the error surfaces through the command's Handle.
//
// Commands against the same device compose in dispatch order: each command
// captures its pre-image from the store at dispatch time, so sequential
// rollbacks undo in reverse without clobbering unrelated keys.
//
// # Usage
//
//	dispatcher := dispatch.New(deviceStore, hubClient, 10*time.Second)
//	handle, err := dispatcher.Dispatch(ctx, "light-1", device.State{"on": true})
//	if err != nil {
//	    return err
//	}
//	if err := handle.Wait(ctx); err != nil {
//	    // state already rolled back; report to the producer
//	}
package dispatch
