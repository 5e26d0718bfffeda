// Package stream maintains the push-event subscription to the hub.
//
// A single Subscriber owns the one live WebSocket connection per session.
// Inbound frames are parsed, deduplicated against a bounded recency cache of
// idempotency keys, order-checked against per-device tokens, and applied to
// the device store as authoritative deltas.
//
// Connection loss is never fatal: the subscriber reconnects with jittered
// exponential backoff and an unbounded retry count, and reloads a full
// snapshot before resuming incremental application, since events missed
// during an outage cannot be replayed. Domain-action events likewise trigger
// a snapshot reload instead of a delta merge.
//
// # Usage
//
//	sub := stream.New(cfg.Stream, deviceStore, func(ctx context.Context) error {
//	    devices, err := hubClient.LoadSnapshot(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    deviceStore.ReplaceAll(devices)
//	    return nil
//	})
//	go sub.Run(ctx)
package stream
