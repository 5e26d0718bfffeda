package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/store"
)

// DefaultConfirmTimeout bounds how long a command may stay unconfirmed
// before it is rolled back.
const DefaultConfirmTimeout = 10 * time.Second

// Logger is the minimal logging interface the dispatcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CommandSender delivers a control command to the hub and returns the
// confirmed state for the touched keys, or nil for a plain acknowledgement.
// hub.Client satisfies this interface.
type CommandSender interface {
	SendCommand(ctx context.Context, deviceID string, desired device.State) (device.State, error)
}

// Handle tracks one dispatched command through to resolution.
//
// The zero value is not usable; handles are created by Dispatch.
type Handle struct {
	// CorrelationID uniquely identifies this command. It is also the key
	// accepted by Dispatcher.Cancel.
	CorrelationID string

	// DeviceID is the command's target.
	DeviceID string

	// IssuedAt is when the command was dispatched.
	IssuedAt time.Time

	done      chan struct{}
	err       error        // set before done is closed
	confirmed device.State // set before done is closed
}

// Done returns a channel closed when the command resolves.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the command resolves or ctx is done.
//
// A nil return means the command was confirmed. ErrTimeout and ErrCancelled
// indicate rollback; any other error is the control endpoint's rejection,
// also after rollback.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.err
	}
}

// Confirmed returns the confirmed state echoed by the control endpoint, or
// nil for a plain acknowledgement. Valid only after Done is closed.
func (h *Handle) Confirmed() device.State {
	return h.confirmed
}

// resolve records the outcome and releases waiters. Must be called once.
func (h *Handle) resolve(confirmed device.State, err error) {
	h.confirmed = confirmed
	h.err = err
	close(h.done)
}

// preImage is the pre-dispatch value of every touched key. Keys absent
// before dispatch map to nil so rollback deletes them again.
type preImage device.State

// Dispatcher applies commands optimistically and reconciles them against the
// control endpoint's verdict.
//
// Per command: the touched keys' current values are captured, the desired
// state is applied to the store as a speculative delta, and the command is
// sent asynchronously. A confirmed response may carry state that is merged
// authoritatively; a failure, timeout, or cancellation restores the captured
// pre-image so the touched keys read exactly as they did before dispatch.
//
// Thread Safety: all methods are safe for concurrent use.
type Dispatcher struct {
	store   *store.Store
	sender  CommandSender
	timeout time.Duration
	logger  Logger

	// specToken orders speculative deltas in dispatch order.
	specToken atomic.Int64

	mu      sync.Mutex
	pending map[string]context.CancelCauseFunc
	closed  bool

	wg sync.WaitGroup
}

// New creates a Dispatcher writing through st and sending via sender.
// A non-positive timeout falls back to DefaultConfirmTimeout.
func New(st *store.Store, sender CommandSender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Dispatcher{
		store:   st,
		sender:  sender,
		timeout: timeout,
		logger:  noopLogger{},
		pending: make(map[string]context.CancelCauseFunc),
	}
}

// SetLogger sets the logger. Must be called before first use.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Dispatch applies desired to deviceID optimistically and sends the command.
//
// The speculative state is visible in the store before Dispatch returns. The
// returned Handle resolves when the hub confirms or the rollback completes.
// Keys outside the device's capability set are dropped; a command with no
// surviving keys fails with ErrEmptyCommand.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, desired device.State) (*Handle, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}

	// Capture and speculative apply must be atomic with respect to other
	// dispatches: a command dispatched while another is in flight records
	// that command's speculative value as its pre-image, so rollbacks
	// compose in dispatch order.
	dev, err := d.store.Get(deviceID)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("dispatching to %s: %w", deviceID, err)
	}

	filtered, dropped := device.FilterState(dev, desired)
	if len(dropped) > 0 {
		d.logger.Warn("dropping out-of-capability command keys",
			"device_id", deviceID, "keys", dropped)
	}
	if len(filtered) == 0 {
		d.mu.Unlock()
		return nil, ErrEmptyCommand
	}

	// Pre-image of the touched keys. A previously absent key is recorded
	// as nil so rollback removes it.
	pre := make(preImage, len(filtered))
	for k := range filtered {
		if v, ok := dev.State[k]; ok {
			pre[k] = v
		} else {
			pre[k] = nil
		}
	}

	h := &Handle{
		CorrelationID: uuid.NewString(),
		DeviceID:      deviceID,
		IssuedAt:      time.Now(),
		done:          make(chan struct{}),
	}

	token := d.specToken.Add(1)
	res := d.store.ApplyDelta(store.Delta{
		DeviceID: deviceID,
		State:    filtered,
		Origin:   store.OriginSpeculative,
		Token:    token,
	})
	if res == store.ResultNotFound {
		d.mu.Unlock()
		return nil, fmt.Errorf("dispatching to %s: %w", deviceID, device.ErrNotFound)
	}

	cmdCtx, cancel := context.WithCancelCause(ctx)
	d.pending[h.CorrelationID] = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	d.logger.Debug("command dispatched",
		"correlation_id", h.CorrelationID, "device_id", deviceID, "keys", len(filtered))

	go d.await(cmdCtx, h, filtered, pre)

	return h, nil
}

// Pending returns the number of commands awaiting confirmation.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Cancel aborts an in-flight command, triggering the same rollback path as a
// timeout. Returns ErrUnknownCommand if the correlation id is not in flight.
func (d *Dispatcher) Cancel(correlationID string) error {
	d.mu.Lock()
	cancel, ok := d.pending[correlationID]
	d.mu.Unlock()

	if !ok {
		return ErrUnknownCommand
	}
	cancel(ErrCancelled)
	return nil
}

// Close cancels all in-flight commands, waits for their rollbacks to finish,
// and rejects further dispatches.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, cancel := range d.pending {
		cancel(ErrCancelled)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// await sends the command and reconciles the outcome.
func (d *Dispatcher) await(ctx context.Context, h *Handle, desired device.State, pre preImage) {
	defer d.wg.Done()
	defer d.forget(h.CorrelationID)

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	confirmed, err := d.sender.SendCommand(sendCtx, h.DeviceID, desired)
	if err != nil {
		err = d.classify(ctx, sendCtx, err)
		d.rollback(h, pre)
		h.resolve(nil, err)
		return
	}

	// The response may echo confirmed state for immediate authoritative
	// merge; otherwise the next stream event supersedes the speculative
	// value on its own.
	if len(confirmed) > 0 {
		d.store.ApplyDelta(store.Delta{
			DeviceID: h.DeviceID,
			State:    confirmed,
			Origin:   store.OriginAuthoritative,
			Token:    d.store.LastToken(h.DeviceID, store.OriginAuthoritative),
		})
	}

	d.logger.Debug("command confirmed",
		"correlation_id", h.CorrelationID, "device_id", h.DeviceID)
	h.resolve(confirmed, nil)
}

// classify maps transport-level errors onto the dispatcher's sentinels.
func (d *Dispatcher) classify(ctx, sendCtx context.Context, err error) error {
	switch {
	case context.Cause(ctx) != nil && errors.Is(context.Cause(ctx), ErrCancelled):
		return ErrCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(sendCtx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return err
	}
}

// rollback restores the pre-image with authoritative-equivalent precedence
// so it also displaces the speculative value it undoes.
func (d *Dispatcher) rollback(h *Handle, pre preImage) {
	res := d.store.ApplyDelta(store.Delta{
		DeviceID: h.DeviceID,
		State:    device.State(pre),
		Origin:   store.OriginAuthoritative,
		Token:    d.store.LastToken(h.DeviceID, store.OriginAuthoritative),
	})

	d.logger.Info("command rolled back",
		"correlation_id", h.CorrelationID, "device_id", h.DeviceID, "result", string(res))
}

// forget removes a resolved command from the pending table.
func (d *Dispatcher) forget(correlationID string) {
	d.mu.Lock()
	delete(d.pending, correlationID)
	d.mu.Unlock()
}
