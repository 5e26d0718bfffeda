package store

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sync/internal/device"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Origin classifies the writer of a delta. Authoritative and speculative
// ordering tokens are tracked separately per device, so an authoritative
// event is never blocked by a speculative token and vice versa.
type Origin string

// Origin constants.
const (
	// OriginAuthoritative marks deltas from the hub (event stream, confirmed
	// command responses, rollbacks restoring authoritative state).
	OriginAuthoritative Origin = "authoritative"

	// OriginSpeculative marks optimistic deltas applied locally before the
	// hub confirms a command.
	OriginSpeculative Origin = "speculative"
)

// ApplyResult reports the outcome of an ApplyDelta call.
type ApplyResult string

// ApplyResult constants.
const (
	// ResultApplied means the delta was merged and subscribers were notified.
	ResultApplied ApplyResult = "applied"

	// ResultStale means the delta's ordering token was older than the last
	// applied token for its origin class; nothing changed.
	ResultStale ApplyResult = "stale"

	// ResultNotFound means the target device is not in the table. Non-fatal:
	// the device may arrive with the next snapshot.
	ResultNotFound ApplyResult = "not_found"

	// ResultRejected means every key in the delta was outside the device's
	// capability set; nothing changed.
	ResultRejected ApplyResult = "rejected"
)

// Delta is a single mutation request submitted to the store.
type Delta struct {
	DeviceID string
	State    device.State
	Origin   Origin

	// Token orders deltas within an origin class. A delta is applied only if
	// its token is not older than the last applied token for the same device
	// and origin class.
	Token int64
}

// ChangeType classifies a change notification.
type ChangeType string

// ChangeType constants.
const (
	// ChangeDevice signals a state or status change of a single device.
	ChangeDevice ChangeType = "device"

	// ChangeRefresh signals a full table replacement (snapshot load/resync).
	ChangeRefresh ChangeType = "refresh"
)

// Change describes a single logical state change for subscribers.
type Change struct {
	Type     ChangeType
	DeviceID string // empty for ChangeRefresh
}

// entry pairs a device with its per-origin-class ordering tokens.
type entry struct {
	dev      *device.Device
	lastAuth int64
	lastSpec int64
}

// Store is the canonical in-memory table of device records and the sole
// mutation surface for device state.
//
// All mutations are serialized through ReplaceAll, ApplyDelta, and SetStatus;
// the event stream subscriber and the command dispatcher submit deltas here
// and never touch device state directly.
//
// Thread Safety: all methods are safe for concurrent use. Change callbacks
// are invoked synchronously after the mutation, outside the table lock, at
// most once per logical state change.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*entry

	subMu   sync.RWMutex
	subs    map[int]func(Change)
	nextSub int

	lastRefresh time.Time

	logger Logger
}

// New creates an empty device store.
func New() *Store {
	return &Store{
		devices: make(map[string]*entry),
		subs:    make(map[int]func(Change)),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Get retrieves a device by ID.
// Returns device.ErrNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (s *Store) Get(id string) (*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.devices[id]
	if !ok {
		return nil, device.ErrNotFound
	}
	return e.dev.DeepCopy(), nil
}

// List retrieves all devices.
// The returned devices are deep copies; callers can safely modify them.
func (s *Store) List() []device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]device.Device, 0, len(s.devices))
	for _, e := range s.devices {
		devices = append(devices, *e.dev.DeepCopy())
	}
	return devices
}

// Count returns the number of devices in the table.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// LastRefresh returns the time of the last full table replacement,
// or the zero time if no snapshot has been applied yet.
func (s *Store) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// ReplaceAll fully replaces the device table with the given snapshot,
// preserving no stale entries. Ordering tokens carry over for devices that
// persist across the snapshot: a mid-connection resync does not restart the
// hub's sequence numbers, so a delayed pre-resync event must still compare
// against the tokens it was ordered by. Tokens reset only via ResetTokens,
// which the stream issues when a new connection is established.
//
// Devices failing validation are skipped and logged, not fatal: one
// malformed record must not block synchronization of the rest.
//
// Subscribers receive a single full-refresh notification.
func (s *Store) ReplaceAll(devices []device.Device) {
	table := make(map[string]*entry, len(devices))
	for i := range devices {
		d := devices[i]
		if err := device.Validate(&d); err != nil {
			s.logger.Warn("skipping invalid device in snapshot", "id", d.ID, "error", err)
			continue
		}
		table[d.ID] = &entry{dev: d.DeepCopy()}
	}

	s.mu.Lock()
	for id, e := range table {
		if old, ok := s.devices[id]; ok {
			e.lastAuth = old.lastAuth
			e.lastSpec = old.lastSpec
		}
	}
	s.devices = table
	s.lastRefresh = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("device table replaced", "count", len(table))
	s.notify(Change{Type: ChangeRefresh})
}

// ResetTokens zeroes every device's ordering tokens. Called when a new
// stream connection is established: the hub's event sequence restarts per
// connection, so tokens from the previous session must not outrank it.
func (s *Store) ResetTokens() {
	s.mu.Lock()
	for _, e := range s.devices {
		e.lastAuth = 0
		e.lastSpec = 0
	}
	s.mu.Unlock()
}

// ApplyDelta merges a partial state delta into a device.
//
// The merge is applied only if the delta's ordering token is not older than
// the last token applied to that device from the same origin class. Keys
// outside the device's capability set are dropped (logged, non-fatal). A nil
// value deletes the key; this is how rollbacks restore keys that did not
// exist before a command.
//
// Returns whether the merge was applied, stale, rejected, or targeted an
// unknown device.
func (s *Store) ApplyDelta(d Delta) ApplyResult {
	s.mu.Lock()

	e, ok := s.devices[d.DeviceID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("delta for unknown device", "id", d.DeviceID, "origin", d.Origin)
		return ResultNotFound
	}

	switch d.Origin {
	case OriginSpeculative:
		if d.Token < e.lastSpec {
			s.mu.Unlock()
			s.logger.Debug("stale speculative delta dropped",
				"id", d.DeviceID, "token", d.Token, "last", e.lastSpec)
			return ResultStale
		}
	default:
		if d.Token < e.lastAuth {
			s.mu.Unlock()
			s.logger.Debug("stale authoritative delta dropped",
				"id", d.DeviceID, "token", d.Token, "last", e.lastAuth)
			return ResultStale
		}
	}

	valid, dropped := device.FilterState(e.dev, d.State)
	if len(dropped) > 0 {
		s.logger.Warn("delta keys outside capability set dropped",
			"id", d.DeviceID, "keys", dropped)
	}
	if len(valid) == 0 {
		s.mu.Unlock()
		return ResultRejected
	}

	// Merge on a copy so concurrent readers holding an earlier DeepCopy
	// never observe a half-applied delta.
	updated := e.dev.DeepCopy()
	if updated.State == nil {
		updated.State = make(device.State, len(valid))
	}
	for k, v := range valid {
		if v == nil {
			delete(updated.State, k)
			continue
		}
		updated.State[k] = v
	}
	updated.LastActivity = time.Now().UTC()
	e.dev = updated

	switch d.Origin {
	case OriginSpeculative:
		e.lastSpec = d.Token
	default:
		e.lastAuth = d.Token
	}

	s.mu.Unlock()

	s.logger.Debug("delta applied", "id", d.DeviceID, "origin", d.Origin, "token", d.Token)
	s.notify(Change{Type: ChangeDevice, DeviceID: d.DeviceID})
	return ResultApplied
}

// SetStatus updates a device's connectivity status.
// Subscribers are notified only if the status actually changed.
func (s *Store) SetStatus(id string, status device.ConnStatus) ApplyResult {
	s.mu.Lock()

	e, ok := s.devices[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("status update for unknown device", "id", id)
		return ResultNotFound
	}
	if e.dev.Status == status {
		s.mu.Unlock()
		return ResultStale
	}

	updated := e.dev.DeepCopy()
	updated.Status = status
	updated.LastActivity = time.Now().UTC()
	e.dev = updated

	s.mu.Unlock()

	s.notify(Change{Type: ChangeDevice, DeviceID: id})
	return ResultApplied
}

// LastToken returns the last ordering token applied to a device for the
// given origin class, or 0 if the device is unknown. The dispatcher uses
// the authoritative token to restore pre-images with authoritative
// precedence on rollback.
func (s *Store) LastToken(id string, origin Origin) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.devices[id]
	if !ok {
		return 0
	}
	if origin == OriginSpeculative {
		return e.lastSpec
	}
	return e.lastAuth
}

// Subscribe registers a change listener and returns its unsubscribe function.
//
// The callback is invoked at most once per logical state change: stale,
// rejected, and duplicate deltas produce no callback. Callbacks run on the
// mutating goroutine and must not block.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// notify invokes all subscribers with the given change.
// The subscriber list is snapshotted so callbacks run without holding locks.
func (s *Store) notify(c Change) {
	s.subMu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
