package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sync/internal/store"
)

// Logger is the minimal logging interface the subscriber needs.
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

// State describes the subscriber's connection state machine.
type State string

// State constants.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

// ResyncFunc reloads a full snapshot into the store. Called after every
// (re)connect, before incremental application resumes, and on domain-action
// events.
type ResyncFunc func(ctx context.Context) error

// Subscriber maintains the single live push connection to the hub and feeds
// deduplicated, order-checked events into the device store.
//
// Malformed frames are dropped and logged. Connection loss triggers
// reconnection with jittered exponential backoff and an unbounded retry
// count; nothing on this path is fatal to the session.
type Subscriber struct {
	cfg    config.StreamConfig
	store  *store.Store
	resync ResyncFunc
	logger Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	state    State
	running  bool
	onChange func(State)

	dedupe  *dedupeCache
	backoff *backoff
}

// New creates a Subscriber for the stream endpoint in cfg, writing
// authoritative deltas through st and resyncing via resync.
func New(cfg config.StreamConfig, st *store.Store, resync ResyncFunc) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		store:  st,
		resync: resync,
		logger: noopLogger{},
		dialer: websocket.DefaultDialer,
		state:  StateDisconnected,
		dedupe: newDedupeCache(cfg.DedupeSize),
		backoff: newBackoff(
			time.Duration(cfg.InitialBackoff)*time.Second,
			time.Duration(cfg.MaxBackoff)*time.Second,
		),
	}
}

// SetLogger sets the logger. Must be called before Run.
func (s *Subscriber) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// State returns the current connection state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetOnStateChange registers a callback invoked on every connection state
// transition. Safe to call while running; the callback must not block.
func (s *Subscriber) SetOnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Subscriber) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	fn := s.onChange
	s.mu.Unlock()

	if changed && fn != nil {
		fn(state)
	}
}

// Run connects and processes events until ctx is cancelled. It blocks for
// the lifetime of the session and always returns ctx's error on stop.
// Only one Run per Subscriber may be active.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.state = StateStopped
		s.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(StateConnecting)
		conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close() //nolint:errcheck // handshake response body
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("stream dial failed", "url", s.cfg.URL, "error", err)
			s.setState(StateReconnecting)
			if !s.waitBackoff(ctx) {
				return ctx.Err()
			}
			continue
		}

		// Events missed while disconnected cannot be replayed, so reload
		// the full snapshot before resuming incremental application. The
		// hub's sequence numbers restart with the connection, so the
		// previous session's ordering tokens are cleared first; a
		// mid-connection resync keeps them (see Store.ReplaceAll).
		s.store.ResetTokens()
		if err := s.resync(ctx); err != nil {
			conn.Close() //nolint:errcheck // tearing down failed session
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("post-connect resync failed", "error", err)
			s.setState(StateReconnecting)
			if !s.waitBackoff(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.backoff.Reset()
		s.setState(StateConnected)
		s.logger.Info("stream connected", "url", s.cfg.URL)

		s.readLoop(ctx, conn)
		conn.Close() //nolint:errcheck // already disconnecting

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("stream disconnected, reconnecting")
		s.setState(StateReconnecting)
		if !s.waitBackoff(ctx) {
			return ctx.Err()
		}
	}
}

// waitBackoff sleeps for the next backoff delay. Returns false when ctx was
// cancelled during the wait.
func (s *Subscriber) waitBackoff(ctx context.Context) bool {
	delay := s.backoff.Next()
	s.logger.Debug("waiting before reconnect", "delay", delay.String())

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// readLoop processes inbound frames until the connection drops or ctx ends.
func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	// Unblock ReadMessage on cancellation.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close() //nolint:errcheck // forced unblock
		case <-done:
		}
	}()

	pingInterval := time.Duration(s.cfg.PingInterval) * time.Second
	pongWait := time.Duration(s.cfg.PongTimeout) * time.Second

	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	go s.pingLoop(conn, done, pingInterval, pongWait)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("stream read error", "error", err)
			} else {
				s.logger.Debug("stream closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.handleFrame(ctx, raw)
	}
}

// pingLoop keeps the connection alive with protocol-level pings.
func (s *Subscriber) pingLoop(conn *websocket.Conn, done <-chan struct{}, interval, writeWait time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			//nolint:errcheck // Best-effort write deadline
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame parses and applies one inbound frame.
func (s *Subscriber) handleFrame(ctx context.Context, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn("dropping malformed stream message", "error", err)
		return
	}

	key := msg.IdempotencyKey(raw)
	if s.dedupe.Seen(key) {
		s.logger.Debug("dropping duplicate event", "key", key)
		return
	}

	switch msg.Kind {
	case KindDeviceUpdate:
		s.applyUpdate(&msg)
	case KindDomainAction:
		// Effect on individual devices is not locally derivable; reload.
		s.logger.Info("domain action received, resyncing")
		if err := s.resync(ctx); err != nil {
			s.logger.Error("domain-action resync failed", "error", err)
		}
	default:
		s.logger.Warn("dropping message of unknown kind", "kind", msg.Kind)
	}
}

// applyUpdate feeds a device update into the store as an authoritative delta.
func (s *Subscriber) applyUpdate(msg *Message) {
	if msg.DeviceID == "" {
		s.logger.Warn("dropping device update without device id")
		return
	}

	res := s.store.ApplyDelta(store.Delta{
		DeviceID: msg.DeviceID,
		State:    msg.State,
		Origin:   store.OriginAuthoritative,
		Token:    msg.Token,
	})

	switch res {
	case store.ResultApplied:
	case store.ResultStale:
		s.logger.Debug("dropping stale event",
			"device_id", msg.DeviceID, "token", msg.Token)
	case store.ResultNotFound:
		// Device may arrive with the next snapshot; non-fatal.
		s.logger.Warn("event for unknown device", "device_id", msg.DeviceID)
	case store.ResultRejected:
		s.logger.Warn("event carried no applicable state keys",
			"device_id", msg.DeviceID)
	}
}
