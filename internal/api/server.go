package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-sync/internal/dispatch"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sync/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sync/internal/store"
	"github.com/nerrad567/gray-logic-sync/internal/stream"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Store      *store.Store
	Dispatcher *dispatch.Dispatcher
	Stream     *stream.Subscriber // optional: exposes push connection state on /health
	Version    string
}

// Server is the local HTTP API for panel UIs.
//
// It serves the device table, zone groupings, and command dispatch over REST,
// and pushes state changes to connected panels over WebSocket. Reads never
// touch the hub; they are answered from the local device table.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	stream     *stream.Subscriber
	version    string
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
	unsub      func()             // store subscription teardown
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		stream:     deps.Stream,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to device table
// changes for WebSocket broadcast, and launches the HTTP listener in a
// background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop the hub independently of the
	// parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	s.unsub = s.subscribeStateChanges()

	// Surface the push-connection state so panels can show a reconnecting
	// affordance without polling /health.
	if s.stream != nil {
		s.stream.SetOnStateChange(func(state stream.State) {
			s.hub.Broadcast("sync.state_changed", map[string]any{"state": state})
		})
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// subscribeStateChanges relays device table changes to WebSocket clients.
//
// Single-device changes broadcast the full device on "device.state_changed";
// full table replacements (snapshot load, resync) broadcast a marker on
// "devices.refreshed" so panels re-fetch the whole table.
func (s *Server) subscribeStateChanges() func() {
	return s.store.Subscribe(func(change store.Change) {
		if s.hub == nil {
			return
		}
		switch change.Type {
		case store.ChangeDevice:
			dev, err := s.store.Get(change.DeviceID)
			if err != nil {
				// Device removed between notification and read; panels will
				// pick it up on the next refresh broadcast.
				return
			}
			s.hub.Broadcast("device.state_changed", dev)
		case store.ChangeRefresh:
			s.hub.Broadcast("devices.refreshed", map[string]any{
				"count": s.store.Count(),
			})
		}
	})
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.unsub != nil {
		s.unsub()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// healthResponse is the payload returned by GET /api/v1/health.
type healthResponse struct {
	Status          string       `json:"status"`
	Version         string       `json:"version"`
	DeviceCount     int          `json:"device_count"`
	LastRefresh     time.Time    `json:"last_refresh"`
	PendingCommands int          `json:"pending_commands"`
	Stream          stream.State `json:"stream,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:          "ok",
		Version:         s.version,
		DeviceCount:     s.store.Count(),
		LastRefresh:     s.store.LastRefresh(),
		PendingCommands: s.dispatcher.Pending(),
	}
	if s.stream != nil {
		resp.Stream = s.stream.State()
	}
	writeJSON(w, http.StatusOK, resp)
}
