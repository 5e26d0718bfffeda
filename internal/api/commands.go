package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sync/internal/device"
	"github.com/nerrad567/gray-logic-sync/internal/dispatch"
	"github.com/nerrad567/gray-logic-sync/internal/hub"
)

// commandRequest is the body of POST /devices/{id}/command.
type commandRequest struct {
	State device.State `json:"state"`
}

// commandResponse is returned for both accepted and confirmed commands.
type commandResponse struct {
	CorrelationID string       `json:"correlation_id"`
	DeviceID      string       `json:"device_id"`
	Status        string       `json:"status"`
	State         device.State `json:"state,omitempty"`
}

// handleCommand dispatches a control command for a device.
//
// POST /devices/{id}/command
// Body: {"state": {"on": true, "brightness": 80}}
//
// The desired state is applied to the local table immediately (optimistic),
// then sent to the hub. By default the handler waits for confirmation and
// returns the confirmed state. With ?wait=false it returns 202 Accepted as
// soon as the command is in flight; the outcome arrives over WebSocket.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.State) == 0 {
		writeBadRequest(w, "state is required")
		return
	}

	handle, err := s.dispatcher.Dispatch(r.Context(), id, req.State)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, dispatch.ErrEmptyCommand):
			writeBadRequest(w, "no valid state keys for this device")
		case errors.Is(err, dispatch.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "dispatcher shutting down")
		default:
			s.logger.Error("command dispatch failed", "device_id", id, "error", err)
			writeInternalError(w, "failed to dispatch command")
		}
		return
	}

	if r.URL.Query().Get("wait") == "false" {
		writeJSON(w, http.StatusAccepted, commandResponse{
			CorrelationID: handle.CorrelationID,
			DeviceID:      handle.DeviceID,
			Status:        "pending",
		})
		return
	}

	if err := handle.Wait(r.Context()); err != nil {
		s.writeCommandError(w, handle, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		CorrelationID: handle.CorrelationID,
		DeviceID:      handle.DeviceID,
		Status:        "confirmed",
		State:         handle.Confirmed(),
	})
}

// writeCommandError maps a command failure to an HTTP response. The local
// table has already been rolled back by the time Wait returns an error.
func (s *Server) writeCommandError(w http.ResponseWriter, handle *dispatch.Handle, err error) {
	var cmdErr *hub.CommandError
	switch {
	case errors.As(err, &cmdErr):
		writeError(w, http.StatusConflict, ErrCodeConflict, cmdErr.Message)
	case errors.Is(err, dispatch.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "command confirmation timed out")
	case errors.Is(err, dispatch.ErrCancelled):
		writeError(w, http.StatusConflict, ErrCodeCancelled, "command cancelled")
	default:
		s.logger.Warn("command failed",
			"correlation_id", handle.CorrelationID,
			"device_id", handle.DeviceID,
			"error", err,
		)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "hub rejected command")
	}
}

// handleCancelCommand aborts an in-flight command by correlation ID.
//
// DELETE /commands/{correlationID}
//
// Cancelling rolls the device back to its pre-command state. Commands that
// have already resolved cannot be cancelled and return 404.
func (s *Server) handleCancelCommand(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")

	if err := s.dispatcher.Cancel(correlationID); err != nil {
		if errors.Is(err, dispatch.ErrUnknownCommand) {
			writeNotFound(w, "no pending command with that correlation id")
			return
		}
		writeInternalError(w, "failed to cancel command")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"correlation_id": correlationID,
		"status":         "cancelled",
	})
}
