package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sync/internal/device"
)

// handleListDevices returns the device table, with optional query filters.
//
// Query parameters:
//   - zone: filter by zone label
//   - type: filter by device type (light, lock, thermostat, ...)
//   - integration: filter by integration (alexa, google_home, ...)
//
// Reads are answered from the local table; the hub is never consulted.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.store.List()

	if zone := r.URL.Query().Get("zone"); zone != "" {
		devices = filterDevices(devices, func(d device.Device) bool { return d.Zone == zone })
	}
	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		devices = filterDevices(devices, func(d device.Device) bool { return d.Type == device.Type(typeStr) })
	}
	if integStr := r.URL.Query().Get("integration"); integStr != "" {
		devices = filterDevices(devices, func(d device.Device) bool { return d.Integration == device.Integration(integStr) })
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

func filterDevices(devices []device.Device, keep func(device.Device) bool) []device.Device {
	filtered := make([]device.Device, 0, len(devices))
	for _, d := range devices {
		if keep(d) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
