package api

import (
	"net/http"
)

// handleListZones returns devices grouped by zone label.
//
// GET /zones
// Response: {"zones": [...], "count": N}
//
// The grouping is recomputed from the device table on every request; zones
// are sorted alphabetically and devices within a zone by name.
func (s *Server) handleListZones(w http.ResponseWriter, _ *http.Request) {
	zones := s.store.Zones()
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}
