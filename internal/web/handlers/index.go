package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// IndexHandler manages the in-memory similarity index
type IndexHandler struct {
	hnsw  database.HNSWRebuilder
	stats *StatsHandler
}

// NewIndexHandler creates an index handler. hnsw may be nil when the backend has no index.
func NewIndexHandler(hnsw database.HNSWRebuilder, stats *StatsHandler) *IndexHandler {
	return &IndexHandler{hnsw: hnsw, stats: stats}
}

// Rebuild reloads the index from the active biometrics table
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.hnsw == nil || !h.hnsw.IsHNSWEnabled() {
		respondError(w, http.StatusConflict, "HNSW index is not enabled")
		return
	}

	start := time.Now()
	if err := h.hnsw.RebuildHNSW(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if h.stats != nil {
		h.stats.InvalidateCache()
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"nodes":       h.hnsw.HNSWCount(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
