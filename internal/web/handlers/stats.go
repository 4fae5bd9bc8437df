package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/stats"
)

const (
	overviewCacheTTL = time.Minute
	overviewMaxScan  = 10000
)

// overviewCache holds the cached overview with expiry
type overviewCache struct {
	mu        sync.RWMutex
	data      *OverviewResponse
	expiresAt time.Time
}

func (c *overviewCache) get() (*OverviewResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *overviewCache) set(data *OverviewResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(overviewCacheTTL)
}

func (c *overviewCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	aggregator *stats.Aggregator
	biometrics database.BiometricReader
	hnsw       database.HNSWRebuilder
	cache      overviewCache
}

// NewStatsHandler creates a new stats handler. hnsw may be nil.
func NewStatsHandler(agg *stats.Aggregator, biometrics database.BiometricReader, hnsw database.HNSWRebuilder) *StatsHandler {
	return &StatsHandler{
		aggregator: agg,
		biometrics: biometrics,
		hnsw:       hnsw,
	}
}

// InvalidateCache clears the cached overview so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// RecognitionStatResponse is one (date, camera) row
type RecognitionStatResponse struct {
	Date                string  `json:"date"`
	CameraID            string  `json:"camera_id"`
	TotalRecognitions   int64   `json:"total_recognitions"`
	SuccessfulMatches   int64   `json:"successful_matches"`
	FailedMatches       int64   `json:"failed_matches"`
	AvgConfidence       float64 `json:"avg_confidence"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	UpdatedAt           string  `json:"updated_at"`
}

// OverviewResponse summarises the enrolled population
type OverviewResponse struct {
	ActiveBiometrics   int  `json:"active_biometrics"`
	PendingSubmissions int  `json:"pending_submissions"`
	HNSWEnabled        bool `json:"hnsw_enabled"`
	HNSWNodes          int  `json:"hnsw_nodes"`
}

// Get returns the row for ?camera_id= and ?date= (YYYY-MM-DD, default today)
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stat, err := h.aggregator.Get(r.Context(), q.Get("camera_id"), q.Get("date"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, RecognitionStatResponse{
		Date:                stat.Date,
		CameraID:            stat.CameraID,
		TotalRecognitions:   stat.TotalRecognitions,
		SuccessfulMatches:   stat.SuccessfulMatches,
		FailedMatches:       stat.FailedMatches,
		AvgConfidence:       stat.AvgConfidence,
		AvgProcessingTimeMs: stat.AvgProcessingTimeMs,
		UpdatedAt:           stat.UpdatedAt.UTC().Format(timeLayout),
	})
}

// Overview returns counts of active and pending biometrics
func (h *StatsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	active, err := h.biometrics.CountActive(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	pending, err := h.biometrics.ListPending(r.Context(), database.StatusPending, overviewMaxScan)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := &OverviewResponse{
		ActiveBiometrics:   active,
		PendingSubmissions: len(pending),
	}
	if h.hnsw != nil && h.hnsw.IsHNSWEnabled() {
		out.HNSWEnabled = true
		out.HNSWNodes = h.hnsw.HNSWCount()
	}
	h.cache.set(out)
	respondJSON(w, http.StatusOK, out)
}
