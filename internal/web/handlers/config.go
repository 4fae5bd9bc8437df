package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse exposes the thresholds clients need to interpret results
type ConfigResponse struct {
	EmbeddingDim          int     `json:"embedding_dim"`
	DistanceThreshold     float64 `json:"distance_threshold"`
	SimilarityThreshold   float64 `json:"similarity_threshold"`
	MinConfidence         float64 `json:"min_confidence"`
	AutoVerifyThreshold   float64 `json:"auto_verify_threshold"`
	DedupWindowHours      float64 `json:"dedup_window_hours"`
	DefaultCameraID       string  `json:"default_camera_id"`
	SelfieStorage         bool    `json:"selfie_storage"`
	HNSWEnabled           bool    `json:"hnsw_enabled"`
	OperatorTokenRequired bool    `json:"operator_token_required"`
}

// Get returns the effective configuration without secrets
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	c := h.config
	respondJSON(w, http.StatusOK, ConfigResponse{
		EmbeddingDim:          c.Embedding.Dim,
		DistanceThreshold:     c.Matching.DistanceThreshold,
		SimilarityThreshold:   c.Matching.SimilarityThreshold(),
		MinConfidence:         c.Attendance.MinConfidence,
		AutoVerifyThreshold:   c.Attendance.AutoVerifyThreshold,
		DedupWindowHours:      c.Attendance.DedupWindow.Hours(),
		DefaultCameraID:       c.Attendance.DefaultCameraID,
		SelfieStorage:         c.Selfies.Dir != "",
		HNSWEnabled:           c.Database.HNSWEnabled,
		OperatorTokenRequired: c.Web.APIToken != "",
	})
}
