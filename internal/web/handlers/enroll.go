package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/approval"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
)

// FaceDetector finds and embeds faces in an uploaded image.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) (*embedder.FaceResponse, error)
}

// EnrollHandler handles enrollment submission and operator decisions
type EnrollHandler struct {
	manager  *approval.Manager
	detector FaceDetector
}

// NewEnrollHandler creates a new enrollment handler. detector may be nil.
func NewEnrollHandler(manager *approval.Manager, detector FaceDetector) *EnrollHandler {
	return &EnrollHandler{manager: manager, detector: detector}
}

// EnrollRequest is the JSON enrollment body. Selfie is base64 encoded.
type EnrollRequest struct {
	ProfileID string    `json:"profile_id"`
	StudentID string    `json:"student_id"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role,omitempty"`
	Embedding []float32 `json:"embedding"`
	Selfie    []byte    `json:"selfie,omitempty"`
}

// EnrollResponse carries the id of the new pending submission
type EnrollResponse struct {
	PendingID string `json:"pending_id"`
}

// PendingResponse is one pending submission without its embedding
type PendingResponse struct {
	PendingID    string  `json:"pending_id"`
	ProfileID    string  `json:"profile_id"`
	StudentID    string  `json:"student_id"`
	FullName     string  `json:"full_name"`
	SelfieRef    string  `json:"selfie_ref,omitempty"`
	Status       string  `json:"status"`
	RejectReason string  `json:"reject_reason,omitempty"`
	CreatedAt    string  `json:"created_at"`
	DecidedAt    *string `json:"decided_at,omitempty"`
}

// Enroll accepts a precomputed embedding
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := decodeJSONLimit(w, r, &req, maxEnrollBody); err != nil {
		respondServiceError(w, r, err)
		return
	}

	id, err := h.manager.Submit(r.Context(), approval.Submission{
		ProfileID: req.ProfileID,
		StudentID: req.StudentID,
		FullName:  req.FullName,
		Role:      req.Role,
		Embedding: req.Embedding,
		Selfie:    req.Selfie,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, EnrollResponse{PendingID: id})
}

// EnrollImage embeds the single face of an uploaded selfie and submits it
func (h *EnrollHandler) EnrollImage(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		respondError(w, http.StatusServiceUnavailable, "embedding service not configured")
		return
	}

	image, err := readImage(w, r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp, err := h.detector.DetectFaces(r.Context(), image)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	face, err := embedder.SingleFace(resp)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	id, err := h.manager.Submit(r.Context(), approval.Submission{
		ProfileID: r.FormValue("profile_id"),
		StudentID: r.FormValue("student_id"),
		FullName:  r.FormValue("full_name"),
		Role:      r.FormValue("role"),
		Embedding: face.Embedding,
		Selfie:    image,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, EnrollResponse{PendingID: id})
}

// ListPending lists submissions; ?status= (default pending), ?q= name filter, ?limit=
func (h *EnrollHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := h.manager.List(r.Context(), database.PendingStatus(r.URL.Query().Get("status")), r.URL.Query().Get("q"), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := make([]PendingResponse, 0, len(list))
	for _, p := range list {
		item := PendingResponse{
			PendingID:    p.PendingID,
			ProfileID:    p.ProfileID,
			StudentID:    p.StudentID,
			FullName:     p.FullName,
			SelfieRef:    p.SelfieRef,
			Status:       string(p.Status),
			RejectReason: p.RejectReason,
			CreatedAt:    p.CreatedAt.UTC().Format(timeLayout),
		}
		if p.DecidedAt != nil {
			decided := p.DecidedAt.UTC().Format(timeLayout)
			item.DecidedAt = &decided
		}
		out = append(out, item)
	}
	respondJSON(w, http.StatusOK, out)
}

// Approve promotes a pending submission
func (h *EnrollHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	active, err := h.manager.Approve(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"active_id":  active.ID,
		"student_id": active.StudentID,
	})
}

// RejectRequest is the optional body of a rejection
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Reject discards a pending submission
func (h *EnrollHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondServiceError(w, r, err)
			return
		}
	}

	if err := h.manager.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
