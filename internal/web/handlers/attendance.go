package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// AttendanceHandler handles explicit attendance marking
type AttendanceHandler struct {
	engine *attendance.Engine
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(engine *attendance.Engine) *AttendanceHandler {
	return &AttendanceHandler{engine: engine}
}

// MarkRequest is the body of POST /attendance
type MarkRequest struct {
	StudentID  string  `json:"student_id"`
	Confidence float64 `json:"confidence"`
	ClassID    string  `json:"class_id,omitempty"`
	CameraID   string  `json:"camera_id,omitempty"`
	ProfileID  string  `json:"profile_id,omitempty"`
	FrameRef   string  `json:"frame_ref,omitempty"`
}

// BatchMatch is one match of a batch. Similarity is accepted as an alias of confidence.
type BatchMatch struct {
	StudentID  string   `json:"student_id"`
	ProfileID  string   `json:"profile_id,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	FrameRef   string   `json:"frame_ref,omitempty"`
}

// BatchRequest is the body of POST /attendance/batch
type BatchRequest struct {
	Matches  []BatchMatch `json:"matches"`
	ClassID  string       `json:"class_id,omitempty"`
	CameraID string       `json:"camera_id,omitempty"`
}

// AttendanceEventResponse is a stored attendance event
type AttendanceEventResponse struct {
	ID         string  `json:"id"`
	StudentID  string  `json:"student_id"`
	ProfileID  string  `json:"profile_id,omitempty"`
	ClassID    string  `json:"class_id,omitempty"`
	Confidence float64 `json:"confidence"`
	CameraID   string  `json:"camera_id"`
	FrameRef   string  `json:"frame_ref,omitempty"`
	Verified   bool    `json:"verified"`
	Method     string  `json:"method"`
	MarkedAt   string  `json:"marked_at"`
}

// Mark authorizes and records one attendance event. Skips are 200 responses.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req MarkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	res, err := h.engine.Mark(r.Context(), attendance.MarkRequest{
		StudentID:  req.StudentID,
		ProfileID:  req.ProfileID,
		ClassID:    req.ClassID,
		CameraID:   req.CameraID,
		FrameRef:   req.FrameRef,
		Confidence: req.Confidence,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// MarkBatch marks every match independently and returns one result per kept match
func (h *AttendanceHandler) MarkBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	candidates := make([]attendance.Candidate, 0, len(req.Matches))
	for _, m := range req.Matches {
		c := attendance.Candidate{StudentID: m.StudentID, ProfileID: m.ProfileID, FrameRef: m.FrameRef}
		switch {
		case m.Confidence != nil:
			c.Confidence = *m.Confidence
		case m.Similarity != nil:
			c.Confidence = *m.Similarity
		}
		candidates = append(candidates, c)
	}

	respondJSON(w, http.StatusOK, h.engine.MarkBatch(r.Context(), candidates, req.ClassID, req.CameraID))
}

// Today lists today's events; ?class_id= narrows to one class
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	events, err := h.engine.Today(r.Context(), r.URL.Query().Get("class_id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out := make([]AttendanceEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, AttendanceEventResponse{
			ID:         ev.ID,
			StudentID:  ev.StudentID,
			ProfileID:  ev.ProfileID,
			ClassID:    ev.ClassID,
			Confidence: ev.Confidence,
			CameraID:   ev.CameraID,
			FrameRef:   ev.FrameRef,
			Verified:   ev.Verified,
			Method:     ev.Method,
			MarkedAt:   ev.MarkedAt.UTC().Format(timeLayout),
		})
	}
	respondJSON(w, http.StatusOK, out)
}
