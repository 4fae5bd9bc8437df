package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// RecognizeHandler handles camera-facing recognition endpoints
type RecognizeHandler struct {
	service *recognition.Service
}

// NewRecognizeHandler creates a new recognition handler
func NewRecognizeHandler(service *recognition.Service) *RecognizeHandler {
	return &RecognizeHandler{service: service}
}

// RecognizeRequest is the body of POST /recognize
type RecognizeRequest struct {
	Embedding []float32 `json:"embedding"`
	CameraID  string    `json:"camera_id"`
	ClassID   string    `json:"class_id,omitempty"`
	Mark      bool      `json:"mark,omitempty"`
}

// RecognizeResponse reports the match and, when requested, the attendance outcome
type RecognizeResponse struct {
	Matched    bool               `json:"matched"`
	StudentID  string             `json:"student_id,omitempty"`
	ProfileID  string             `json:"profile_id,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	Similarity float64            `json:"similarity,omitempty"`
	Attendance *attendance.Result `json:"attendance,omitempty"`
}

// Recognize matches one embedding, optionally marking attendance
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	var (
		res *recognition.Result
		err error
	)
	if req.Mark {
		res, err = h.service.RecognizeAndMark(r.Context(), req.Embedding, req.CameraID, req.ClassID)
	} else {
		res, err = h.service.Recognize(r.Context(), req.Embedding, req.CameraID)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toRecognizeResponse(res))
}

func toRecognizeResponse(res *recognition.Result) RecognizeResponse {
	out := RecognizeResponse{Matched: res.Matched, Attendance: res.Attendance}
	if res.Match != nil {
		out.StudentID = res.Match.StudentID
		out.ProfileID = res.Match.ProfileID
		out.Confidence = res.Match.Confidence
		out.Similarity = res.Match.Similarity
	}
	return out
}

// RecognizeImage identifies the largest face of a multipart image (image, camera_id)
func (h *RecognizeHandler) RecognizeImage(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	res, err := h.service.IdentifyFrame(r.Context(), image, r.FormValue("camera_id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRecognizeResponse(res))
}

// DetectResponse is the body of POST /detect
type DetectResponse struct {
	FaceCount int                        `json:"face_count"`
	Faces     []recognition.DetectedFace `json:"faces"`
}

// Detect reports the faces of a multipart image without matching them
func (h *RecognizeHandler) Detect(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	faces, err := h.service.Detect(r.Context(), image)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, DetectResponse{FaceCount: len(faces), Faces: faces})
}

// Scan processes a multipart frame (image, camera_id, class_id)
func (h *RecognizeHandler) Scan(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	res, err := h.service.ScanFrame(r.Context(), image, r.FormValue("camera_id"), r.FormValue("class_id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
