package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/logging"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

const timeLayout = time.RFC3339

const (
	maxJSONBody   = 1 << 20  // embeddings and small requests
	maxEnrollBody = 12 << 20 // base64 selfie plus embedding
	maxImageBody  = 16 << 20 // multipart frames
)

// errBodyTooLarge is reported when a request body exceeds its limit.
var errBodyTooLarge = errors.New("request body too large")

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, database.ErrInvalidEmbedding),
		errors.Is(err, database.ErrNoFaceDetected),
		errors.Is(err, database.ErrInvalidInput),
		errors.Is(err, embedder.ErrMultipleFaces):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrAlreadyDecided):
		return http.StatusConflict
	case errors.Is(err, database.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, embedder.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError logs and reports err. Unexpected errors are not echoed to the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	message := err.Error()
	switch {
	case errors.Is(err, database.ErrConfiguration):
		// operator-facing, the wrapped message names the missing resource
	case errors.Is(err, database.ErrStorageUnavailable):
		message = "storage unavailable, retry later"
	case status == http.StatusInternalServerError:
		message = "internal error"
	}

	entry := logging.WithError(err).WithFields(logging.Fields{
		"method": r.Method,
		"path":   sanitizeForLog(r.URL.Path),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	respondError(w, status, message)
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeJSONLimit(w, r, dst, maxJSONBody)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if tooLarge(err) {
			return errBodyTooLarge
		}
		return fmt.Errorf("%w: %s", database.ErrInvalidInput, errInvalidRequestBody)
	}
	return nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// readImage parses a multipart form and returns the bytes of the "image" file.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	if err := r.ParseMultipartForm(maxImageBody); err != nil {
		if tooLarge(err) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("%w: failed to parse multipart form", database.ErrInvalidInput)
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("%w: missing image file", database.ErrInvalidInput)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image", database.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", database.ErrInvalidInput)
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
