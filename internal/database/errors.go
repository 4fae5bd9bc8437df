package database

import "errors"

var (
	// ErrInvalidEmbedding means the vector is empty, has the wrong dimension or holds zero/NaN/Inf values.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrNoFaceDetected means an enrollment carried no face embedding at all.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyDecided means a pending submission was already approved or rejected.
	ErrAlreadyDecided = errors.New("submission already decided")
	// ErrAlreadyMarked means the storage-level dedup rule rejected an attendance insert.
	ErrAlreadyMarked = errors.New("attendance already marked")
	// ErrStorageUnavailable is a retryable datastore failure (timeout, lost connection).
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConfiguration is a deployment problem the operator has to fix.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidInput covers malformed identifiers and request fields.
	ErrInvalidInput = errors.New("invalid input")
)

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
