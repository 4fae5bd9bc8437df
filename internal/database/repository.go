package database

import (
	"context"
	"time"
)

// BiometricReader provides read-only access to profiles and biometric rows
type BiometricReader interface {
	// FindProfile returns the profile, or nil if not found
	FindProfile(ctx context.Context, profileID string) (*Profile, error)
	// GetPending returns a pending submission by id, or nil if not found
	GetPending(ctx context.Context, pendingID string) (*PendingBiometric, error)
	// ListPending returns submissions with the given status, oldest first
	ListPending(ctx context.Context, status PendingStatus, limit int) ([]PendingBiometric, error)
	// ListActive returns every active biometric row
	ListActive(ctx context.Context) ([]ActiveBiometric, error)
	// CountActive returns the number of active biometric rows
	CountActive(ctx context.Context) (int, error)
	// SimilaritySearch returns up to limit active rows with cosine similarity >= minSimilarity,
	// nearest first, ties broken by the most recently created row
	SimilaritySearch(ctx context.Context, query []float32, minSimilarity float64, limit int) ([]SimilarityMatch, error)
}

// BiometricWriter provides write access to profiles and biometric rows
type BiometricWriter interface {
	BiometricReader

	// CreateProfile inserts the profile unless one with the same id exists.
	// Returns true when a row was created.
	CreateProfile(ctx context.Context, profile Profile) (bool, error)
	// UpdateProfileFlags applies a partial update, ErrNotFound if the profile is missing
	UpdateProfileFlags(ctx context.Context, profileID string, flags ProfileFlags) error
	// InsertPending stores a new submission, filling CreatedAt
	InsertPending(ctx context.Context, pending *PendingBiometric) error
	// UpdatePendingStatus moves a submission from one status to another.
	// ErrNotFound if absent, ErrAlreadyDecided if the current status is not from.
	UpdatePendingStatus(ctx context.Context, pendingID string, from, to PendingStatus, reason string) error
	// InsertActive stores an active row directly, filling ID and CreatedAt
	InsertActive(ctx context.Context, active *ActiveBiometric) error
	// PromotePending atomically inserts the active row, activates the profile and
	// marks the submission approved. Same errors as UpdatePendingStatus.
	PromotePending(ctx context.Context, pendingID string) (*ActiveBiometric, error)
}

// AttendanceStore persists attendance events
type AttendanceStore interface {
	// HasRecentAttendance reports an event at or after since. An empty classID matches any class.
	HasRecentAttendance(ctx context.Context, studentID, classID string, since time.Time) (bool, error)
	// InsertAttendance inserts the event unless another one for the same student
	// (and class, when set) exists within window before event.MarkedAt; then ErrAlreadyMarked.
	InsertAttendance(ctx context.Context, event *AttendanceEvent, window time.Duration) error
	// ListAttendance returns events matching the filter, newest first
	ListAttendance(ctx context.Context, filter AttendanceFilter) ([]AttendanceEvent, error)
}

// ClassStore provides class metadata used by the authorization rules
type ClassStore interface {
	// IsEnrolled reports whether the student belongs to the class
	IsEnrolled(ctx context.Context, studentID, classID string) (bool, error)
	// GetClassSchedule returns the schedule, or nil if the class is unknown
	GetClassSchedule(ctx context.Context, classID string) (*ClassSchedule, error)
	// SaveClass upserts the class and its schedule
	SaveClass(ctx context.Context, class ClassSchedule) error
	// EnrollStudent adds the student to the class, idempotent
	EnrollStudent(ctx context.Context, classID, studentID string) error
}

// StatsStore persists daily per-camera recognition statistics
type StatsStore interface {
	// RecordStat folds one sample into (date, camera) atomically and returns the updated row
	RecordStat(ctx context.Context, date, cameraID string, sample StatSample) (*RecognitionStat, error)
	// GetStat returns the row, or nil if none was recorded
	GetStat(ctx context.Context, date, cameraID string) (*RecognitionStat, error)
}
