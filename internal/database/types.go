package database

import (
	"time"
)

// PendingStatus is the lifecycle state of an enrollment submission.
type PendingStatus string

const (
	StatusPending  PendingStatus = "pending"
	StatusApproved PendingStatus = "approved"
	StatusRejected PendingStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s PendingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// DefaultRole is assigned to profiles created implicitly by an enrollment.
const DefaultRole = "student"

// MethodFaceRecognition is the only attendance method this service writes.
const MethodFaceRecognition = "face_recognition"

// Profile is an enrolled person. Profiles are created on first submission and never deleted.
type Profile struct {
	ProfileID    string
	StudentID    string
	FullName     string
	Role         string
	FaceEnrolled bool
	IsActive     bool
	CreatedAt    time.Time
}

// ProfileFlags is a partial update of a profile. Nil fields are left untouched.
type ProfileFlags struct {
	FaceEnrolled *bool
	IsActive     *bool
}

// PendingBiometric is an enrollment submission awaiting an operator decision.
// Decided rows are kept as the audit trail.
type PendingBiometric struct {
	PendingID    string
	ProfileID    string
	StudentID    string
	FullName     string
	Embedding    []float32
	SelfieRef    string // empty when no selfie was stored
	Status       PendingStatus
	RejectReason string
	CreatedAt    time.Time
	DecidedAt    *time.Time
}

// ActiveBiometric is an approved embedding that takes part in matching.
type ActiveBiometric struct {
	ID        int64
	ProfileID string
	StudentID string
	Embedding []float32
	PendingID string // submission this row was promoted from, unique
	CreatedAt time.Time
}

// SimilarityMatch is a single candidate returned by a similarity search.
type SimilarityMatch struct {
	Biometric ActiveBiometric
	Distance  float64 // cosine distance in [0, 2]
}

// Similarity converts the cosine distance into cosine similarity.
func (m SimilarityMatch) Similarity() float64 {
	return 1 - m.Distance
}

// AttendanceEvent is one recorded attendance.
type AttendanceEvent struct {
	ID         string
	StudentID  string
	ProfileID  string // optional
	ClassID    string // optional, empty means "no class"
	Confidence float64
	CameraID   string
	FrameRef   string // optional
	Verified   bool
	Method     string
	MarkedAt   time.Time
}

// AttendanceFilter narrows ListAttendance. Zero values mean "no constraint".
type AttendanceFilter struct {
	StudentID string
	ClassID   string
	CameraID  string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// RecognitionStat aggregates recognition attempts per day and camera.
type RecognitionStat struct {
	Date                string // YYYY-MM-DD
	CameraID            string
	TotalRecognitions   int64
	SuccessfulMatches   int64
	FailedMatches       int64
	AvgConfidence       float64
	AvgProcessingTimeMs float64
	UpdatedAt           time.Time
}

// StatSample is one recognition attempt fed into RecognitionStat.
type StatSample struct {
	Success          bool
	Confidence       float64
	ProcessingTimeMs float64
}

// StatDateLayout is the layout of RecognitionStat.Date.
const StatDateLayout = "2006-01-02"
