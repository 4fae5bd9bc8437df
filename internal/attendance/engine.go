// Package attendance decides whether a recognized student gets an attendance
// event and persists it.
//
// The rules run in a fixed order: confidence, recent mark, class enrollment,
// class session. The recent-mark rule is a soft read; the datastore's
// conditional insert is what guarantees one event per window.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Stable reason prefixes of skipped results.
const (
	ReasonConfidenceTooLow = "confidence too low"
	ReasonAlreadyMarked    = "already marked"
	ReasonNotEnrolled      = "not enrolled in this class"
	ReasonNotInSession     = "class not in session"
)

// StatsRecorder receives one sample per persisted or failed mark.
type StatsRecorder interface {
	Record(ctx context.Context, cameraID string, success bool, confidence, processingTimeMs float64)
}

// Config holds the authorization thresholds.
type Config struct {
	MinConfidence       float64
	AutoVerifyThreshold float64
	DedupWindow         time.Duration
	CacheTTL            time.Duration // class metadata cache, 0 disables caching
	DefaultCameraID     string
	Location            *time.Location // wall clock used for schedules
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence:       0.70,
		AutoVerifyThreshold: 0.85,
		DedupWindow:         time.Hour,
		CacheTTL:            5 * time.Minute,
		DefaultCameraID:     "cctv_main",
		Location:            time.Local,
	}
}

// Decision is the outcome of the authorization rules.
type Decision struct {
	Allow  bool
	Reason string
}

// MarkRequest is a single attendance candidate.
type MarkRequest struct {
	StudentID        string
	ProfileID        string
	ClassID          string
	CameraID         string
	FrameRef         string
	Confidence       float64
	ProcessingTimeMs float64
}

// Candidate is one entry of a batch; class and camera come from the batch.
type Candidate struct {
	StudentID        string  `json:"student_id"`
	ProfileID        string  `json:"profile_id,omitempty"`
	Confidence       float64 `json:"confidence"`
	FrameRef         string  `json:"frame_ref,omitempty"`
	ProcessingTimeMs float64 `json:"processing_time_ms,omitempty"`
}

// Result is the outcome of a mark.
type Result struct {
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	StudentID  string     `json:"student_id"`
	ProfileID  string     `json:"profile_id,omitempty"`
	Confidence float64    `json:"confidence"`
	Verified   bool       `json:"verified,omitempty"`
	MarkedAt   *time.Time `json:"marked_at,omitempty"`
	RecordID   string     `json:"record_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Engine applies the authorization rules and writes attendance events.
type Engine struct {
	events  database.AttendanceStore
	classes database.ClassStore
	stats   StatsRecorder
	metrics *metrics.AttendanceMetrics
	cfg     Config
	cache   *cache.Cache
	now     func() time.Time
	log     *logrus.Entry
}

// NewEngine creates an engine. stats and m may be nil.
func NewEngine(events database.AttendanceStore, classes database.ClassStore, stats StatsRecorder, m *metrics.AttendanceMetrics, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DefaultCameraID == "" {
		cfg.DefaultCameraID = DefaultConfig().DefaultCameraID
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultConfig().DedupWindow
	}
	e := &Engine{
		events:  events,
		classes: classes,
		stats:   stats,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		log:     logging.Component("attendance"),
	}
	if cfg.CacheTTL > 0 {
		e.cache = cache.New(cfg.CacheTTL, cfg.CacheTTL*2)
	}
	return e
}

// SetClock replaces the clock used for windows and schedules.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// FlushCache drops cached class metadata, e.g. after a schedule import.
func (e *Engine) FlushCache() {
	if e.cache != nil {
		e.cache.Flush()
	}
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hour(s)", int(d/time.Hour))
	}
	return d.String()
}

// ShouldMark evaluates the rules in order and stops at the first that fails.
// Lookup failures of the recent-mark, enrollment and schedule rules are
// logged and treated as allow.
func (e *Engine) ShouldMark(ctx context.Context, studentID, classID string, confidence float64) Decision {
	if confidence < e.cfg.MinConfidence {
		return Decision{Reason: fmt.Sprintf("%s (%s < %s)", ReasonConfidenceTooLow,
			formatPercent(confidence), formatPercent(e.cfg.MinConfidence))}
	}

	log := e.log.WithFields(logging.Fields{"student_id": studentID, "class_id": classID})

	since := e.now().Add(-e.cfg.DedupWindow)
	recent, err := e.events.HasRecentAttendance(ctx, studentID, classID, since)
	if err != nil {
		log.WithError(err).Warn("recent attendance lookup failed, relying on insert dedup")
	} else if recent {
		return Decision{Reason: fmt.Sprintf("%s within last %s", ReasonAlreadyMarked, formatWindow(e.cfg.DedupWindow))}
	}

	if classID == "" {
		return Decision{Allow: true}
	}

	enrolled, err := e.isEnrolled(ctx, studentID, classID)
	if err != nil {
		log.WithError(err).Warn("enrollment lookup failed, allowing")
	} else if !enrolled {
		return Decision{Reason: ReasonNotEnrolled}
	}

	schedule, err := e.schedule(ctx, classID)
	switch {
	case err != nil:
		log.WithError(err).Warn("schedule lookup failed, allowing")
	case schedule == nil:
		log.Debug("class has no schedule, allowing")
	case !schedule.InSession(e.now().In(e.cfg.Location)):
		return Decision{Reason: ReasonNotInSession}
	}

	return Decision{Allow: true}
}

func (e *Engine) isEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	key := "enrolled|" + classID + "|" + studentID
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v.(bool), nil
		}
	}
	enrolled, err := e.classes.IsEnrolled(ctx, studentID, classID)
	if err != nil {
		return false, err
	}
	if e.cache != nil {
		e.cache.Set(key, enrolled, cache.DefaultExpiration)
	}
	return enrolled, nil
}

func (e *Engine) schedule(ctx context.Context, classID string) (*database.ClassSchedule, error) {
	key := "schedule|" + classID
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v.(*database.ClassSchedule), nil
		}
	}
	s, err := e.classes.GetClassSchedule(ctx, classID)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, s, cache.DefaultExpiration)
	}
	return s, nil
}

func validConfidence(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 1
}

// Mark authorizes and persists one attendance event. A denied mark is a
// skipped result, not an error. Persistence failures are returned.
func (e *Engine) Mark(ctx context.Context, req MarkRequest) (*Result, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	if req.StudentID == "" {
		return nil, fmt.Errorf("%w: student id is required", database.ErrInvalidInput)
	}
	if !validConfidence(req.Confidence) {
		return nil, fmt.Errorf("%w: confidence must be in [0, 1], got %v", database.ErrInvalidInput, req.Confidence)
	}
	if req.CameraID == "" {
		req.CameraID = e.cfg.DefaultCameraID
	}

	log := e.log.WithFields(logging.Fields{
		"student_id": req.StudentID,
		"class_id":   req.ClassID,
		"camera_id":  req.CameraID,
	})

	decision := e.ShouldMark(ctx, req.StudentID, req.ClassID, req.Confidence)
	if !decision.Allow {
		log.WithField("reason", decision.Reason).Debug("attendance skipped")
		return e.skipped(req, decision.Reason), nil
	}

	event := &database.AttendanceEvent{
		ID:         uuid.New().String(),
		StudentID:  req.StudentID,
		ProfileID:  req.ProfileID,
		ClassID:    req.ClassID,
		Confidence: req.Confidence,
		CameraID:   req.CameraID,
		FrameRef:   req.FrameRef,
		Verified:   req.Confidence >= e.cfg.AutoVerifyThreshold,
		Method:     database.MethodFaceRecognition,
		MarkedAt:   e.now(),
	}

	err := e.events.InsertAttendance(ctx, event, e.cfg.DedupWindow)
	if errors.Is(err, database.ErrAlreadyMarked) {
		log.Debug("attendance rejected by insert dedup")
		return e.skipped(req, fmt.Sprintf("%s within last %s", ReasonAlreadyMarked, formatWindow(e.cfg.DedupWindow))), nil
	}
	if err != nil {
		e.recordStat(ctx, req.CameraID, false, 0, req.ProcessingTimeMs)
		e.metrics.RecordMark(StatusError)
		e.metrics.RecordStorageError("insert_attendance")
		log.WithError(err).Error("failed to persist attendance")
		return nil, fmt.Errorf("mark attendance for %s: %w", req.StudentID, err)
	}

	e.recordStat(ctx, req.CameraID, true, req.Confidence, req.ProcessingTimeMs)
	e.metrics.RecordMark(StatusSuccess)
	log.WithFields(logging.Fields{
		"confidence": req.Confidence,
		"verified":   event.Verified,
	}).Info("attendance marked")

	markedAt := event.MarkedAt
	return &Result{
		Status:     StatusSuccess,
		StudentID:  req.StudentID,
		ProfileID:  req.ProfileID,
		Confidence: req.Confidence,
		Verified:   event.Verified,
		MarkedAt:   &markedAt,
		RecordID:   event.ID,
	}, nil
}

func (e *Engine) skipped(req MarkRequest, reason string) *Result {
	e.metrics.RecordMark(StatusSkipped)
	return &Result{
		Status:     StatusSkipped,
		Reason:     reason,
		StudentID:  req.StudentID,
		ProfileID:  req.ProfileID,
		Confidence: req.Confidence,
	}
}

func (e *Engine) recordStat(ctx context.Context, cameraID string, success bool, confidence, ms float64) {
	if e.stats == nil {
		return
	}
	e.stats.Record(ctx, cameraID, success, confidence, ms)
}

// MarkBatch marks each candidate independently, in input order. Candidates
// without a student id are dropped; failures become results with StatusError.
func (e *Engine) MarkBatch(ctx context.Context, candidates []Candidate, classID, cameraID string) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.StudentID) == "" {
			continue
		}
		res, err := e.Mark(ctx, MarkRequest{
			StudentID:        c.StudentID,
			ProfileID:        c.ProfileID,
			ClassID:          classID,
			CameraID:         cameraID,
			FrameRef:         c.FrameRef,
			Confidence:       c.Confidence,
			ProcessingTimeMs: c.ProcessingTimeMs,
		})
		if err != nil {
			results = append(results, Result{
				Status:     StatusError,
				StudentID:  c.StudentID,
				ProfileID:  c.ProfileID,
				Confidence: c.Confidence,
				Error:      batchErrorMessage(err),
			})
			continue
		}
		results = append(results, *res)
	}
	return results
}

// batchErrorMessage is the client-facing text of a failed batch item. Mark
// logs the underlying cause.
func batchErrorMessage(err error) string {
	switch {
	case errors.Is(err, database.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, database.ErrStorageUnavailable):
		return "storage unavailable, retry later"
	default:
		return "internal error"
	}
}

// Today lists events since local midnight, newest first. Empty classID lists every class.
func (e *Engine) Today(ctx context.Context, classID string) ([]database.AttendanceEvent, error) {
	now := e.now().In(e.cfg.Location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.cfg.Location)
	events, err := e.events.ListAttendance(ctx, database.AttendanceFilter{
		ClassID: classID,
		Since:   midnight,
	})
	if err != nil {
		return nil, fmt.Errorf("list today's attendance: %w", err)
	}
	return events, nil
}
