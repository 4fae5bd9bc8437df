// Package stats keeps daily per-camera recognition statistics.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Aggregator folds recognition attempts into (date, camera) rows.
type Aggregator struct {
	store   database.StatsStore
	metrics *metrics.AttendanceMetrics
	loc     *time.Location
	now     func() time.Time
	log     *logrus.Entry
}

// NewAggregator creates an aggregator that buckets days in loc (UTC when nil).
func NewAggregator(store database.StatsStore, m *metrics.AttendanceMetrics, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		store:   store,
		metrics: m,
		loc:     loc,
		now:     time.Now,
		log:     logging.Component("stats"),
	}
}

// SetClock replaces the clock used to pick the current day.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// Today returns the current date key.
func (a *Aggregator) Today() string {
	return a.now().In(a.loc).Format(database.StatDateLayout)
}

// Record folds one attempt into today's row. Failures are logged and counted, never returned.
func (a *Aggregator) Record(ctx context.Context, cameraID string, success bool, confidence, processingTimeMs float64) {
	if _, err := a.RecordStrict(ctx, cameraID, success, confidence, processingTimeMs); err != nil {
		a.metrics.RecordStatsError()
		a.log.WithError(err).WithField("camera_id", cameraID).Warn("failed to record recognition stat")
	}
}

// RecordStrict is Record that reports the updated row or the error.
func (a *Aggregator) RecordStrict(ctx context.Context, cameraID string, success bool, confidence, processingTimeMs float64) (*database.RecognitionStat, error) {
	cameraID = strings.TrimSpace(cameraID)
	if cameraID == "" {
		return nil, fmt.Errorf("%w: camera id is required", database.ErrInvalidInput)
	}
	if processingTimeMs < 0 {
		processingTimeMs = 0
	}

	stat, err := a.store.RecordStat(ctx, a.Today(), cameraID, database.StatSample{
		Success:          success,
		Confidence:       confidence,
		ProcessingTimeMs: processingTimeMs,
	})
	if err != nil {
		return nil, fmt.Errorf("record stat for %s: %w", cameraID, err)
	}
	return stat, nil
}

// Get returns the row for camera and date (YYYY-MM-DD, empty for today).
// ErrNotFound when nothing was recorded.
func (a *Aggregator) Get(ctx context.Context, cameraID, date string) (*database.RecognitionStat, error) {
	if date == "" {
		date = a.Today()
	}
	if _, err := time.Parse(database.StatDateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", database.ErrInvalidInput)
	}
	if strings.TrimSpace(cameraID) == "" {
		return nil, fmt.Errorf("%w: camera id is required", database.ErrInvalidInput)
	}

	stat, err := a.store.GetStat(ctx, date, cameraID)
	if err != nil {
		return nil, fmt.Errorf("get stat %s/%s: %w", date, cameraID, err)
	}
	if stat == nil {
		return nil, fmt.Errorf("stat %s/%s: %w", date, cameraID, database.ErrNotFound)
	}
	return stat, nil
}
