// Package metrics provides Prometheus metrics for recognition and attendance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for recognition attempts.
const (
	ResultMatched   = "matched"
	ResultUnmatched = "unmatched"
	ResultError     = "error"
)

// AttendanceMetrics contains Prometheus metrics for the recognition pipeline.
// A nil *AttendanceMetrics is valid and records nothing.
type AttendanceMetrics struct {
	registry *prometheus.Registry

	recognitionsTotal *prometheus.CounterVec
	marksTotal        *prometheus.CounterVec
	matchSimilarity   prometheus.Histogram
	statsErrorsTotal  prometheus.Counter
	storageErrors     *prometheus.CounterVec
}

// NewAttendanceMetrics creates and registers attendance metrics.
func NewAttendanceMetrics(registry *prometheus.Registry) (*AttendanceMetrics, error) {
	m := &AttendanceMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AttendanceMetrics) initMetrics() {
	m.recognitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_recognitions_total",
			Help: "Total number of recognition attempts",
		},
		[]string{"camera", "result"}, // result: matched, unmatched, error
	)

	m.marksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_marks_total",
			Help: "Total number of attendance mark outcomes",
		},
		[]string{"status"}, // status: success, skipped, error
	)

	m.matchSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_match_similarity",
			Help:    "Cosine similarity of the best candidate for each recognition",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	m.statsErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_stats_errors_total",
			Help: "Total number of recognition statistics updates that failed",
		},
	)

	m.storageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_storage_errors_total",
			Help: "Total number of datastore failures by operation",
		},
		[]string{"operation"},
	)
}

// Describe implements the Collector interface
func (m *AttendanceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.recognitionsTotal.Describe(ch)
	m.marksTotal.Describe(ch)
	m.matchSimilarity.Describe(ch)
	m.statsErrorsTotal.Describe(ch)
	m.storageErrors.Describe(ch)
}

// Collect implements the Collector interface
func (m *AttendanceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.recognitionsTotal.Collect(ch)
	m.marksTotal.Collect(ch)
	m.matchSimilarity.Collect(ch)
	m.statsErrorsTotal.Collect(ch)
	m.storageErrors.Collect(ch)
}

// RecordRecognition counts one recognition attempt.
func (m *AttendanceMetrics) RecordRecognition(camera, result string) {
	if m == nil {
		return
	}
	m.recognitionsTotal.WithLabelValues(camera, result).Inc()
}

// ObserveSimilarity records the similarity of the best candidate.
func (m *AttendanceMetrics) ObserveSimilarity(similarity float64) {
	if m == nil {
		return
	}
	m.matchSimilarity.Observe(similarity)
}

// RecordMark counts one attendance outcome.
func (m *AttendanceMetrics) RecordMark(status string) {
	if m == nil {
		return
	}
	m.marksTotal.WithLabelValues(status).Inc()
}

// RecordStatsError counts a failed statistics update.
func (m *AttendanceMetrics) RecordStatsError() {
	if m == nil {
		return
	}
	m.statsErrorsTotal.Inc()
}

// RecordStorageError counts a datastore failure for the given operation.
func (m *AttendanceMetrics) RecordStorageError(operation string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(operation).Inc()
}
