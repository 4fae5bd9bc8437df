// Package recognition ties matching, attendance and statistics together for
// the camera-facing operations.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/matching"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FaceDetector finds faces in an image and embeds each of them.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) (*embedder.FaceResponse, error)
}

// Config tunes the frame scan.
type Config struct {
	DefaultCameraID string
	ScanConcurrency int     // parallel match queries per frame
	OverlapIoU      float64 // detections overlapping more than this are merged
}

// DefaultConfig returns the stock scan settings.
func DefaultConfig() Config {
	return Config{
		DefaultCameraID: "cctv_main",
		ScanConcurrency: 4,
		OverlapIoU:      0.5,
	}
}

// Result is the outcome of a single-embedding recognition.
type Result struct {
	Matched    bool                  `json:"matched"`
	Match      *matching.MatchResult `json:"match,omitempty"`
	Attendance *attendance.Result    `json:"attendance,omitempty"`
}

// IdentifiedFace is a face of a frame resolved to a student.
type IdentifiedFace struct {
	FaceIndex  int       `json:"face_index"`
	StudentID  string    `json:"student_id"`
	ProfileID  string    `json:"profile_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// ScanResult summarises one frame.
type ScanResult struct {
	TotalFaces int                 `json:"total_faces"`
	Identified int                 `json:"identified"`
	Unknown    int                 `json:"unknown"`
	Students   []IdentifiedFace    `json:"students"`
	Attendance []attendance.Result `json:"attendance"`
}

// Service is safe for concurrent use.
type Service struct {
	matcher  *matching.Engine
	marker   *attendance.Engine
	stats    attendance.StatsRecorder
	detector FaceDetector
	metrics  *metrics.AttendanceMetrics
	cfg      Config
	log      *logrus.Entry
}

// NewService wires the pipeline. stats, detector and m may be nil.
func NewService(matcher *matching.Engine, marker *attendance.Engine, stats attendance.StatsRecorder,
	detector FaceDetector, m *metrics.AttendanceMetrics, cfg Config) *Service {
	if cfg.ScanConcurrency < 1 {
		cfg.ScanConcurrency = 1
	}
	if cfg.DefaultCameraID == "" {
		cfg.DefaultCameraID = DefaultConfig().DefaultCameraID
	}
	return &Service{
		matcher:  matcher,
		marker:   marker,
		stats:    stats,
		detector: detector,
		metrics:  m,
		cfg:      cfg,
		log:      logging.Component("recognition"),
	}
}

func (s *Service) camera(cameraID string) string {
	if cameraID == "" {
		return s.cfg.DefaultCameraID
	}
	return cameraID
}

func (s *Service) recordStat(ctx context.Context, cameraID string, success bool, confidence float64, started time.Time) {
	if s.stats == nil {
		return
	}
	s.stats.Record(ctx, cameraID, success, confidence, elapsedMs(started))
}

func elapsedMs(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000
}

// match runs one query and counts it; it does not touch statistics.
func (s *Service) match(ctx context.Context, embedding []float32, cameraID string) (*matching.MatchResult, error) {
	m, err := s.matcher.Match(ctx, embedding)
	switch {
	case err != nil:
		s.metrics.RecordRecognition(cameraID, metrics.ResultError)
	case m == nil:
		s.metrics.RecordRecognition(cameraID, metrics.ResultUnmatched)
	default:
		s.metrics.RecordRecognition(cameraID, metrics.ResultMatched)
	}
	return m, err
}

// Recognize matches one embedding and records one statistics sample.
// Malformed embeddings are rejected without a sample.
func (s *Service) Recognize(ctx context.Context, embedding []float32, cameraID string) (*Result, error) {
	cameraID = s.camera(cameraID)
	started := time.Now()

	m, err := s.match(ctx, embedding, cameraID)
	if err != nil {
		if !errors.Is(err, database.ErrInvalidEmbedding) {
			s.recordStat(ctx, cameraID, false, 0, started)
		}
		return nil, err
	}
	if m == nil {
		s.recordStat(ctx, cameraID, false, 0, started)
		return &Result{}, nil
	}

	s.recordStat(ctx, cameraID, true, m.Confidence, started)
	return &Result{Matched: true, Match: m}, nil
}

// RecognizeAndMark matches one embedding and marks attendance for the match.
// The statistics sample comes from the mark; a skipped mark counts as a
// successful recognition.
func (s *Service) RecognizeAndMark(ctx context.Context, embedding []float32, cameraID, classID string) (*Result, error) {
	cameraID = s.camera(cameraID)
	started := time.Now()

	m, err := s.match(ctx, embedding, cameraID)
	if err != nil {
		if !errors.Is(err, database.ErrInvalidEmbedding) {
			s.recordStat(ctx, cameraID, false, 0, started)
		}
		return nil, err
	}
	if m == nil {
		s.recordStat(ctx, cameraID, false, 0, started)
		return &Result{}, nil
	}

	res, err := s.marker.Mark(ctx, attendance.MarkRequest{
		StudentID:        m.StudentID,
		ProfileID:        m.ProfileID,
		ClassID:          classID,
		CameraID:         cameraID,
		Confidence:       m.Confidence,
		ProcessingTimeMs: elapsedMs(started),
	})
	if err != nil {
		return &Result{Matched: true, Match: m}, err
	}
	if res.Status == attendance.StatusSkipped {
		s.recordStat(ctx, cameraID, true, m.Confidence, started)
	}
	return &Result{Matched: true, Match: m, Attendance: res}, nil
}

// DetectedFace is a face found in an image, without its embedding.
type DetectedFace struct {
	FaceIndex int       `json:"face_index"`
	BBox      []float64 `json:"bbox,omitempty"`
	DetScore  float64   `json:"det_score"`
}

// Detect lists the faces of an image after overlap merging.
func (s *Service) Detect(ctx context.Context, image []byte) ([]DetectedFace, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("%w: embedding service not configured", database.ErrConfiguration)
	}
	resp, err := s.detector.DetectFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := s.dedupDetections(resp.Faces)
	out := make([]DetectedFace, 0, len(faces))
	for _, f := range faces {
		out = append(out, DetectedFace{FaceIndex: f.FaceIndex, BBox: f.BBox, DetScore: f.DetScore})
	}
	return out, nil
}

// IdentifyFrame recognizes the largest face of an image without marking
// attendance. An image without a usable face yields ErrNoFaceDetected.
func (s *Service) IdentifyFrame(ctx context.Context, image []byte, cameraID string) (*Result, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("%w: embedding service not configured", database.ErrConfiguration)
	}

	resp, err := s.detector.DetectFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	var (
		largest *embedder.Face
		area    float64
	)
	for i := range resp.Faces {
		f := &resp.Faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if a := facematch.BoxArea(f.BBox); largest == nil || a > area {
			largest, area = f, a
		}
	}
	if largest == nil {
		return nil, database.ErrNoFaceDetected
	}
	return s.Recognize(ctx, largest.Embedding, cameraID)
}

// ScanFrame detects every face of a frame, matches them concurrently and
// marks each recognized student once.
func (s *Service) ScanFrame(ctx context.Context, image []byte, cameraID, classID string) (*ScanResult, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("%w: embedding service not configured", database.ErrConfiguration)
	}
	cameraID = s.camera(cameraID)
	started := time.Now()

	resp, err := s.detector.DetectFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := s.dedupDetections(resp.Faces)
	result := &ScanResult{
		TotalFaces: len(faces),
		Students:   []IdentifiedFace{},
		Attendance: []attendance.Result{},
	}
	if len(faces) == 0 {
		return result, nil
	}

	matches := make([]*matching.MatchResult, len(faces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ScanConcurrency)
	for i := range faces {
		g.Go(func() error {
			m, err := s.match(gctx, faces[i].Embedding, cameraID)
			if errors.Is(err, database.ErrInvalidEmbedding) {
				return nil
			}
			if err != nil {
				return err
			}
			matches[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.recordStat(ctx, cameraID, false, 0, started)
		return nil, fmt.Errorf("scan frame: %w", err)
	}

	// one candidate per student, the most confident face wins
	best := make(map[string]int)
	var order []string
	for i, m := range matches {
		if m == nil {
			result.Unknown++
			s.recordStat(ctx, cameraID, false, 0, started)
			continue
		}
		prev, seen := best[m.StudentID]
		if !seen {
			order = append(order, m.StudentID)
			best[m.StudentID] = i
		} else if m.Confidence > matches[prev].Confidence {
			best[m.StudentID] = i
		}
	}

	candidates := make([]attendance.Candidate, 0, len(order))
	for _, studentID := range order {
		i := best[studentID]
		m := matches[i]
		result.Students = append(result.Students, IdentifiedFace{
			FaceIndex:  faces[i].FaceIndex,
			StudentID:  m.StudentID,
			ProfileID:  m.ProfileID,
			Confidence: m.Confidence,
			BBox:       faces[i].BBox,
		})
		candidates = append(candidates, attendance.Candidate{
			StudentID:        m.StudentID,
			ProfileID:        m.ProfileID,
			Confidence:       m.Confidence,
			ProcessingTimeMs: elapsedMs(started),
		})
	}
	result.Identified = len(result.Students)

	result.Attendance = s.marker.MarkBatch(ctx, candidates, classID, cameraID)
	for _, r := range result.Attendance {
		if r.Status == attendance.StatusSkipped {
			s.recordStat(ctx, cameraID, true, r.Confidence, started)
		}
	}

	s.log.WithFields(logging.Fields{
		"camera_id":  cameraID,
		"class_id":   classID,
		"faces":      result.TotalFaces,
		"identified": result.Identified,
		"unknown":    result.Unknown,
	}).Info("frame scanned")
	return result, nil
}

// dedupDetections drops faces without an embedding and merges overlapping boxes.
func (s *Service) dedupDetections(faces []embedder.Face) []embedder.Face {
	var usable []embedder.Face
	for _, f := range faces {
		if len(f.Embedding) > 0 {
			usable = append(usable, f)
		}
	}
	if len(usable) < 2 || s.cfg.OverlapIoU <= 0 {
		return usable
	}

	boxes := make([][]float64, len(usable))
	scores := make([]float64, len(usable))
	for i, f := range usable {
		boxes[i] = f.BBox
		scores[i] = f.DetScore
	}
	keep := facematch.SuppressOverlapping(boxes, scores, s.cfg.OverlapIoU)
	out := make([]embedder.Face, 0, len(keep))
	for _, i := range keep {
		out = append(out, usable[i])
	}
	return out
}
