// Package matching resolves a face embedding to the nearest enrolled identity.
package matching

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Config controls the match cutoff.
type Config struct {
	Dim               int     // expected embedding dimension, <= 0 disables the check
	DistanceThreshold float64 // cosine distance cutoff; similarity cutoff is 1 - DistanceThreshold
	TopK              int     // candidates requested from the repository
}

// DefaultConfig matches 512-dim embeddings with a 0.6 cosine distance cutoff.
func DefaultConfig() Config {
	return Config{Dim: 512, DistanceThreshold: 0.6, TopK: 1}
}

// MatchResult is the best candidate above the cutoff.
type MatchResult struct {
	StudentID  string  `json:"student_id"`
	ProfileID  string  `json:"profile_id"`
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Engine runs similarity queries against the active set. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	repo    database.BiometricReader
	cfg     Config
	metrics *metrics.AttendanceMetrics
	log     *logrus.Entry
}

// NewEngine creates a matching engine. m may be nil.
func NewEngine(repo database.BiometricReader, cfg Config, m *metrics.AttendanceMetrics) *Engine {
	if cfg.TopK < 1 {
		cfg.TopK = 1
	}
	return &Engine{
		repo:    repo,
		cfg:     cfg,
		metrics: m,
		log:     logging.Component("matching"),
	}
}

// SimilarityThreshold is the minimum similarity a candidate needs.
func (e *Engine) SimilarityThreshold() float64 {
	return 1 - e.cfg.DistanceThreshold
}

// Validate checks an embedding against the configured dimension.
func (e *Engine) Validate(embedding []float32) error {
	return database.ValidateEmbedding(embedding, e.cfg.Dim)
}

// Match returns the nearest active identity whose similarity reaches the cutoff,
// or nil when there is none. Malformed embeddings return database.ErrInvalidEmbedding.
func (e *Engine) Match(ctx context.Context, embedding []float32) (*MatchResult, error) {
	if err := e.Validate(embedding); err != nil {
		return nil, err
	}

	candidates, err := e.repo.SimilaritySearch(ctx, embedding, e.SimilarityThreshold(), e.cfg.TopK)
	if err != nil {
		e.metrics.RecordStorageError("similarity_search")
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// repositories already order by distance then recency; re-sort in case a
	// backend returned more than one candidate in another order
	database.SortMatches(candidates)
	best := candidates[0]
	similarity := best.Similarity()
	e.metrics.ObserveSimilarity(similarity)

	if similarity < e.SimilarityThreshold() {
		return nil, nil
	}

	e.log.WithFields(logging.Fields{
		"student_id": best.Biometric.StudentID,
		"similarity": similarity,
	}).Debug("matched face")

	return &MatchResult{
		StudentID:  best.Biometric.StudentID,
		ProfileID:  best.Biometric.ProfileID,
		Similarity: similarity,
		Distance:   best.Distance,
		Confidence: clamp01(similarity),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
