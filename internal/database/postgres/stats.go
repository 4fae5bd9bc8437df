package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var _ database.StatsStore = (*StatsRepository)(nil)

// StatsRepository stores daily per-camera recognition statistics.
type StatsRepository struct {
	pool *Pool
}

// NewStatsRepository creates a new PostgreSQL stats repository.
func NewStatsRepository(pool *Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

const statColumns = `to_char(date, 'YYYY-MM-DD'), camera_id, total_recognitions, successful_matches,
	failed_matches, avg_confidence, avg_processing_time_ms, updated_at`

func scanStat(scanner interface{ Scan(...any) error }) (database.RecognitionStat, error) {
	var s database.RecognitionStat
	err := scanner.Scan(&s.Date, &s.CameraID, &s.TotalRecognitions, &s.SuccessfulMatches,
		&s.FailedMatches, &s.AvgConfidence, &s.AvgProcessingTimeMs, &s.UpdatedAt)
	return s, err
}

// RecordStat folds one sample into (date, camera) with a single upsert. The
// means are updated from the row's own previous values, so concurrent
// writers never lose an increment.
func (r *StatsRepository) RecordStat(ctx context.Context, date, cameraID string, sample database.StatSample) (*database.RecognitionStat, error) {
	if _, err := time.Parse(database.StatDateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: stat date %q", database.ErrInvalidInput, date)
	}

	success, failed := 0, 1
	if sample.Success {
		success, failed = 1, 0
	}

	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	s, err := scanStat(r.pool.QueryRow(ctx, `
		INSERT INTO recognition_stats AS s (date, camera_id, total_recognitions, successful_matches,
		                                    failed_matches, avg_confidence, avg_processing_time_ms)
		VALUES ($1, $2, 1, $3, $4, $5, $6)
		ON CONFLICT (date, camera_id) DO UPDATE SET
			total_recognitions = s.total_recognitions + 1,
			successful_matches = s.successful_matches + EXCLUDED.successful_matches,
			failed_matches = s.failed_matches + EXCLUDED.failed_matches,
			avg_confidence = (s.avg_confidence * s.total_recognitions + EXCLUDED.avg_confidence)
			                 / (s.total_recognitions + 1),
			avg_processing_time_ms = (s.avg_processing_time_ms * s.total_recognitions + EXCLUDED.avg_processing_time_ms)
			                         / (s.total_recognitions + 1),
			updated_at = NOW()
		RETURNING `+statColumns,
		date, cameraID, success, failed, sample.Confidence, sample.ProcessingTimeMs))
	if err != nil {
		return nil, fmt.Errorf("record stat: %w", classifyError(err))
	}
	return &s, nil
}

// GetStat returns the row, or nil if nothing was recorded.
func (r *StatsRepository) GetStat(ctx context.Context, date, cameraID string) (*database.RecognitionStat, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	s, err := scanStat(r.pool.QueryRow(ctx,
		`SELECT `+statColumns+` FROM recognition_stats WHERE date = $1 AND camera_id = $2`, date, cameraID))
	if errNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stat: %w", classifyError(err))
	}
	return &s, nil
}
