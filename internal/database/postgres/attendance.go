package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var _ database.AttendanceStore = (*AttendanceRepository)(nil)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const attendanceDedupIndex = "attendance_logs_dedup_idx"

// AttendanceRepository stores attendance events.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// HasRecentAttendance reports an event for the student at or after since.
// An empty classID matches events of any class.
func (r *AttendanceRepository) HasRecentAttendance(ctx context.Context, studentID, classID string, since time.Time) (bool, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, recentAttendanceQuery, studentID, classID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent attendance: %w", classifyError(err))
	}
	return exists, nil
}

const recentAttendanceQuery = `
	SELECT EXISTS(
		SELECT 1 FROM attendance_logs
		WHERE student_id = $1
		  AND ($2 = '' OR class_key = $2)
		  AND marked_at >= $3
	)`

// dedupBucket is the window slot the event falls into; the unique index on it
// backs up the conditional insert.
func dedupBucket(t time.Time, window time.Duration) int64 {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return t.Unix() / secs
}

// InsertAttendance inserts the event unless one for the same student (and class)
// exists within window. The check and the insert run under a per-student
// advisory lock so concurrent recognitions cannot both succeed.
func (r *AttendanceRepository) InsertAttendance(ctx context.Context, event *database.AttendanceEvent, window time.Duration) error {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	if event.MarkedAt.IsZero() {
		event.MarkedAt = time.Now()
	}
	method := event.Method
	if method == "" {
		method = database.MethodFaceRecognition
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", event.StudentID); err != nil {
		return fmt.Errorf("lock student attendance: %w", classifyError(err))
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, recentAttendanceQuery,
		event.StudentID, event.ClassID, event.MarkedAt.Add(-window)).Scan(&exists); err != nil {
		return fmt.Errorf("check recent attendance: %w", classifyError(err))
	}
	if exists {
		return fmt.Errorf("student %s: %w", event.StudentID, database.ErrAlreadyMarked)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_logs (id, student_id, profile_id, class_id, confidence_score, camera_id,
		                             frame_ref, verified, method, dedup_bucket, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, event.ID, event.StudentID, nullString(event.ProfileID), nullString(event.ClassID), event.Confidence,
		event.CameraID, nullString(event.FrameRef), event.Verified, method,
		dedupBucket(event.MarkedAt, window), event.MarkedAt)
	if err != nil {
		if isUniqueViolation(err, attendanceDedupIndex) {
			return fmt.Errorf("student %s: %w", event.StudentID, database.ErrAlreadyMarked)
		}
		return fmt.Errorf("insert attendance: %w", classifyError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance: %w", classifyError(err))
	}
	event.Method = method
	return nil
}

// ListAttendance returns events matching the filter, newest first.
func (r *AttendanceRepository) ListAttendance(ctx context.Context, f database.AttendanceFilter) ([]database.AttendanceEvent, error) {
	qb := psql.Select("id", "student_id", "profile_id", "class_id", "confidence_score", "camera_id",
		"frame_ref", "verified", "method", "marked_at").
		From("attendance_logs").
		OrderBy("marked_at DESC")

	if f.StudentID != "" {
		qb = qb.Where(sq.Eq{"student_id": f.StudentID})
	}
	if f.ClassID != "" {
		qb = qb.Where(sq.Eq{"class_id": f.ClassID})
	}
	if f.CameraID != "" {
		qb = qb.Where(sq.Eq{"camera_id": f.CameraID})
	}
	if !f.Since.IsZero() {
		qb = qb.Where(sq.GtOrEq{"marked_at": f.Since})
	}
	if !f.Until.IsZero() {
		qb = qb.Where(sq.Lt{"marked_at": f.Until})
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ListAttendance: %w", err)
	}

	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []database.AttendanceEvent
	for rows.Next() {
		var (
			ev                         database.AttendanceEvent
			profileID, classID, frames sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.StudentID, &profileID, &classID, &ev.Confidence, &ev.CameraID,
			&frames, &ev.Verified, &ev.Method, &ev.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		ev.ProfileID = profileID.String
		ev.ClassID = classID.String
		ev.FrameRef = frames.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", classifyError(err))
	}
	return out, nil
}
