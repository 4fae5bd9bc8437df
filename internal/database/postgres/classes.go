package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var _ database.ClassStore = (*ClassRepository)(nil)

// ClassRepository stores class schedules and enrollments.
// Schedules are kept as JSONB in the {"monday": ["09:00-10:30"]} form.
type ClassRepository struct {
	pool *Pool
}

// NewClassRepository creates a new PostgreSQL class repository.
func NewClassRepository(pool *Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

// IsEnrolled reports whether the student belongs to the class.
func (r *ClassRepository) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM class_enrollments WHERE class_id = $1 AND student_id = $2)",
		classID, studentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", classifyError(err))
	}
	return exists, nil
}

// GetClassSchedule returns the schedule, or nil if the class is unknown.
func (r *ClassRepository) GetClassSchedule(ctx context.Context, classID string) (*database.ClassSchedule, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	var (
		c   database.ClassSchedule
		raw []byte
	)
	err := r.pool.QueryRow(ctx,
		"SELECT class_id, name, schedule FROM classes WHERE class_id = $1", classID,
	).Scan(&c.ClassID, &c.Name, &raw)
	if errNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get class schedule: %w", classifyError(err))
	}

	var days map[string][]string
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, fmt.Errorf("decode schedule of %s: %w", classID, err)
	}
	slots, err := database.ScheduleFromStrings(days)
	if err != nil {
		return nil, fmt.Errorf("parse schedule of %s: %w", classID, err)
	}
	c.Slots = slots
	return &c, nil
}

// SaveClass upserts the class and replaces its schedule.
func (r *ClassRepository) SaveClass(ctx context.Context, class database.ClassSchedule) error {
	raw, err := json.Marshal(database.ScheduleToStrings(class.Slots))
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	_, err = r.pool.Exec(ctx, `
		INSERT INTO classes (class_id, name, schedule)
		VALUES ($1, $2, $3)
		ON CONFLICT (class_id) DO UPDATE SET
			name = EXCLUDED.name,
			schedule = EXCLUDED.schedule,
			updated_at = NOW()
	`, class.ClassID, class.Name, raw)
	if err != nil {
		return fmt.Errorf("save class: %w", err)
	}
	return nil
}

// EnrollStudent adds the student to the class.
func (r *ClassRepository) EnrollStudent(ctx context.Context, classID, studentID string) error {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO class_enrollments (class_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, classID, studentID)
	if err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}
