package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/pgvector/pgvector-go"
)

var (
	_ database.BiometricWriter = (*BiometricRepository)(nil)
	_ database.HNSWRebuilder   = (*BiometricRepository)(nil)
)

// BiometricRepository provides PostgreSQL-backed profile and embedding storage
// with an optional in-memory HNSW index over the active set.
type BiometricRepository struct {
	pool        *Pool
	hnswIndex   *database.HNSWIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

// NewBiometricRepository creates a new PostgreSQL biometric repository.
func NewBiometricRepository(pool *Pool) *BiometricRepository {
	return &BiometricRepository{pool: pool}
}

// FindProfile returns the profile, or nil if not found.
func (r *BiometricRepository) FindProfile(ctx context.Context, profileID string) (*database.Profile, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	var p database.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT profile_id, student_id, full_name, role, face_enrolled, is_active, created_at
		FROM profiles
		WHERE profile_id = $1
	`, profileID).Scan(&p.ProfileID, &p.StudentID, &p.FullName, &p.Role, &p.FaceEnrolled, &p.IsActive, &p.CreatedAt)
	if errNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", classifyError(err))
	}
	return &p, nil
}

// CreateProfile inserts the profile unless it already exists.
func (r *BiometricRepository) CreateProfile(ctx context.Context, profile database.Profile) (bool, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	role := profile.Role
	if role == "" {
		role = database.DefaultRole
	}
	res, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (profile_id, student_id, full_name, role, face_enrolled, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (profile_id) DO NOTHING
	`, profile.ProfileID, profile.StudentID, profile.FullName, role, profile.FaceEnrolled, profile.IsActive)
	if err != nil {
		return false, fmt.Errorf("create profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create profile rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateProfileFlags applies a partial update of the profile flags.
func (r *BiometricRepository) UpdateProfileFlags(ctx context.Context, profileID string, flags database.ProfileFlags) error {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	res, err := r.pool.Exec(ctx, `
		UPDATE profiles
		SET face_enrolled = COALESCE($2, face_enrolled),
		    is_active = COALESCE($3, is_active),
		    updated_at = NOW()
		WHERE profile_id = $1
	`, profileID, nullBool(flags.FaceEnrolled), nullBool(flags.IsActive))
	if err != nil {
		return fmt.Errorf("update profile flags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile flags rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("profile %s: %w", profileID, database.ErrNotFound)
	}
	return nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const pendingColumns = `pending_id, profile_id, student_id, full_name, embedding,
	selfie_ref, status, reject_reason, created_at, decided_at`

func scanPending(scanner interface{ Scan(...any) error }) (database.PendingBiometric, error) {
	var (
		p         database.PendingBiometric
		vec       pgvector.Vector
		selfieRef sql.NullString
		status    string
		reason    sql.NullString
		decidedAt sql.NullTime
	)
	if err := scanner.Scan(&p.PendingID, &p.ProfileID, &p.StudentID, &p.FullName, &vec,
		&selfieRef, &status, &reason, &p.CreatedAt, &decidedAt); err != nil {
		return p, err
	}
	p.Embedding = vec.Slice()
	p.SelfieRef = selfieRef.String
	p.Status = database.PendingStatus(status)
	p.RejectReason = reason.String
	if decidedAt.Valid {
		t := decidedAt.Time
		p.DecidedAt = &t
	}
	return p, nil
}

// GetPending returns a submission, or nil if not found.
func (r *BiometricRepository) GetPending(ctx context.Context, pendingID string) (*database.PendingBiometric, error) {
	if _, err := uuid.Parse(pendingID); err != nil {
		return nil, nil
	}
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	p, err := scanPending(r.pool.QueryRow(ctx,
		`SELECT `+pendingColumns+` FROM pending_approvals WHERE pending_id = $1`, pendingID))
	if errNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending: %w", classifyError(err))
	}
	return &p, nil
}

// ListPending returns submissions with the given status, oldest first.
func (r *BiometricRepository) ListPending(ctx context.Context, status database.PendingStatus, limit int) ([]database.PendingBiometric, error) {
	if limit <= 0 {
		limit = database.ListPendingDefaultLimit
	}
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+pendingColumns+`
		FROM pending_approvals
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []database.PendingBiometric
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", classifyError(err))
	}
	return out, nil
}

// InsertPending stores a new submission.
func (r *BiometricRepository) InsertPending(ctx context.Context, pending *database.PendingBiometric) error {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	status := pending.Status
	if status == "" {
		status = database.StatusPending
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO pending_approvals (pending_id, profile_id, student_id, full_name, embedding, selfie_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, pending.PendingID, pending.ProfileID, pending.StudentID, pending.FullName,
		pgvector.NewVector(pending.Embedding), nullString(pending.SelfieRef), string(status),
	).Scan(&pending.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pending: %w", classifyError(err))
	}
	pending.Status = status
	return nil
}

// lockPending reads the submission status under a row lock inside tx.
func lockPending(ctx context.Context, tx *sql.Tx, pendingID string) (database.PendingBiometric, error) {
	p, err := scanPending(tx.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_approvals WHERE pending_id = $1 FOR UPDATE`, pendingID))
	if errNoRows(err) {
		return p, fmt.Errorf("pending %s: %w", pendingID, database.ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("lock pending: %w", classifyError(err))
	}
	return p, nil
}

// UpdatePendingStatus moves a submission between statuses.
func (r *BiometricRepository) UpdatePendingStatus(ctx context.Context, pendingID string, from, to database.PendingStatus, reason string) error {
	if _, err := uuid.Parse(pendingID); err != nil {
		return fmt.Errorf("pending %s: %w", pendingID, database.ErrNotFound)
	}
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	p, err := lockPending(ctx, tx, pendingID)
	if err != nil {
		return err
	}
	if p.Status != from {
		return fmt.Errorf("pending %s is %s: %w", pendingID, p.Status, database.ErrAlreadyDecided)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE pending_approvals
		SET status = $2, reject_reason = $3, decided_at = NOW()
		WHERE pending_id = $1
	`, pendingID, string(to), nullString(reason)); err != nil {
		return fmt.Errorf("update pending status: %w", classifyError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pending status: %w", classifyError(err))
	}
	return nil
}

// InsertActive stores an active row directly.
func (r *BiometricRepository) InsertActive(ctx context.Context, active *database.ActiveBiometric) error {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO active_embeddings (profile_id, student_id, embedding, pending_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, active.ProfileID, active.StudentID, pgvector.NewVector(active.Embedding), nullString(active.PendingID),
	).Scan(&active.ID, &active.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert active: %w", classifyError(err))
	}
	r.addToIndex(active)
	return nil
}

// PromotePending inserts the active row, activates the profile and approves the
// submission in one transaction.
func (r *BiometricRepository) PromotePending(ctx context.Context, pendingID string) (*database.ActiveBiometric, error) {
	if _, err := uuid.Parse(pendingID); err != nil {
		return nil, fmt.Errorf("pending %s: %w", pendingID, database.ErrNotFound)
	}
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	p, err := lockPending(ctx, tx, pendingID)
	if err != nil {
		return nil, err
	}
	if p.Status != database.StatusPending {
		return nil, fmt.Errorf("pending %s is %s: %w", pendingID, p.Status, database.ErrAlreadyDecided)
	}

	active := &database.ActiveBiometric{
		ProfileID: p.ProfileID,
		StudentID: p.StudentID,
		Embedding: p.Embedding,
		PendingID: p.PendingID,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO active_embeddings (profile_id, student_id, embedding, pending_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, active.ProfileID, active.StudentID, pgvector.NewVector(active.Embedding), active.PendingID,
	).Scan(&active.ID, &active.CreatedAt); err != nil {
		if isUniqueViolation(err, "active_embeddings_pending_id_key") {
			return nil, fmt.Errorf("pending %s: %w", pendingID, database.ErrAlreadyDecided)
		}
		return nil, fmt.Errorf("insert active: %w", classifyError(err))
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE profiles SET is_active = TRUE, updated_at = NOW() WHERE profile_id = $1`, p.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("activate profile: %w", classifyError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("profile %s: %w", p.ProfileID, database.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE pending_approvals SET status = 'approved', decided_at = NOW() WHERE pending_id = $1
	`, pendingID); err != nil {
		return nil, fmt.Errorf("approve pending: %w", classifyError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit promotion: %w", classifyError(err))
	}

	r.addToIndex(active)
	return active, nil
}

func scanActive(scanner interface{ Scan(...any) error }, extraDest ...any) (database.ActiveBiometric, error) {
	var (
		a         database.ActiveBiometric
		vec       pgvector.Vector
		pendingID sql.NullString
	)
	dest := append([]any{&a.ID, &a.ProfileID, &a.StudentID, &vec, &pendingID, &a.CreatedAt}, extraDest...)
	if err := scanner.Scan(dest...); err != nil {
		return a, err
	}
	a.Embedding = vec.Slice()
	a.PendingID = pendingID.String
	return a, nil
}

// ListActive returns every active row.
func (r *BiometricRepository) ListActive(ctx context.Context) ([]database.ActiveBiometric, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id, profile_id, student_id, embedding, pending_id::text, created_at
		FROM active_embeddings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	defer rows.Close()

	var out []database.ActiveBiometric
	for rows.Next() {
		a, err := scanActive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active: %w", classifyError(err))
	}
	return out, nil
}

// CountActive returns the number of active rows.
func (r *BiometricRepository) CountActive(ctx context.Context) (int, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM active_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count active: %w", classifyError(err))
	}
	return count, nil
}

// SimilaritySearch finds active rows within the similarity cutoff.
func (r *BiometricRepository) SimilaritySearch(
	ctx context.Context, query []float32, minSimilarity float64, limit int,
) ([]database.SimilarityMatch, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}

	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled && index != nil
	r.hnswMu.RUnlock()

	if enabled {
		return index.Search(query, minSimilarity, limit), nil
	}
	return r.similaritySearchPostgres(ctx, query, minSimilarity, limit)
}

func (r *BiometricRepository) similaritySearchPostgres(
	ctx context.Context, query []float32, minSimilarity float64, limit int,
) ([]database.SimilarityMatch, error) {
	ctx, cancel := r.pool.withTimeout(ctx)
	defer cancel()

	maxDistance := 1 - minSimilarity
	rows, err := r.pool.Query(ctx, `
		SELECT id, profile_id, student_id, embedding, pending_id::text, created_at,
		       embedding <=> $1::vector AS distance
		FROM active_embeddings
		WHERE vector_dims(embedding) = $4
		  AND embedding <=> $1::vector <= $2
		ORDER BY distance, created_at DESC, id DESC
		LIMIT $3
	`, pgvector.NewVector(query), maxDistance, limit, len(query))
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var out []database.SimilarityMatch
	for rows.Next() {
		var distance float64
		a, err := scanActive(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, database.SimilarityMatch{Biometric: a, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", classifyError(err))
	}
	return out, nil
}

func (r *BiometricRepository) addToIndex(row *database.ActiveBiometric) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Add(row)
	}
}

// EnableHNSW builds the in-memory index from the active set and routes searches through it.
func (r *BiometricRepository) EnableHNSW(ctx context.Context) error {
	start := time.Now()
	rows, err := r.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("load active rows for HNSW: %w", err)
	}

	index := database.NewHNSWIndex()
	index.Build(rows)

	r.hnswMu.Lock()
	r.hnswIndex = index
	r.hnswEnabled = true
	r.hnswMu.Unlock()

	logging.Component("postgres").WithFields(logging.Fields{
		"rows":     index.Count(),
		"duration": time.Since(start).String(),
	}).Info("HNSW index built")
	return nil
}

// DisableHNSW drops the index; searches go back to pgvector.
func (r *BiometricRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether HNSW is enabled.
func (r *BiometricRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// HNSWCount returns the number of rows in the HNSW index.
func (r *BiometricRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the index from the datastore.
func (r *BiometricRepository) RebuildHNSW(ctx context.Context) error {
	return r.EnableHNSW(ctx)
}
