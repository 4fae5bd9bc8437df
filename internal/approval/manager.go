// Package approval runs the enrollment lifecycle: submissions wait as pending
// until an operator approves (promotes to the active set) or rejects them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/selfies"
	"github.com/sirupsen/logrus"
)

// filterScanLimit bounds how many rows a name-filtered listing inspects.
const filterScanLimit = 1000

// Submission is an enrollment request.
type Submission struct {
	ProfileID string
	StudentID string
	FullName  string
	Role      string
	Embedding []float32
	Selfie    []byte // optional image bytes
}

// Manager owns profile, pending and active writes for enrollment.
type Manager struct {
	repo    database.BiometricWriter
	selfies selfies.Store
	dim     int
	log     *logrus.Entry
}

// NewManager creates a manager. store may be nil when selfies are not kept.
func NewManager(repo database.BiometricWriter, store selfies.Store, dim int) *Manager {
	return &Manager{
		repo:    repo,
		selfies: store,
		dim:     dim,
		log:     logging.Component("approval"),
	}
}

// Submit validates the embedding, makes sure the profile exists, stores the
// selfie and records a pending submission. Returns the pending id.
func (m *Manager) Submit(ctx context.Context, sub Submission) (string, error) {
	sub.ProfileID = strings.TrimSpace(sub.ProfileID)
	sub.StudentID = strings.TrimSpace(sub.StudentID)
	if sub.ProfileID == "" || sub.StudentID == "" {
		return "", fmt.Errorf("%w: profile_id and student_id are required", database.ErrInvalidInput)
	}
	if len(sub.Embedding) == 0 {
		return "", database.ErrNoFaceDetected
	}
	if err := database.ValidateEmbedding(sub.Embedding, m.dim); err != nil {
		return "", err
	}

	role := sub.Role
	if role == "" {
		role = database.DefaultRole
	}
	created, err := m.repo.CreateProfile(ctx, database.Profile{
		ProfileID: sub.ProfileID,
		StudentID: sub.StudentID,
		FullName:  strings.TrimSpace(sub.FullName),
		Role:      role,
	})
	if err != nil {
		return "", fmt.Errorf("ensure profile: %w", err)
	}
	if created {
		m.log.WithField("profile_id", sub.ProfileID).Info("created missing profile")
	}

	selfieRef, err := m.storeSelfie(ctx, sub)
	if err != nil {
		return "", err
	}

	pending := &database.PendingBiometric{
		PendingID: uuid.New().String(),
		ProfileID: sub.ProfileID,
		StudentID: sub.StudentID,
		FullName:  strings.TrimSpace(sub.FullName),
		Embedding: sub.Embedding,
		SelfieRef: selfieRef,
		Status:    database.StatusPending,
	}
	if err := m.repo.InsertPending(ctx, pending); err != nil {
		m.dropSelfie(ctx, selfieRef)
		return "", fmt.Errorf("insert pending: %w", err)
	}

	enrolled := true
	if err := m.repo.UpdateProfileFlags(ctx, sub.ProfileID, database.ProfileFlags{FaceEnrolled: &enrolled}); err != nil {
		return "", fmt.Errorf("mark profile enrolled: %w", err)
	}

	m.log.WithFields(logging.Fields{
		"pending_id": pending.PendingID,
		"student_id": sub.StudentID,
	}).Info("enrollment submitted")
	return pending.PendingID, nil
}

func (m *Manager) storeSelfie(ctx context.Context, sub Submission) (string, error) {
	if len(sub.Selfie) == 0 {
		return "", nil
	}
	if m.selfies == nil {
		m.log.WithField("student_id", sub.StudentID).Warn("selfie storage not configured, selfie dropped")
		return "", nil
	}

	ref, err := m.selfies.Put(ctx, sub.StudentID, sub.Selfie)
	switch {
	case err == nil:
		return ref, nil
	case errors.Is(err, selfies.ErrNotConfigured):
		m.log.WithField("student_id", sub.StudentID).Warn("selfie storage not configured, selfie dropped")
		return "", nil
	case errors.Is(err, selfies.ErrBucketNotFound):
		m.log.WithError(err).Error("selfie bucket missing")
		return "", fmt.Errorf("%w: %w", database.ErrConfiguration, selfies.ErrBucketNotFound)
	default:
		return "", fmt.Errorf("%w: upload selfie: %w", database.ErrStorageUnavailable, err)
	}
}

// dropSelfie removes a stored selfie that no pending row references.
func (m *Manager) dropSelfie(ctx context.Context, ref string) {
	if ref == "" || m.selfies == nil {
		return
	}
	if err := m.selfies.Delete(context.WithoutCancel(ctx), ref); err != nil {
		m.log.WithError(err).WithField("selfie_ref", ref).Warn("failed to remove orphaned selfie")
	}
}

// Approve promotes a pending submission into the active set.
func (m *Manager) Approve(ctx context.Context, pendingID string) (*database.ActiveBiometric, error) {
	if err := m.ensurePending(ctx, pendingID); err != nil {
		return nil, err
	}

	active, err := m.repo.PromotePending(ctx, pendingID)
	if err != nil {
		return nil, fmt.Errorf("approve %s: %w", pendingID, err)
	}

	m.log.WithFields(logging.Fields{
		"pending_id": pendingID,
		"student_id": active.StudentID,
	}).Info("enrollment approved")
	return active, nil
}

// Reject marks a pending submission rejected. Its embedding never becomes active.
func (m *Manager) Reject(ctx context.Context, pendingID, reason string) error {
	if err := m.ensurePending(ctx, pendingID); err != nil {
		return err
	}

	if err := m.repo.UpdatePendingStatus(ctx, pendingID, database.StatusPending, database.StatusRejected, strings.TrimSpace(reason)); err != nil {
		return fmt.Errorf("reject %s: %w", pendingID, err)
	}

	m.log.WithField("pending_id", pendingID).Info("enrollment rejected")
	return nil
}

func (m *Manager) ensurePending(ctx context.Context, pendingID string) error {
	p, err := m.repo.GetPending(ctx, pendingID)
	if err != nil {
		return fmt.Errorf("load pending %s: %w", pendingID, err)
	}
	if p == nil {
		return fmt.Errorf("pending %s: %w", pendingID, database.ErrNotFound)
	}
	if p.Status != database.StatusPending {
		return fmt.Errorf("pending %s is %s: %w", pendingID, p.Status, database.ErrAlreadyDecided)
	}
	return nil
}

// List returns submissions in the given status, oldest first. A non-empty
// nameQuery keeps only submissions whose name or student id matches it,
// ignoring case and diacritics.
func (m *Manager) List(ctx context.Context, status database.PendingStatus, nameQuery string, limit int) ([]database.PendingBiometric, error) {
	if status == "" {
		status = database.StatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", database.ErrInvalidInput, status)
	}
	if nameQuery == "" {
		list, err := m.repo.ListPending(ctx, status, limit)
		if err != nil {
			return nil, fmt.Errorf("list %s submissions: %w", status, err)
		}
		return list, nil
	}

	list, err := m.repo.ListPending(ctx, status, filterScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list %s submissions: %w", status, err)
	}
	var out []database.PendingBiometric
	for _, p := range list {
		if !facematch.NameMatches(nameQuery, p.FullName) && !strings.EqualFold(nameQuery, p.StudentID) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListPending returns submissions still awaiting a decision, oldest first.
func (m *Manager) ListPending(ctx context.Context, limit int) ([]database.PendingBiometric, error) {
	return m.List(ctx, database.StatusPending, "", limit)
}
