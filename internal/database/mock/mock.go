// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

var (
	_ database.BiometricWriter = (*MockStore)(nil)
	_ database.AttendanceStore = (*MockStore)(nil)
	_ database.ClassStore      = (*MockStore)(nil)
	_ database.StatsStore      = (*MockStore)(nil)
)

// MockStore is an in-memory implementation of every store interface.
// All checks that the datastore enforces (unique promotion, dedup window)
// run under the same mutex so concurrent callers see the same guarantees.
type MockStore struct {
	mu sync.RWMutex

	profiles   map[string]*database.Profile
	pending    map[string]*database.PendingBiometric
	active     []database.ActiveBiometric
	nextID     int64
	events     []database.AttendanceEvent
	classes    map[string]*database.ClassSchedule
	enrollment map[string]map[string]bool // class -> student -> enrolled
	stats      map[string]*database.RecognitionStat

	// Now is used for CreatedAt values. Defaults to time.Now.
	Now func() time.Time

	// Error injection
	FindProfileError      error
	CreateProfileError    error
	UpdateProfileError    error
	GetPendingError       error
	ListPendingError      error
	InsertPendingError    error
	UpdatePendingError    error
	PromoteError          error
	ListActiveError       error
	SearchError           error
	HasRecentError        error
	InsertAttendanceError error
	ListAttendanceError   error
	IsEnrolledError       error
	ScheduleError         error
	SaveClassError        error
	RecordStatError       error
	GetStatError          error

	// Call counters
	ScheduleCalls   int
	IsEnrolledCalls int
}

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		profiles:   make(map[string]*database.Profile),
		pending:    make(map[string]*database.PendingBiometric),
		classes:    make(map[string]*database.ClassSchedule),
		enrollment: make(map[string]map[string]bool),
		stats:      make(map[string]*database.RecognitionStat),
		Now:        time.Now,
	}
}

// NewBackend wraps the store into a database.Backend.
func NewBackend(m *MockStore) *database.Backend {
	return database.NewBackend(m, m, m, m, nil)
}

// --- profiles and biometrics ---

// AddProfile seeds a profile.
func (m *MockStore) AddProfile(p database.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ProfileID] = &p
}

// AddActive seeds an active row and returns its id.
func (m *MockStore) AddActive(a database.ActiveBiometric) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.Now()
	}
	m.active = append(m.active, a)
	return a.ID
}

// FindProfile returns the profile or nil.
func (m *MockStore) FindProfile(ctx context.Context, profileID string) (*database.Profile, error) {
	if m.FindProfileError != nil {
		return nil, m.FindProfileError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[profileID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// CreateProfile inserts the profile if absent.
func (m *MockStore) CreateProfile(ctx context.Context, profile database.Profile) (bool, error) {
	if m.CreateProfileError != nil {
		return false, m.CreateProfileError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.ProfileID]; ok {
		return false, nil
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = m.Now()
	}
	m.profiles[profile.ProfileID] = &profile
	return true, nil
}

// UpdateProfileFlags applies a partial update.
func (m *MockStore) UpdateProfileFlags(ctx context.Context, profileID string, flags database.ProfileFlags) error {
	if m.UpdateProfileError != nil {
		return m.UpdateProfileError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profileID]
	if !ok {
		return fmt.Errorf("profile %s: %w", profileID, database.ErrNotFound)
	}
	if flags.FaceEnrolled != nil {
		p.FaceEnrolled = *flags.FaceEnrolled
	}
	if flags.IsActive != nil {
		p.IsActive = *flags.IsActive
	}
	return nil
}

// GetPending returns a submission or nil.
func (m *MockStore) GetPending(ctx context.Context, pendingID string) (*database.PendingBiometric, error) {
	if m.GetPendingError != nil {
		return nil, m.GetPendingError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pending[pendingID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// ListPending returns submissions with the status, oldest first.
func (m *MockStore) ListPending(ctx context.Context, status database.PendingStatus, limit int) ([]database.PendingBiometric, error) {
	if m.ListPendingError != nil {
		return nil, m.ListPendingError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.PendingBiometric
	for _, p := range m.pending {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertPending stores a submission.
func (m *MockStore) InsertPending(ctx context.Context, pending *database.PendingBiometric) error {
	if m.InsertPendingError != nil {
		return m.InsertPendingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[pending.ProfileID]; !ok {
		return fmt.Errorf("profile %s: %w", pending.ProfileID, database.ErrNotFound)
	}
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = m.Now()
	}
	cp := *pending
	m.pending[pending.PendingID] = &cp
	return nil
}

func (m *MockStore) transitionLocked(pendingID string, from, to database.PendingStatus, reason string) (*database.PendingBiometric, error) {
	p, ok := m.pending[pendingID]
	if !ok {
		return nil, fmt.Errorf("pending %s: %w", pendingID, database.ErrNotFound)
	}
	if p.Status != from {
		return nil, fmt.Errorf("pending %s is %s: %w", pendingID, p.Status, database.ErrAlreadyDecided)
	}
	now := m.Now()
	p.Status = to
	p.RejectReason = reason
	p.DecidedAt = &now
	return p, nil
}

// UpdatePendingStatus moves a submission between statuses.
func (m *MockStore) UpdatePendingStatus(ctx context.Context, pendingID string, from, to database.PendingStatus, reason string) error {
	if m.UpdatePendingError != nil {
		return m.UpdatePendingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.transitionLocked(pendingID, from, to, reason)
	return err
}

// InsertActive stores an active row.
func (m *MockStore) InsertActive(ctx context.Context, active *database.ActiveBiometric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active.PendingID != "" {
		for i := range m.active {
			if m.active[i].PendingID == active.PendingID {
				return fmt.Errorf("active row for pending %s already exists", active.PendingID)
			}
		}
	}
	m.nextID++
	active.ID = m.nextID
	active.CreatedAt = m.Now()
	m.active = append(m.active, *active)
	return nil
}

// PromotePending approves a submission atomically. PromoteError leaves the store untouched.
func (m *MockStore) PromotePending(ctx context.Context, pendingID string) (*database.ActiveBiometric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[pendingID]
	if !ok {
		return nil, fmt.Errorf("pending %s: %w", pendingID, database.ErrNotFound)
	}
	if p.Status != database.StatusPending {
		return nil, fmt.Errorf("pending %s is %s: %w", pendingID, p.Status, database.ErrAlreadyDecided)
	}
	profile, ok := m.profiles[p.ProfileID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", p.ProfileID, database.ErrNotFound)
	}
	if m.PromoteError != nil {
		return nil, m.PromoteError
	}

	if _, err := m.transitionLocked(pendingID, database.StatusPending, database.StatusApproved, ""); err != nil {
		return nil, err
	}
	m.nextID++
	row := database.ActiveBiometric{
		ID:        m.nextID,
		ProfileID: p.ProfileID,
		StudentID: p.StudentID,
		Embedding: append([]float32(nil), p.Embedding...),
		PendingID: p.PendingID,
		CreatedAt: m.Now(),
	}
	m.active = append(m.active, row)
	profile.IsActive = true
	return &row, nil
}

// ListActive returns a copy of every active row.
func (m *MockStore) ListActive(ctx context.Context) ([]database.ActiveBiometric, error) {
	if m.ListActiveError != nil {
		return nil, m.ListActiveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.ActiveBiometric(nil), m.active...), nil
}

// CountActive returns the number of active rows.
func (m *MockStore) CountActive(ctx context.Context) (int, error) {
	if m.ListActiveError != nil {
		return 0, m.ListActiveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active), nil
}

// SimilaritySearch runs a brute force scan.
func (m *MockStore) SimilaritySearch(ctx context.Context, query []float32, minSimilarity float64, limit int) ([]database.SimilarityMatch, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("similarity search: %w", database.ErrStorageUnavailable)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return database.BruteForceSearch(m.active, query, minSimilarity, limit), nil
}

// --- attendance ---

func (m *MockStore) recentLocked(studentID, classID string, since time.Time) bool {
	for i := range m.events {
		ev := &m.events[i]
		if ev.StudentID != studentID {
			continue
		}
		if classID != "" && ev.ClassID != classID {
			continue
		}
		if !ev.MarkedAt.Before(since) {
			return true
		}
	}
	return false
}

// HasRecentAttendance reports an event at or after since.
func (m *MockStore) HasRecentAttendance(ctx context.Context, studentID, classID string, since time.Time) (bool, error) {
	if m.HasRecentError != nil {
		return false, m.HasRecentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentLocked(studentID, classID, since), nil
}

// InsertAttendance inserts unless a recent event exists.
func (m *MockStore) InsertAttendance(ctx context.Context, event *database.AttendanceEvent, window time.Duration) error {
	if m.InsertAttendanceError != nil {
		return m.InsertAttendanceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recentLocked(event.StudentID, event.ClassID, event.MarkedAt.Add(-window)) {
		return fmt.Errorf("student %s: %w", event.StudentID, database.ErrAlreadyMarked)
	}
	m.events = append(m.events, *event)
	return nil
}

// AddEvent seeds an attendance event without dedup checks.
func (m *MockStore) AddEvent(ev database.AttendanceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of all stored events.
func (m *MockStore) Events() []database.AttendanceEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.AttendanceEvent(nil), m.events...)
}

// ListAttendance filters events, newest first.
func (m *MockStore) ListAttendance(ctx context.Context, f database.AttendanceFilter) ([]database.AttendanceEvent, error) {
	if m.ListAttendanceError != nil {
		return nil, m.ListAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceEvent
	for _, ev := range m.events {
		if f.StudentID != "" && ev.StudentID != f.StudentID {
			continue
		}
		if f.ClassID != "" && ev.ClassID != f.ClassID {
			continue
		}
		if f.CameraID != "" && ev.CameraID != f.CameraID {
			continue
		}
		if !f.Since.IsZero() && ev.MarkedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !ev.MarkedAt.Before(f.Until) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.After(out[j].MarkedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// --- classes ---

// IsEnrolled reports class membership.
func (m *MockStore) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	m.mu.Lock()
	m.IsEnrolledCalls++
	m.mu.Unlock()
	if m.IsEnrolledError != nil {
		return false, m.IsEnrolledError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrollment[classID][studentID], nil
}

// GetClassSchedule returns the schedule or nil.
func (m *MockStore) GetClassSchedule(ctx context.Context, classID string) (*database.ClassSchedule, error) {
	m.mu.Lock()
	m.ScheduleCalls++
	m.mu.Unlock()
	if m.ScheduleError != nil {
		return nil, m.ScheduleError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[classID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// SaveClass upserts a class.
func (m *MockStore) SaveClass(ctx context.Context, class database.ClassSchedule) error {
	if m.SaveClassError != nil {
		return m.SaveClassError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class.ClassID] = &class
	return nil
}

// EnrollStudent adds class membership.
func (m *MockStore) EnrollStudent(ctx context.Context, classID, studentID string) error {
	if m.SaveClassError != nil {
		return m.SaveClassError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enrollment[classID] == nil {
		m.enrollment[classID] = make(map[string]bool)
	}
	m.enrollment[classID][studentID] = true
	return nil
}

// --- stats ---

func statKey(date, cameraID string) string {
	return date + "|" + cameraID
}

// RecordStat folds a sample into the row.
func (m *MockStore) RecordStat(ctx context.Context, date, cameraID string, sample database.StatSample) (*database.RecognitionStat, error) {
	if m.RecordStatError != nil {
		return nil, m.RecordStatError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := statKey(date, cameraID)
	s, ok := m.stats[key]
	if !ok {
		seeded := database.NewRecognitionStat(date, cameraID, sample)
		m.stats[key] = &seeded
		cp := seeded
		return &cp, nil
	}
	s.Apply(sample)
	cp := *s
	return &cp, nil
}

// GetStat returns the row or nil.
func (m *MockStore) GetStat(ctx context.Context, date, cameraID string) (*database.RecognitionStat, error) {
	if m.GetStatError != nil {
		return nil, m.GetStatError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[statKey(date, cameraID)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}
