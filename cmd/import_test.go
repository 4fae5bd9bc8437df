package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/approval"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	resp *embedder.FaceResponse
	err  error
}

func (f fakeDetector) DetectFaces(ctx context.Context, imageData []byte) (*embedder.FaceResponse, error) {
	return f.resp, f.err
}

func oneFace() *embedder.FaceResponse {
	return &embedder.FaceResponse{FacesCount: 1, Faces: []embedder.Face{{Embedding: []float32{1, 0, 0, 0}, Dim: 4}}}
}

func rosterEntry(t *testing.T) RosterEntry {
	t.Helper()
	dir := t.TempDir()
	return RosterEntry{
		StudentID: "S001",
		ProfileID: "S001",
		FullName:  "Alice Novak",
		Selfie:    writeFile(t, dir, "alice.jpg", "jpeg-bytes"),
	}
}

func TestImportStudent_Submits(t *testing.T) {
	store := mock.NewMockStore()
	manager := approval.NewManager(store, nil, 4)
	ctx := context.Background()

	id, err := importStudent(ctx, fakeDetector{resp: oneFace()}, manager, rosterEntry(t), false)
	require.NoError(t, err)

	pending, err := store.GetPending(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, database.StatusPending, pending.Status)

	count, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImportStudent_AutoApprove(t *testing.T) {
	store := mock.NewMockStore()
	manager := approval.NewManager(store, nil, 4)
	ctx := context.Background()

	_, err := importStudent(ctx, fakeDetector{resp: oneFace()}, manager, rosterEntry(t), true)
	require.NoError(t, err)

	count, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestImportStudent_Failures(t *testing.T) {
	twoFaces := &embedder.FaceResponse{Faces: []embedder.Face{{Embedding: []float32{1, 0, 0, 0}}, {Embedding: []float32{0, 1, 0, 0}}}}
	boom := errors.New("boom")

	tests := []struct {
		name     string
		detector fakeDetector
		wantErr  error
	}{
		{"no face", fakeDetector{resp: &embedder.FaceResponse{}}, database.ErrNoFaceDetected},
		{"two faces", fakeDetector{resp: twoFaces}, embedder.ErrMultipleFaces},
		{"detector down", fakeDetector{err: boom}, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mock.NewMockStore()
			manager := approval.NewManager(store, nil, 4)

			_, err := importStudent(context.Background(), tt.detector, manager, rosterEntry(t), false)
			require.ErrorIs(t, err, tt.wantErr)

			pending, err := store.ListPending(context.Background(), database.StatusPending, 10)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestImportStudent_MissingSelfie(t *testing.T) {
	manager := approval.NewManager(mock.NewMockStore(), nil, 4)
	e := RosterEntry{StudentID: "S1", ProfileID: "S1", Selfie: filepath.Join(t.TempDir(), "missing.jpg")}

	_, err := importStudent(context.Background(), fakeDetector{resp: oneFace()}, manager, e, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading selfie")
}

func TestImportClasses(t *testing.T) {
	store := mock.NewMockStore()
	ctx := context.Background()

	entries := []ClassEntry{{ClassID: "MATH101", Students: []string{"S001", " ", "S002"}}}
	schedules := []database.ClassSchedule{{
		ClassID: "MATH101",
		Slots:   map[time.Weekday][]database.TimeRange{time.Monday: {{Start: "09:00", End: "10:30"}}},
	}}

	require.NoError(t, importClasses(ctx, store, entries, schedules))

	s, err := store.GetClassSchedule(ctx, "MATH101")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Len(t, s.Slots[time.Monday], 1)

	for _, id := range []string{"S001", "S002"} {
		ok, err := store.IsEnrolled(ctx, id, "MATH101")
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

func TestImportClasses_StoreError(t *testing.T) {
	store := mock.NewMockStore()
	store.SaveClassError = database.ErrStorageUnavailable

	err := importClasses(context.Background(), store,
		[]ClassEntry{{ClassID: "C"}}, []database.ClassSchedule{{ClassID: "C"}})
	require.ErrorIs(t, err, database.ErrStorageUnavailable)
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Student", "Count"}, [][]string{{"S001", "3"}, {"S002"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "Student")
	assert.NotContains(t, out, "STUDENT")
	assert.Contains(t, out, "S001")
	assert.Contains(t, out, "S002")
	assert.Empty(t, renderTable(nil, nil, nil))
}
