package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/matching"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice  = []float32{1, 0, 0, 0}
	bob    = []float32{0, 1, 0, 0}
	nobody = []float32{0, 0, 0, 1}
)

type sample struct {
	success    bool
	confidence float64
}

type fakeStats struct {
	mu      sync.Mutex
	samples []sample
}

func (f *fakeStats) Record(_ context.Context, _ string, success bool, confidence, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sample{success, confidence})
}

func (f *fakeStats) count(success bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.samples {
		if s.success == success {
			n++
		}
	}
	return n
}

type fakeDetector struct {
	resp *embedder.FaceResponse
	err  error
}

func (f *fakeDetector) DetectFaces(context.Context, []byte) (*embedder.FaceResponse, error) {
	return f.resp, f.err
}

func newService(t *testing.T, store *mock.MockStore, det FaceDetector) (*Service, *fakeStats) {
	t.Helper()
	store.AddActive(database.ActiveBiometric{ProfileID: "p-alice", StudentID: "alice", Embedding: alice})
	store.AddActive(database.ActiveBiometric{ProfileID: "p-bob", StudentID: "bob", Embedding: bob})

	st := &fakeStats{}
	matcher := matching.NewEngine(store, matching.Config{Dim: 4, DistanceThreshold: 0.6, TopK: 1}, nil)
	acfg := attendance.DefaultConfig()
	acfg.Location = time.UTC
	marker := attendance.NewEngine(store, store, st, nil, acfg)
	return NewService(matcher, marker, st, det, nil, DefaultConfig()), st
}

func TestRecognize(t *testing.T) {
	store := mock.NewMockStore()
	svc, st := newService(t, store, nil)
	ctx := context.Background()

	res, err := svc.Recognize(ctx, alice, "c1")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, "alice", res.Match.StudentID)
	assert.InDelta(t, 1.0, res.Match.Confidence, 1e-6)

	res, err = svc.Recognize(ctx, nobody, "c1")
	require.NoError(t, err)
	assert.False(t, res.Matched)

	_, err = svc.Recognize(ctx, []float32{1, 2}, "c1")
	assert.ErrorIs(t, err, database.ErrInvalidEmbedding)

	assert.Equal(t, 1, st.count(true))
	assert.Equal(t, 1, st.count(false))
	assert.Empty(t, store.Events())
}

func TestRecognize_StorageFailure(t *testing.T) {
	store := mock.NewMockStore()
	svc, st := newService(t, store, nil)
	store.SearchError = database.ErrStorageUnavailable

	_, err := svc.Recognize(context.Background(), alice, "c1")
	assert.ErrorIs(t, err, database.ErrStorageUnavailable)
	assert.Equal(t, 1, st.count(false))
}

func TestRecognizeAndMark(t *testing.T) {
	store := mock.NewMockStore()
	svc, st := newService(t, store, nil)
	ctx := context.Background()

	res, err := svc.RecognizeAndMark(ctx, alice, "c1", "")
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.NotNil(t, res.Attendance)
	assert.Equal(t, attendance.StatusSuccess, res.Attendance.Status)

	res, err = svc.RecognizeAndMark(ctx, alice, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusSkipped, res.Attendance.Status)

	res, err = svc.RecognizeAndMark(ctx, nobody, "c1", "")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Nil(t, res.Attendance)

	assert.Len(t, store.Events(), 1)
	assert.Equal(t, 2, st.count(true))
	assert.Equal(t, 1, st.count(false))
}

func TestRecognizeAndMark_PersistenceFailure(t *testing.T) {
	store := mock.NewMockStore()
	svc, st := newService(t, store, nil)
	store.InsertAttendanceError = database.ErrStorageUnavailable

	res, err := svc.RecognizeAndMark(context.Background(), alice, "c1", "")
	assert.ErrorIs(t, err, database.ErrStorageUnavailable)
	require.NotNil(t, res)
	assert.True(t, res.Matched)
	assert.Equal(t, 1, st.count(false))
	assert.Equal(t, 0, st.count(true))
}

func TestIdentifyFrame_LargestFace(t *testing.T) {
	store := mock.NewMockStore()
	det := &fakeDetector{resp: &embedder.FaceResponse{Faces: []embedder.Face{
		{FaceIndex: 0, Embedding: alice, BBox: []float64{0, 0, 10, 10}},
		{FaceIndex: 1, Embedding: bob, BBox: []float64{50, 50, 90, 90}},
		{FaceIndex: 2, Embedding: nil, BBox: []float64{0, 0, 500, 500}},
	}}}
	svc, st := newService(t, store, det)

	res, err := svc.IdentifyFrame(context.Background(), []byte("jpeg"), "c1")
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "bob", res.Match.StudentID)
	assert.Nil(t, res.Attendance)
	assert.Empty(t, store.Events())
	assert.Equal(t, 1, st.count(true))
}

func TestIdentifyFrame_Errors(t *testing.T) {
	svc, _ := newService(t, mock.NewMockStore(), nil)
	_, err := svc.IdentifyFrame(context.Background(), []byte("jpeg"), "")
	assert.ErrorIs(t, err, database.ErrConfiguration)

	svc, _ = newService(t, mock.NewMockStore(), &fakeDetector{resp: &embedder.FaceResponse{Faces: []embedder.Face{{Embedding: nil}}}})
	_, err = svc.IdentifyFrame(context.Background(), []byte("jpeg"), "")
	assert.ErrorIs(t, err, database.ErrNoFaceDetected)

	boom := errors.New("embedder down")
	svc, _ = newService(t, mock.NewMockStore(), &fakeDetector{err: boom})
	_, err = svc.IdentifyFrame(context.Background(), []byte("jpeg"), "")
	assert.ErrorIs(t, err, boom)
}

func TestDetect(t *testing.T) {
	det := &fakeDetector{resp: &embedder.FaceResponse{Faces: []embedder.Face{
		{FaceIndex: 0, Embedding: alice, BBox: []float64{0, 0, 10, 10}, DetScore: 0.7},
		{FaceIndex: 1, Embedding: alice, BBox: []float64{1, 0, 11, 10}, DetScore: 0.9},
		{FaceIndex: 2, Embedding: bob, BBox: []float64{100, 0, 110, 10}, DetScore: 0.8},
	}}}
	store := mock.NewMockStore()
	svc, st := newService(t, store, det)

	faces, err := svc.Detect(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Equal(t, 1, faces[0].FaceIndex)
	assert.Equal(t, 2, faces[1].FaceIndex)
	assert.Empty(t, store.Events())
	assert.Empty(t, st.samples)

	svc, _ = newService(t, mock.NewMockStore(), nil)
	_, err = svc.Detect(context.Background(), []byte("jpeg"))
	assert.ErrorIs(t, err, database.ErrConfiguration)
}

func TestScanFrame(t *testing.T) {
	store := mock.NewMockStore()
	det := &fakeDetector{resp: &embedder.FaceResponse{Faces: []embedder.Face{
		{FaceIndex: 0, Embedding: alice, BBox: []float64{0, 0, 10, 10}, DetScore: 0.9},
		{FaceIndex: 1, Embedding: alice, BBox: []float64{100, 100, 110, 110}, DetScore: 0.8},
		{FaceIndex: 2, Embedding: bob, BBox: []float64{200, 0, 210, 10}, DetScore: 0.95},
		{FaceIndex: 3, Embedding: nobody, BBox: []float64{300, 0, 310, 10}, DetScore: 0.9},
		{FaceIndex: 4, Embedding: bob, BBox: []float64{201, 0, 211, 10}, DetScore: 0.5}, // same face as 2
		{FaceIndex: 5, Embedding: nil},
	}}}
	svc, st := newService(t, store, det)

	res, err := svc.ScanFrame(context.Background(), []byte("jpeg"), "c1", "")
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalFaces)
	assert.Equal(t, 2, res.Identified)
	assert.Equal(t, 1, res.Unknown)
	require.Len(t, res.Students, 2)
	assert.Equal(t, "alice", res.Students[0].StudentID)
	assert.Equal(t, 0, res.Students[0].FaceIndex)
	assert.Equal(t, "bob", res.Students[1].StudentID)

	require.Len(t, res.Attendance, 2)
	for _, r := range res.Attendance {
		assert.Equal(t, attendance.StatusSuccess, r.Status)
	}
	assert.Len(t, store.Events(), 2)
	assert.Equal(t, 2, st.count(true))
	assert.Equal(t, 1, st.count(false))
}

func TestScanFrame_NoFaces(t *testing.T) {
	store := mock.NewMockStore()
	svc, _ := newService(t, store, &fakeDetector{resp: &embedder.FaceResponse{}})

	res, err := svc.ScanFrame(context.Background(), []byte("jpeg"), "", "")
	require.NoError(t, err)
	assert.Zero(t, res.TotalFaces)
	assert.Empty(t, res.Students)
}

func TestScanFrame_Errors(t *testing.T) {
	store := mock.NewMockStore()
	svc, _ := newService(t, store, nil)
	_, err := svc.ScanFrame(context.Background(), []byte("jpeg"), "", "")
	assert.ErrorIs(t, err, database.ErrConfiguration)

	boom := errors.New("embedder down")
	svc, _ = newService(t, mock.NewMockStore(), &fakeDetector{err: boom})
	_, err = svc.ScanFrame(context.Background(), []byte("jpeg"), "", "")
	assert.ErrorIs(t, err, boom)

	store = mock.NewMockStore()
	svc, _ = newService(t, store, &fakeDetector{resp: &embedder.FaceResponse{Faces: []embedder.Face{
		{Embedding: alice, BBox: []float64{0, 0, 10, 10}},
	}}})
	store.SearchError = database.ErrStorageUnavailable
	_, err = svc.ScanFrame(context.Background(), []byte("jpeg"), "", "")
	assert.ErrorIs(t, err, database.ErrStorageUnavailable)
}
