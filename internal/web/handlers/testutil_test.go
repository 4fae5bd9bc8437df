package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/approval"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/matching"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/stats"
)

const testDim = 4

var (
	aliceVec = []float32{1, 0, 0, 0}
	bobVec   = []float32{0, 1, 0, 0}
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Embedding: config.EmbeddingConfig{Dim: testDim},
		Matching:  config.MatchingConfig{DistanceThreshold: 0.6, TopK: 1},
		Attendance: config.AttendanceConfig{
			MinConfidence:       0.7,
			AutoVerifyThreshold: 0.85,
			DedupWindow:         time.Hour,
			DefaultCameraID:     "cctv_main",
		},
	}
}

// fakeDetector returns a canned detection response
type fakeDetector struct {
	resp *embedder.FaceResponse
	err  error
}

func (f *fakeDetector) DetectFaces(context.Context, []byte) (*embedder.FaceResponse, error) {
	return f.resp, f.err
}

// testEnv wires every service on top of one mock store
type testEnv struct {
	store       *mock.MockStore
	approval    *approval.Manager
	attendance  *attendance.Engine
	recognition *recognition.Service
	stats       *stats.Aggregator
}

func newTestEnv(t *testing.T, detector recognition.FaceDetector) *testEnv {
	t.Helper()
	store := mock.NewMockStore()
	cfg := testConfig()

	agg := stats.NewAggregator(store, nil, time.UTC)
	acfg := attendance.DefaultConfig()
	acfg.Location = time.UTC
	engine := attendance.NewEngine(store, store, agg, nil, acfg)
	matcher := matching.NewEngine(store, matching.Config{
		Dim:               cfg.Embedding.Dim,
		DistanceThreshold: cfg.Matching.DistanceThreshold,
		TopK:              cfg.Matching.TopK,
	}, nil)

	return &testEnv{
		store:       store,
		approval:    approval.NewManager(store, nil, testDim),
		attendance:  engine,
		recognition: recognition.NewService(matcher, engine, agg, detector, nil, recognition.DefaultConfig()),
		stats:       agg,
	}
}

func (e *testEnv) addStudent(studentID string, emb []float32) {
	e.store.AddProfile(database.Profile{ProfileID: "p-" + studentID, StudentID: studentID, IsActive: true})
	e.store.AddActive(database.ActiveBiometric{ProfileID: "p-" + studentID, StudentID: studentID, Embedding: emb})
}

func approvalSubmission(studentID string) approval.Submission {
	return approval.Submission{
		ProfileID: "p-" + studentID,
		StudentID: studentID,
		FullName:  "Student " + studentID,
		Embedding: []float32{0.1, 0.2, 0.3, 0.4},
	}
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a request with an "image" file and extra form fields
func multipartRequest(t *testing.T, path string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "frame.jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(image)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeResponse unmarshals the recorder body into T
func decodeResponse[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(recorder.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return out
}
