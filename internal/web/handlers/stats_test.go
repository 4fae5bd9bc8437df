package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
)

type fakeIndex struct {
	enabled  bool
	count    int
	rebuilds int
	err      error
}

func (f *fakeIndex) RebuildHNSW(context.Context) error {
	f.rebuilds++
	return f.err
}

func (f *fakeIndex) HNSWCount() int { return f.count }

func (f *fakeIndex) IsHNSWEnabled() bool { return f.enabled }

func TestStatsHandler_Get(t *testing.T) {
	env := newTestEnv(t, nil)
	handler := NewStatsHandler(env.stats, env.store, nil)
	ctx := context.Background()

	env.stats.Record(ctx, "c1", true, 0.9, 100)
	env.stats.Record(ctx, "c1", false, 0.0, 50)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats?camera_id=c1", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	resp := decodeResponse[RecognitionStatResponse](t, recorder)
	if resp.TotalRecognitions != 2 || resp.SuccessfulMatches != 1 || resp.FailedMatches != 1 {
		t.Errorf("unexpected counters: %+v", resp)
	}
	if resp.AvgConfidence < 0.4499 || resp.AvgConfidence > 0.4501 {
		t.Errorf("AvgConfidence = %v, want 0.45", resp.AvgConfidence)
	}
}

func TestStatsHandler_GetErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	handler := NewStatsHandler(env.stats, env.store, nil)

	tests := []struct {
		name string
		url  string
		want int
	}{
		{"missing camera", "/api/v1/stats", http.StatusBadRequest},
		{"bad date", "/api/v1/stats?camera_id=c1&date=yesterday", http.StatusBadRequest},
		{"no data", "/api/v1/stats?camera_id=c1&date=2026-01-02", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Get(recorder, httptest.NewRequest(http.MethodGet, tc.url, nil))
			if recorder.Code != tc.want {
				t.Errorf("expected status %d, got %d", tc.want, recorder.Code)
			}
		})
	}
}

func TestStatsHandler_OverviewCached(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addStudent("alice", aliceVec)
	idx := &fakeIndex{enabled: true, count: 1}
	handler := NewStatsHandler(env.stats, env.store, idx)

	recorder := httptest.NewRecorder()
	handler.Overview(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil))
	first := decodeResponse[OverviewResponse](t, recorder)
	if first.ActiveBiometrics != 1 || !first.HNSWEnabled || first.HNSWNodes != 1 {
		t.Errorf("unexpected overview: %+v", first)
	}

	env.addStudent("bob", bobVec)
	recorder = httptest.NewRecorder()
	handler.Overview(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil))
	if got := decodeResponse[OverviewResponse](t, recorder); got.ActiveBiometrics != 1 {
		t.Errorf("expected cached overview, got %+v", got)
	}

	handler.InvalidateCache()
	recorder = httptest.NewRecorder()
	handler.Overview(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil))
	if got := decodeResponse[OverviewResponse](t, recorder); got.ActiveBiometrics != 2 {
		t.Errorf("expected fresh overview, got %+v", got)
	}
}

func TestIndexHandler_Rebuild(t *testing.T) {
	env := newTestEnv(t, nil)

	recorder := httptest.NewRecorder()
	NewIndexHandler(nil, nil).Rebuild(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))
	if recorder.Code != http.StatusConflict {
		t.Errorf("no index: expected status 409, got %d", recorder.Code)
	}

	idx := &fakeIndex{enabled: true, count: 3}
	stats := NewStatsHandler(env.stats, env.store, idx)
	recorder = httptest.NewRecorder()
	NewIndexHandler(idx, stats).Rebuild(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if idx.rebuilds != 1 {
		t.Errorf("expected 1 rebuild, got %d", idx.rebuilds)
	}

	idx.err = database.ErrStorageUnavailable
	recorder = httptest.NewRecorder()
	NewIndexHandler(idx, stats).Rebuild(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", recorder.Code)
	}
}
