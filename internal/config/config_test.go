package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_QUERY_TIMEOUT", "EMBEDDING_DIM", "MATCH_DISTANCE_THRESHOLD", "MATCH_TOP_K",
		"ATTENDANCE_MIN_CONFIDENCE", "ATTENDANCE_AUTO_VERIFY_THRESHOLD", "ATTENDANCE_DEDUP_WINDOW_HOURS",
		"SCHEDULE_CACHE_TTL", "HNSW_ENABLED", "ATTENDANCE_DEFAULT_CAMERA",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected dim 512, got %d", cfg.Embedding.Dim)
	}
	if cfg.Matching.DistanceThreshold != 0.6 {
		t.Errorf("expected distance threshold 0.6, got %g", cfg.Matching.DistanceThreshold)
	}
	if got := cfg.Matching.SimilarityThreshold(); got < 0.3999 || got > 0.4001 {
		t.Errorf("expected similarity threshold 0.4, got %g", got)
	}
	if cfg.Matching.TopK != 1 {
		t.Errorf("expected top k 1, got %d", cfg.Matching.TopK)
	}
	if cfg.Attendance.MinConfidence != 0.70 {
		t.Errorf("expected min confidence 0.70, got %g", cfg.Attendance.MinConfidence)
	}
	if cfg.Attendance.AutoVerifyThreshold != 0.85 {
		t.Errorf("expected auto verify 0.85, got %g", cfg.Attendance.AutoVerifyThreshold)
	}
	if cfg.Attendance.DedupWindow != time.Hour {
		t.Errorf("expected dedup window 1h, got %s", cfg.Attendance.DedupWindow)
	}
	if cfg.Attendance.ScheduleCacheTTL != 5*time.Minute {
		t.Errorf("expected cache ttl 5m, got %s", cfg.Attendance.ScheduleCacheTTL)
	}
	if cfg.Database.QueryTimeout != 5*time.Second {
		t.Errorf("expected query timeout 5s, got %s", cfg.Database.QueryTimeout)
	}
	if cfg.Database.HNSWEnabled {
		t.Error("expected HNSW disabled by default")
	}
	if cfg.Attendance.DefaultCameraID != "cctv_main" {
		t.Errorf("expected default camera cctv_main, got %q", cfg.Attendance.DefaultCameraID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "128")
	t.Setenv("MATCH_DISTANCE_THRESHOLD", "0.35")
	t.Setenv("ATTENDANCE_DEDUP_WINDOW_HOURS", "2")
	t.Setenv("SCHEDULE_CACHE_TTL", "30s")
	t.Setenv("HNSW_ENABLED", "true")

	cfg := Load()

	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected dim 128, got %d", cfg.Embedding.Dim)
	}
	if cfg.Matching.DistanceThreshold != 0.35 {
		t.Errorf("expected 0.35, got %g", cfg.Matching.DistanceThreshold)
	}
	if cfg.Attendance.DedupWindow != 2*time.Hour {
		t.Errorf("expected 2h, got %s", cfg.Attendance.DedupWindow)
	}
	if cfg.Attendance.ScheduleCacheTTL != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.Attendance.ScheduleCacheTTL)
	}
	if !cfg.Database.HNSWEnabled {
		t.Error("expected HNSW enabled")
	}
}

func TestEnvInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "-3")
	if got := envInt("TEST_ENV_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
	t.Setenv("TEST_ENV_INT", "abc")
	if got := envInt("TEST_ENV_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}

func TestValidate_RejectsBadThresholds(t *testing.T) {
	cfg := Load()
	cfg.Matching.DistanceThreshold = 0
	cfg.Attendance.MinConfidence = 1.5
	cfg.Matching.TopK = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg := Load()
	cfg.Attendance.Timezone = "Mars/Olympus"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected timezone error")
	}
	if cfg.Attendance.Location() != time.Local {
		t.Error("expected Local fallback for invalid timezone")
	}
}
