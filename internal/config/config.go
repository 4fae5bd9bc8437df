package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database   DatabaseConfig
	Embedding  EmbeddingConfig
	Matching   MatchingConfig
	Attendance AttendanceConfig
	Selfies    SelfieConfig
	Web        WebConfig
	Log        LogConfig
}

type DatabaseConfig struct {
	URL          string        // PostgreSQL connection URL
	MaxOpenConns int           // Maximum open connections (default 25)
	MaxIdleConns int           // Maximum idle connections (default 5)
	QueryTimeout time.Duration // Upper bound for a single datastore call (default 5s)
	HNSWEnabled  bool          // Serve similarity search from the in-memory HNSW index
}

type EmbeddingConfig struct {
	URL       string  // defaults to http://localhost:8000
	Dim       int     // defaults to 512
	RateLimit float64 // requests per second towards the embedding service
}

type MatchingConfig struct {
	DistanceThreshold float64 // cosine distance cutoff, similarity cutoff is 1 - threshold
	TopK              int
}

// SimilarityThreshold converts the distance cutoff into a similarity cutoff.
func (m MatchingConfig) SimilarityThreshold() float64 {
	return 1 - m.DistanceThreshold
}

type AttendanceConfig struct {
	MinConfidence       float64
	AutoVerifyThreshold float64
	DedupWindow         time.Duration
	ScheduleCacheTTL    time.Duration
	Timezone            string // IANA name used to evaluate class schedules, empty means local
	DefaultCameraID     string
}

// Location resolves Timezone, falling back to time.Local.
func (a AttendanceConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type SelfieConfig struct {
	Dir string // root directory of the selfie bucket, empty disables selfie storage
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins string // comma separated CORS allowlist
	APIToken       string // bearer token guarding operator endpoints, empty disables the check
}

type LogConfig struct {
	Level string
	File  string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float. Invalid values fall back to the default.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("5s", "2m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			QueryTimeout: envDuration("DATABASE_QUERY_TIMEOUT", 5*time.Second),
			HNSWEnabled:  envBool("HNSW_ENABLED", false),
		},
		Embedding: EmbeddingConfig{
			URL:       envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim:       envInt("EMBEDDING_DIM", 512),
			RateLimit: envFloat("EMBEDDING_RATE_LIMIT", 10),
		},
		Matching: MatchingConfig{
			DistanceThreshold: envFloat("MATCH_DISTANCE_THRESHOLD", 0.6),
			TopK:              envInt("MATCH_TOP_K", 1),
		},
		Attendance: AttendanceConfig{
			MinConfidence:       envFloat("ATTENDANCE_MIN_CONFIDENCE", 0.70),
			AutoVerifyThreshold: envFloat("ATTENDANCE_AUTO_VERIFY_THRESHOLD", 0.85),
			DedupWindow:         time.Duration(envInt("ATTENDANCE_DEDUP_WINDOW_HOURS", 1)) * time.Hour,
			ScheduleCacheTTL:    envDuration("SCHEDULE_CACHE_TTL", 5*time.Minute),
			Timezone:            os.Getenv("ATTENDANCE_TIMEZONE"),
			DefaultCameraID:     envString("ATTENDANCE_DEFAULT_CAMERA", "cctv_main"),
		},
		Selfies: SelfieConfig{
			Dir: os.Getenv("SELFIE_DIR"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8085),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}
}

// Validate rejects thresholds that would make matching or authorization meaningless.
func (c *Config) Validate() error {
	var errs []error
	if c.Embedding.Dim <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Embedding.Dim))
	}
	if c.Matching.DistanceThreshold <= 0 || c.Matching.DistanceThreshold > 2 {
		errs = append(errs, fmt.Errorf("MATCH_DISTANCE_THRESHOLD must be in (0, 2], got %g", c.Matching.DistanceThreshold))
	}
	if c.Matching.TopK < 1 {
		errs = append(errs, fmt.Errorf("MATCH_TOP_K must be at least 1, got %d", c.Matching.TopK))
	}
	if c.Attendance.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("ATTENDANCE_MIN_CONFIDENCE must be in [0, 1], got %g", c.Attendance.MinConfidence))
	}
	if c.Attendance.AutoVerifyThreshold > 1 {
		errs = append(errs, fmt.Errorf("ATTENDANCE_AUTO_VERIFY_THRESHOLD must be in [0, 1], got %g", c.Attendance.AutoVerifyThreshold))
	}
	if c.Attendance.DedupWindow <= 0 {
		errs = append(errs, errors.New("ATTENDANCE_DEDUP_WINDOW_HOURS must be positive"))
	}
	if c.Attendance.Timezone != "" {
		if _, err := time.LoadLocation(c.Attendance.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("ATTENDANCE_TIMEZONE: %w", err))
		}
	}
	return errors.Join(errs...)
}
