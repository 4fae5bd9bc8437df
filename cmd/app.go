package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/approval"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/matching"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/selfies"
	"github.com/kozaktomas/face-attendance/internal/stats"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the services built once per process.
type app struct {
	cfg         *config.Config
	backend     *database.Backend
	registry    *prometheus.Registry
	embedder    *embedder.Client
	stats       *stats.Aggregator
	attendance  *attendance.Engine
	recognition *recognition.Service
	approval    *approval.Manager
}

// loadConfig reads and validates the environment configuration.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL environment variable is required", database.ErrConfiguration)
	}
	return cfg, nil
}

// newApp opens the datastore and wires every service on top of it.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logging.Component("app")

	backend, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewAttendanceMetrics(registry)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	loc := cfg.Attendance.Location()
	agg := stats.NewAggregator(backend.Stats, m, loc)

	engine := attendance.NewEngine(backend.Attendance, backend.Classes, agg, m, attendance.Config{
		MinConfidence:       cfg.Attendance.MinConfidence,
		AutoVerifyThreshold: cfg.Attendance.AutoVerifyThreshold,
		DedupWindow:         cfg.Attendance.DedupWindow,
		CacheTTL:            cfg.Attendance.ScheduleCacheTTL,
		DefaultCameraID:     cfg.Attendance.DefaultCameraID,
		Location:            loc,
	})

	matcher := matching.NewEngine(backend.Biometrics, matching.Config{
		Dim:               cfg.Embedding.Dim,
		DistanceThreshold: cfg.Matching.DistanceThreshold,
		TopK:              cfg.Matching.TopK,
	}, m)

	client := embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.RateLimit)

	scanCfg := recognition.DefaultConfig()
	scanCfg.DefaultCameraID = cfg.Attendance.DefaultCameraID
	svc := recognition.NewService(matcher, engine, agg, client, m, scanCfg)

	var selfieStore selfies.Store
	if dir := selfies.NewDirStore(cfg.Selfies.Dir); dir != nil {
		selfieStore = dir
	} else {
		log.Warn("SELFIE_DIR not set, enrollment selfies will not be kept")
	}

	return &app{
		cfg:         cfg,
		backend:     backend,
		registry:    registry,
		embedder:    client,
		stats:       agg,
		attendance:  engine,
		recognition: svc,
		approval:    approval.NewManager(backend.Biometrics, selfieStore, cfg.Embedding.Dim),
	}, nil
}

// openApp loads the configuration and builds the app in one step.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func (a *app) server() *web.Server {
	return web.NewServer(a.cfg, web.Deps{
		Backend:     a.backend,
		Approval:    a.approval,
		Attendance:  a.attendance,
		Recognition: a.recognition,
		Stats:       a.stats,
		Detector:    a.embedder,
		Registry:    a.registry,
	})
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		logging.Component("app").WithError(err).Warn("closing datastore")
	}
}
