package web

import (
	"log"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	hnsw := s.deps.Backend.HNSW()

	enrollHandler := handlers.NewEnrollHandler(s.deps.Approval, s.deps.Detector)
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Recognition)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance)
	statsHandler := handlers.NewStatsHandler(s.deps.Stats, s.deps.Backend.Biometrics, hnsw)
	indexHandler := handlers.NewIndexHandler(hnsw, statsHandler)
	configHandler := handlers.NewConfigHandler(s.config)

	s.router.Get("/health", handlers.HealthCheck)
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{
			ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
			ErrorHandling: promhttp.HTTPErrorOnError,
		}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		// Enrollment submission
		r.Post("/enroll", enrollHandler.Enroll)
		r.Post("/enroll/image", enrollHandler.EnrollImage)

		// Camera-facing
		r.Post("/recognize", recognizeHandler.Recognize)
		r.Post("/recognize/image", recognizeHandler.RecognizeImage)
		r.Post("/detect", recognizeHandler.Detect)
		r.Post("/scan", recognizeHandler.Scan)
		r.Post("/attendance", attendanceHandler.Mark)
		r.Post("/attendance/batch", attendanceHandler.MarkBatch)
		r.Get("/attendance/today", attendanceHandler.Today)
		r.Get("/stats", statsHandler.Get)

		// Operator endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.Web.APIToken))

			r.Get("/enrollments/pending", enrollHandler.ListPending)
			r.Post("/enrollments/{id}/approve", enrollHandler.Approve)
			r.Post("/enrollments/{id}/reject", enrollHandler.Reject)
			r.Get("/stats/overview", statsHandler.Overview)
			r.Post("/index/rebuild", indexHandler.Rebuild)
		})
	})
}
