package api

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)
		r.Handle("/metrics", s.metrics.Handler())

		r.Route("/environments", func(r chi.Router) {
			r.Get("/", s.handleListEnvironments)
			r.Post("/", s.handleCreateEnvironment)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEnvironment)
				r.Put("/", s.handleUpdateEnvironment)
				r.Delete("/", s.handleDeleteEnvironment)
			})
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/actions", s.handleDeviceAction)
				r.Get("/readings", s.handleListReadings)
				r.Get("/readings/range", s.handleReadingsRange)
				r.Get("/readings/stats", s.handleReadingStats)
			})
		})

		r.Post("/readings", s.handleCreateReading)

		r.Route("/device-environments", func(r chi.Router) {
			r.Get("/", s.handleListLinks)
			r.Post("/", s.handleCreateLink)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetLink)
				r.Put("/status", s.handleUpdateStatus)
				r.Put("/interval", s.handleUpdateInterval)
				r.Put("/food", s.handleUpdateFood)
				r.Post("/cleaning/start", s.handleStartCleaning)
				r.Post("/cleaning/complete", s.handleCompleteCleaning)
				r.Post("/cleaning/reminder", s.handleCleaningReminder)
			})
		})

		r.Post("/realtime/restart", s.handleRestartStreams)
		r.Get(s.wsPath, s.handleWebSocket)
	})

	return r
}

// handleHealth probes every registered dependency concurrently. Any failure
// reports "degraded" with 503 so load balancers stop routing here.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(s.checks))
	)
	for name, checker := range s.checks {
		if checker == nil {
			continue
		}
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			result := "ok"
			if err := checker.HealthCheck(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	status, code := "ok", http.StatusOK
	failed := make([]string, 0)
	for name, result := range results {
		if result != "ok" {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		status, code = "degraded", http.StatusServiceUnavailable
		s.logger.Warn("health check degraded", "failed", failed)
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  results,
	})
}
