package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anhhung04/plant-care/internal/auth"
)

// healthCheckTimeout bounds each component check of /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Authenticates with a ticket or a bearer token inside the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/ws-ticket", s.handleWSTicket)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermGreenhouseRead))
				r.Get("/metrics", s.handleMetrics)
				r.Get("/jobs", s.handleListJobs)
				r.Get("/greenhouses", s.handleListGreenhouses)
				r.Get("/greenhouses/{id}", s.handleGetGreenhouse)
				r.Get("/greenhouses/{id}/fields/{idx}/history", s.handleFieldHistory)
			})

			r.With(requirePermission(auth.PermReconcile)).
				Post("/reconcile", s.handleReconcile)
			r.With(requirePermission(auth.PermDeviceOperate)).
				Post("/greenhouses/{id}/fields/{idx}/control", s.handleControl)
			r.With(requirePermission(auth.PermDeviceConfigure)).
				Put("/greenhouses/{id}/fields/{idx}/devices/{device}/config", s.handleSetDeviceConfig)
		})
	})

	return r
}

// handleHealth reports the server and each registered component.
// Any failing component turns the answer into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
