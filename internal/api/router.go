package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/typepilot/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermSessionRead)).Post("/auth/ws-ticket", s.handleWSTicket)
			r.With(s.requirePermission(auth.PermSessionRead)).Get("/status", s.handleStatus)

			r.With(s.requirePermission(auth.PermActionTrigger)).Post("/actions/{action}", s.handleAction)

			r.Route("/sessions", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermSessionRead)).Get("/", s.handleListSessions)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/history", s.handleSessionHistory)
				r.With(s.requirePermission(auth.PermSessionControl)).Post("/stop-all", s.handleStopAll)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermSessionRead)).Get("/", s.handleGetSession)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermSessionControl))
						r.Post("/pause", s.handleSessionCommand(CommandPause))
						r.Post("/resume", s.handleSessionCommand(CommandResume))
						r.Post("/stop", s.handleSessionCommand(CommandStop))
					})
				})
			})

			r.Route("/reviews", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermSessionRead)).Get("/", s.handleListReviews)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermReviewResolve))
					r.Post("/{id}/confirm", s.handleConfirmReview)
					r.Post("/{id}/reject", s.handleRejectReview)
				})
			})

			r.With(s.requirePermission(auth.PermLearningRead)).Get("/learning/topics", s.handleListTopics)
			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.engine != nil {
		resp["engine_online"] = s.engine.Online()
	}
	if s.process != nil {
		resp["engine_process"] = s.process.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
