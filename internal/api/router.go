package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		middleware.RequestSize(maxRequestBodySize),
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Prometheus scrape endpoint (no auth required for basic monitoring)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/system", s.handleSystem)
			r.Get("/audit", s.handleListAuditLogs)

			// Generic command endpoint, same messages as the WebSocket
			r.Post("/commands", s.handleCommand)

			r.Route("/entities", func(r chi.Router) {
				r.Get("/", s.handleListEntities)
				r.Get("/export", s.handleExportEntities)
				r.Post("/bulk/enable", s.handleBulk(CmdBulkEnable))
				r.Post("/bulk/disable", s.handleBulk(CmdBulkDisable))

				r.Route("/{entity_id}", func(r chi.Router) {
					r.Get("/", s.handleGetEntity)
					r.Patch("/", s.handleUpdateEntity)
					r.Delete("/", s.handleRemoveEntity)
					r.Post("/enable", s.handleSetEnabled(CmdEnableEntity))
					r.Post("/disable", s.handleSetEnabled(CmdDisableEntity))
					r.Post("/rename", s.handleRenameEntity)
				})
			})

			r.Get("/automations", s.handleSimpleCommand(CmdGetAutomations))
			r.Get("/template-sensors", s.handleSimpleCommand(CmdGetTemplateSensors))
			r.Get("/hacs", s.handleSimpleCommand(CmdListHACSItems))
			r.Post("/yaml-references", s.handleUpdateReferences)
		})

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
