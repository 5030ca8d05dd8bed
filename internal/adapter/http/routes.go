package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc) {
	r.Get("/healthz", h.Health)
	r.Get("/ws", ws)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)

		// Canonical files (nested under projects)
		r.Get("/projects/{id}/files", h.GetFiles)
		r.Put("/projects/{id}/files", h.PutFile)

		// Executions
		r.Post("/projects/{id}/executions", h.Execute)
		r.Post("/projects/{id}/executions/preflight", h.Preflight)

		// Runs (audit surface)
		r.Get("/projects/{id}/runs", h.ListProjectRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/runs/{id}/events", h.ListRunEvents)
		r.Get("/runs/{id}/timeline", h.GetRunTimeline)
	})
}
