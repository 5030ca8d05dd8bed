// Package http provides the REST surface of the execution engine.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/project"
	"github.com/gatehouse-io/gatehouse/internal/domain/protect"
	"github.com/gatehouse-io/gatehouse/internal/port/database"
	"github.com/gatehouse-io/gatehouse/internal/service"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Store    database.Store
	Replay   *service.ReplayService
	Streamer *service.Streamer

	// Pingers are the backing dependencies the health endpoint reports on,
	// keyed by name (postgres, nats, ...).
	Pingers map[string]Pinger
}

// --- Projects ---

// CreateProject handles POST /api/v1/projects.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[project.CreateRequest](w, r)
	if !ok {
		return
	}
	p, err := h.Store.CreateProject(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject handles GET /api/v1/projects/{id}.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProject(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListProjects handles GET /api/v1/projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if projects == nil {
		projects = []project.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// --- Canonical files ---

type putFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// PutFile handles PUT /api/v1/projects/{id}/files.
func (h *Handlers) PutFile(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[putFileRequest](w, r)
	if !ok {
		return
	}
	if err := plan.ValidatePath(req.Path); err != nil {
		writeErrorCode(w, http.StatusBadRequest, domain.CodeValidation, err.Error())
		return
	}
	projectID := urlParam(r, "id")
	if _, err := h.Store.GetProject(r.Context(), projectID); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.PutFile(r.Context(), projectID, req.Path, req.Content); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path})
}

// GetFiles handles GET /api/v1/projects/{id}/files. With ?path= it returns
// one file; without, the project's file list.
func (h *Handlers) GetFiles(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "id")
	if path := r.URL.Query().Get("path"); path != "" {
		f, err := h.Store.GetFile(r.Context(), projectID, path)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
		return
	}
	files, err := h.Store.ListFiles(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if files == nil {
		files = []project.File{}
	}
	writeJSON(w, http.StatusOK, files)
}

// --- Executions ---

type executeRequest struct {
	Plan                    *plan.Plan `json:"plan"`
	PlanHash                string     `json:"plan_hash"`
	ActorID                 string     `json:"actor_id"`
	ConfirmedProtectedPaths []string   `json:"confirmed_protected_paths,omitempty"`
}

type protectedConfirmationResponse struct {
	NeedProtectedConfirmation bool     `json:"need_protected_confirmation"`
	ProtectedPaths            []string `json:"protected_paths"`
}

// Execute handles POST /api/v1/projects/{id}/executions. Non-streaming: it
// responds with the run's terminal payload. Protected paths lacking
// confirmation short-circuit with 409 before anything runs.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[executeRequest](w, r)
	if !ok {
		return
	}

	outcome, err := h.Streamer.Execute(r.Context(), service.ExecuteRequest{
		ProjectID:               urlParam(r, "id"),
		ActorID:                 req.ActorID,
		Plan:                    req.Plan,
		PlanHash:                req.PlanHash,
		ConfirmedProtectedPaths: req.ConfirmedProtectedPaths,
	})
	if err != nil {
		var protected *service.ProtectedPathsError
		if errors.As(err, &protected) {
			writeJSON(w, http.StatusConflict, protectedConfirmationResponse{
				NeedProtectedConfirmation: true,
				ProtectedPaths:            protected.Paths,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type preflightRequest struct {
	Plan *plan.Plan `json:"plan"`
}

type preflightResponse struct {
	ProtectedPaths []string `json:"protected_paths"`
}

// Preflight handles POST /api/v1/projects/{id}/executions/preflight: which
// of the plan's paths are protected, without running anything.
func (h *Handlers) Preflight(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[preflightRequest](w, r)
	if !ok {
		return
	}
	if req.Plan == nil {
		writeErrorCode(w, http.StatusBadRequest, domain.CodeValidation, "plan is required")
		return
	}
	proj, err := h.Store.GetProject(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	pset := protect.NewSet(proj.ProtectedPatterns, nil)
	var protected []string
	for path := range req.Plan.AllowedPaths() {
		if pset.IsProtected(path) {
			protected = append(protected, path)
		}
	}
	if protected == nil {
		protected = []string{}
	}
	writeJSON(w, http.StatusOK, preflightResponse{ProtectedPaths: protected})
}

// --- Runs (audit surface) ---

// GetRun handles GET /api/v1/runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListRunEvents handles GET /api/v1/runs/{id}/events. Optional from/to
// query parameters bound the returned version range (inclusive).
func (h *Handlers) ListRunEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt(r, "from")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, domain.CodeValidation, err.Error())
		return
	}
	to, err := queryInt(r, "to")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, domain.CodeValidation, err.Error())
		return
	}
	events, err := h.Replay.Replay(r.Context(), urlParam(r, "id"), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetRunTimeline handles GET /api/v1/runs/{id}/timeline: the run and its
// full event stream in one payload.
func (h *Handlers) GetRunTimeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.Replay.Timeline(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// ListProjectRuns handles GET /api/v1/projects/{id}/runs.
func (h *Handlers) ListProjectRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRunsByProject(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health handles GET /healthz. It pings every wired backing dependency and
// reports per-dependency state; any failure degrades the overall status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if len(h.Pingers) > 0 {
		resp.Dependencies = make(map[string]string, len(h.Pingers))
		for name, p := range h.Pingers {
			if err := p.Ping(r.Context()); err != nil {
				resp.Dependencies[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Dependencies[name] = "ok"
		}
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
