// Package memstore provides in-memory implementations of the database and
// event store ports, used by tests and by dev mode when no Postgres URL is
// configured.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/project"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
)

type fileKey struct {
	owner string // project id or run id
	path  string
}

// Store is a mutex-guarded in-memory database.Store.
type Store struct {
	mu       sync.Mutex
	projects map[string]project.Project
	files    map[fileKey]project.File
	runs     map[string]run.SandboxRun
	sandbox  map[fileKey]run.SandboxFile

	// promoteMu serializes promotions per project, standing in for the
	// advisory lock the Postgres store takes.
	promoteMu map[string]*sync.Mutex
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		projects:  make(map[string]project.Project),
		files:     make(map[fileKey]project.File),
		runs:      make(map[string]run.SandboxRun),
		sandbox:   make(map[fileKey]run.SandboxFile),
		promoteMu: make(map[string]*sync.Mutex),
	}
}

func (s *Store) CreateProject(_ context.Context, req project.CreateRequest) (*project.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	now := time.Now().UTC()
	p := project.Project{
		ID:                uuid.NewString(),
		Name:              req.Name,
		SafeMode:          req.SafeMode,
		ProtectedPatterns: req.ProtectedPatterns,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return &p, nil
}

func (s *Store) GetProject(_ context.Context, id string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) ListProjects(_ context.Context) ([]project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetFile(_ context.Context, projectID, path string) (*project.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileKey{projectID, path}]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", path, domain.ErrNotFound)
	}
	return &f, nil
}

func (s *Store) PutFile(_ context.Context, projectID, path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileKey{projectID, path}] = project.File{
		ProjectID: projectID,
		Path:      path,
		Content:   content,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Store) ListFiles(_ context.Context, projectID string) ([]project.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []project.File
	for k, f := range s.files {
		if k.owner == projectID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) ListFilePaths(ctx context.Context, projectID string) ([]string, error) {
	files, err := s.ListFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

func (s *Store) CreateRun(_ context.Context, r *run.SandboxRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; ok {
		return fmt.Errorf("run %s already exists", r.ID)
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.runs[r.ID] = *r
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (*run.SandboxRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) ListRunsByProject(_ context.Context, projectID string) ([]run.SandboxRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []run.SandboxRun
	for _, r := range s.runs {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateRunStatus(_ context.Context, id string, status run.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if !r.Status.CanTransition(status) {
		return fmt.Errorf("run %s: illegal transition %s -> %s", id, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	s.runs[id] = r
	return nil
}

func (s *Store) SetRunChecks(_ context.Context, id string, checks run.CheckSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	r.Checks = checks
	r.UpdatedAt = time.Now().UTC()
	s.runs[id] = r
	return nil
}

func (s *Store) FinalizeRun(_ context.Context, id string, status run.Status, errorCode, errMsg string, promotedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if !r.Status.CanTransition(status) {
		return fmt.Errorf("run %s: illegal transition %s -> %s", id, r.Status, status)
	}
	r.Status = status
	r.ErrorCode = errorCode
	r.Error = errMsg
	r.PromotedAt = promotedAt
	r.UpdatedAt = time.Now().UTC()
	s.runs[id] = r
	return nil
}

func (s *Store) SnapshotFiles(_ context.Context, runID, projectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := 0
	for k, f := range s.files {
		if k.owner != projectID {
			continue
		}
		s.sandbox[fileKey{runID, f.Path}] = run.SandboxFile{
			RunID:   runID,
			Path:    f.Path,
			Content: f.Content,
		}
		copied++
	}
	return copied, nil
}

func (s *Store) GetSandboxFile(_ context.Context, runID, path string) (*run.SandboxFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.sandbox[fileKey{runID, path}]
	if !ok {
		return nil, fmt.Errorf("sandbox file %s: %w", path, domain.ErrNotFound)
	}
	return &f, nil
}

func (s *Store) PutSandboxFile(_ context.Context, runID, path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sandbox[fileKey{runID, path}] = run.SandboxFile{
		RunID:   runID,
		Path:    path,
		Content: content,
		Edited:  true,
	}
	return nil
}

func (s *Store) ListSandboxFiles(_ context.Context, runID string) ([]run.SandboxFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []run.SandboxFile
	for k, f := range s.sandbox {
		if k.owner == runID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) ListEditedFiles(_ context.Context, runID string) ([]run.SandboxFile, error) {
	all, err := s.ListSandboxFiles(context.Background(), runID)
	if err != nil {
		return nil, err
	}
	var out []run.SandboxFile
	for _, f := range all {
		if f.Edited {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) PromoteRun(ctx context.Context, runID string) (*run.ApplyResult, error) {
	r, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	lock := s.projectLock(r.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	edited, err := s.ListEditedFiles(ctx, runID)
	if err != nil {
		return nil, err
	}
	result := &run.ApplyResult{}
	for _, f := range edited {
		if err := s.PutFile(ctx, r.ProjectID, f.Path, f.Content); err != nil {
			result.Conflicts = append(result.Conflicts, run.Conflict{
				Path:    f.Path,
				Message: err.Error(),
			})
			continue
		}
		result.FilesEdited = append(result.FilesEdited, f.Path)
	}
	return result, nil
}

func (s *Store) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.promoteMu[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.promoteMu[projectID] = lock
	}
	return lock
}
