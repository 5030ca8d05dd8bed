package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/port/database"
)

// SandboxManager owns the sandbox run lifecycle: snapshot creation,
// filesystem materialization for check commands, and promotion back into
// canonical storage. No other component writes run rows directly.
type SandboxManager struct {
	store database.Store
	cfg   config.Sandbox
}

// NewSandboxManager creates a SandboxManager.
func NewSandboxManager(store database.Store, cfg config.Sandbox) *SandboxManager {
	return &SandboxManager{store: store, cfg: cfg}
}

// Create inserts a new sandbox run and snapshots every current project file
// into its copy-on-write arena. Metadata may carry an originating-failure
// fingerprint for repair runs.
func (s *SandboxManager) Create(ctx context.Context, projectID, actorID string, source run.Source, metadata map[string]string) (*run.SandboxRun, error) {
	r := &run.SandboxRun{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ActorID:   actorID,
		Source:    source,
		Metadata:  metadata,
		Status:    run.StatusCreated,
	}
	if err := s.store.CreateRun(ctx, r); err != nil {
		return nil, fmt.Errorf("%w: create run: %s", domain.ErrInfrastructure, err)
	}
	copied, err := s.store.SnapshotFiles(ctx, r.ID, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot files: %s", domain.ErrInfrastructure, err)
	}
	slog.Info("sandbox created", "run_id", r.ID, "project_id", projectID, "source", source, "files", copied)
	return r, nil
}

// Materialize writes the sandbox's file set under workRoot/<runID>/ so
// external processes can execute against real files. Paths that would escape
// the run directory are rejected.
func (s *SandboxManager) Materialize(ctx context.Context, runID string) (string, error) {
	files, err := s.store.ListSandboxFiles(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("%w: list sandbox files: %s", domain.ErrInfrastructure, err)
	}

	dir := filepath.Join(s.cfg.WorkRoot, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create sandbox dir: %s", domain.ErrInfrastructure, err)
	}

	for _, f := range files {
		if err := plan.ValidatePath(f.Path); err != nil {
			return "", fmt.Errorf("%w: sandbox path %q: %s", domain.ErrInfrastructure, f.Path, err)
		}
		dst := filepath.Join(dir, filepath.FromSlash(f.Path))
		if !strings.HasPrefix(dst, dir+string(os.PathSeparator)) {
			return "", fmt.Errorf("%w: sandbox path %q escapes run dir", domain.ErrInfrastructure, f.Path)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", fmt.Errorf("%w: create dir for %s: %s", domain.ErrInfrastructure, f.Path, err)
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return "", fmt.Errorf("%w: write %s: %s", domain.ErrInfrastructure, f.Path, err)
		}
	}
	return dir, nil
}

// Cleanup removes the materialized directory unless configured to keep it
// for debugging.
func (s *SandboxManager) Cleanup(runID string) {
	if s.cfg.KeepMaterialized {
		return
	}
	dir := filepath.Join(s.cfg.WorkRoot, runID)
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("sandbox cleanup failed", "run_id", runID, "error", err)
	}
}

// SetChecks records the run's check outcomes.
func (s *SandboxManager) SetChecks(ctx context.Context, runID string, checks run.CheckSet) error {
	if err := s.store.SetRunChecks(ctx, runID, checks); err != nil {
		return fmt.Errorf("%w: set checks: %s", domain.ErrInfrastructure, err)
	}
	return nil
}

// Transition advances the run's lifecycle status.
func (s *SandboxManager) Transition(ctx context.Context, runID string, status run.Status) error {
	if err := s.store.UpdateRunStatus(ctx, runID, status); err != nil {
		return fmt.Errorf("%w: transition to %s: %s", domain.ErrInfrastructure, status, err)
	}
	return nil
}

// Promote copies the run's edited files into canonical storage and stamps
// the run promoted. The store serializes promotions per project.
func (s *SandboxManager) Promote(ctx context.Context, runID string) (*run.ApplyResult, error) {
	r, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: promote run %s: %s", domain.ErrInfrastructure, runID, err)
	}
	// Guard before any canonical write: a run that never passed its checks
	// must not reach promotion.
	if !r.Status.CanTransition(run.StatusPromoted) {
		return nil, fmt.Errorf("%w: promote run %s: illegal transition %s -> %s",
			domain.ErrInfrastructure, runID, r.Status, run.StatusPromoted)
	}
	result, err := s.store.PromoteRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: promote run %s: %s", domain.ErrInfrastructure, runID, err)
	}
	now := time.Now().UTC()
	if err := s.store.FinalizeRun(ctx, runID, run.StatusPromoted, "", "", &now); err != nil {
		return nil, fmt.Errorf("%w: finalize promoted run %s: %s", domain.ErrInfrastructure, runID, err)
	}
	slog.Info("run promoted", "run_id", runID, "files", len(result.FilesEdited), "conflicts", len(result.Conflicts))
	return result, nil
}

// Reject marks the run rejected with a stable machine code. Rejected runs
// are retained for audit.
func (s *SandboxManager) Reject(ctx context.Context, runID, code, msg string) error {
	if err := s.store.FinalizeRun(ctx, runID, run.StatusRejected, code, msg, nil); err != nil {
		return fmt.Errorf("%w: reject run %s: %s", domain.ErrInfrastructure, runID, err)
	}
	slog.Info("run rejected", "run_id", runID, "code", code)
	return nil
}
