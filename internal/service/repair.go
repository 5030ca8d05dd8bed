package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/repair"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/port/database"
	"github.com/gatehouse-io/gatehouse/internal/port/planner"
)

// RepairProposal is an accepted repair: a validated, scope-checked plan plus
// the classification it answers.
type RepairProposal struct {
	Plan           *plan.Plan
	Classification repair.Classification
	Scope          repair.Scope
	Fingerprint    string
}

// RepairService classifies a failed check, derives the bounded scope a fix
// may touch, and asks the external planner for a proposal. Proposals that
// violate the scope or the error-class policy are rejected outright.
type RepairService struct {
	store     database.Store
	planner   planner.Planner
	integrity *IntegrityService
}

// NewRepairService creates a RepairService.
func NewRepairService(store database.Store, p planner.Planner) *RepairService {
	return &RepairService{store: store, planner: p, integrity: NewIntegrityService()}
}

// Propose classifies the failure, builds the repair scope, fetches a plan
// from the collaborator, and gates it through the policy:
//   - every proposed edit path must be in scope, and
//   - only the missing-dependency class may touch more than one file.
//
// failedRunID identifies the failed sandbox, whose in-scope file contents
// accompany the request.
func (s *RepairService) Propose(ctx context.Context, projectID, failedRunID string, failed run.CheckResult) (*RepairProposal, error) {
	cls := repair.Classify(failed.Stdout, failed.Stderr, failed.ExitCode)
	scope := repair.BuildScope(cls, failed.Command, failed.Stderr, failed.Stdout)
	fingerprint := repair.Fingerprint(cls, failed.Command, failed.Stderr)

	files := s.scopeFiles(ctx, failedRunID, scope)

	p, err := s.planner.ProposeRepair(ctx, planner.RepairRequest{
		ProjectID:      projectID,
		Command:        failed.Command,
		Stdout:         failed.Stdout,
		Stderr:         failed.Stderr,
		ExitCode:       failed.ExitCode,
		Classification: cls,
		ScopePaths:     scope.Paths(),
		Files:          files,
	})
	if err != nil {
		return nil, fmt.Errorf("repair planner: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: proposed plan invalid: %s", domain.ErrRepairRejected, err)
	}

	if err := s.integrity.CheckScope(p, scope.Contains); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepairRejected, err)
	}
	touched := make(map[string]struct{})
	for _, step := range p.FileEdits() {
		touched[step.Path] = struct{}{}
	}
	if len(touched) > 1 && !cls.AllowsMultiFile() {
		return nil, fmt.Errorf("%w: %s repair touches %d files, single file allowed",
			domain.ErrRepairRejected, cls.ErrorType, len(touched))
	}

	slog.Info("repair proposed", "project_id", projectID, "error_type", cls.ErrorType,
		"scope_paths", len(scope.Paths()), "edits", len(touched), "fingerprint", fingerprint)

	return &RepairProposal{Plan: p, Classification: cls, Scope: scope, Fingerprint: fingerprint}, nil
}

// scopeFiles reads the failed sandbox's contents for the in-scope paths that
// exist, to give the planner the code it is fixing.
func (s *RepairService) scopeFiles(ctx context.Context, runID string, scope repair.Scope) map[string]string {
	files := make(map[string]string)
	for _, p := range scope.Paths() {
		f, err := s.store.GetSandboxFile(ctx, runID, p)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				slog.Warn("repair scope file read failed", "run_id", runID, "path", p, "error", err)
			}
			continue
		}
		files[p] = f.Content
	}
	return files
}
