// Package planner defines the external repair-plan collaborator port. The
// engine never generates plans; during the single bounded repair cycle it
// asks this collaborator for a scoped fix proposal.
package planner

import (
	"context"

	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/repair"
)

// RepairRequest carries everything the collaborator needs to propose a fix
// for one classified failure.
type RepairRequest struct {
	ProjectID      string                `json:"project_id"`
	Command        string                `json:"command"`
	Stdout         string                `json:"stdout"`
	Stderr         string                `json:"stderr"`
	ExitCode       int                   `json:"exit_code"`
	Classification repair.Classification `json:"classification"`
	// ScopePaths is advisory for the planner; the orchestrator re-checks
	// every proposed edit against the scope regardless.
	ScopePaths []string `json:"scope_paths"`
	// Files are the current sandbox contents of the in-scope paths.
	Files map[string]string `json:"files,omitempty"`
}

// Planner proposes a repair plan for a classified failure.
type Planner interface {
	ProposeRepair(ctx context.Context, req RepairRequest) (*plan.Plan, error)
}
