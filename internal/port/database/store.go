// Package database defines the storage port: canonical project files, the
// per-run sandbox file arena, and sandbox run records.
package database

import (
	"context"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/domain/project"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
)

// Store is the port interface for all persistent engine state.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, req project.CreateRequest) (*project.Project, error)
	GetProject(ctx context.Context, id string) (*project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)

	// Canonical files, keyed by (project id, path).
	GetFile(ctx context.Context, projectID, path string) (*project.File, error)
	PutFile(ctx context.Context, projectID, path, content string) error
	ListFiles(ctx context.Context, projectID string) ([]project.File, error)
	ListFilePaths(ctx context.Context, projectID string) ([]string, error)

	// Sandbox runs. Terminal runs are retained for audit.
	CreateRun(ctx context.Context, r *run.SandboxRun) error
	GetRun(ctx context.Context, id string) (*run.SandboxRun, error)
	ListRunsByProject(ctx context.Context, projectID string) ([]run.SandboxRun, error)
	UpdateRunStatus(ctx context.Context, id string, status run.Status) error
	SetRunChecks(ctx context.Context, id string, checks run.CheckSet) error
	FinalizeRun(ctx context.Context, id string, status run.Status, errorCode, errMsg string, promotedAt *time.Time) error

	// Sandbox arena, keyed by run id.
	SnapshotFiles(ctx context.Context, runID, projectID string) (copied int, err error)
	GetSandboxFile(ctx context.Context, runID, path string) (*run.SandboxFile, error)
	PutSandboxFile(ctx context.Context, runID, path, content string) error
	ListSandboxFiles(ctx context.Context, runID string) ([]run.SandboxFile, error)
	ListEditedFiles(ctx context.Context, runID string) ([]run.SandboxFile, error)

	// PromoteRun copies the run's edited files into canonical storage.
	// Each file copy is independently atomic; failures surface as per-file
	// conflicts, never as partial writes. Implementations must serialize
	// promotions per project (advisory lock held across the copy loop).
	PromoteRun(ctx context.Context, runID string) (*run.ApplyResult, error)
}
