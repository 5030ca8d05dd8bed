package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/port/database"
)

// Applier lands a plan's file edits in a sandbox with per-file optimistic
// concurrency. Content mismatches and failed writes are conflicts, collected
// and returned per path; only losing the store entirely is an error.
type Applier struct {
	store database.Store
}

// NewApplier creates an Applier.
func NewApplier(store database.Store) *Applier {
	return &Applier{store: store}
}

// Apply processes the file-edit steps in plan order. A step with no
// oldContent writes unconditionally (create or overwrite). With oldContent,
// the sandbox's current content must equal or contain it; otherwise the step
// records a conflict and the file is left untouched. Later steps observe
// earlier writes.
func (a *Applier) Apply(ctx context.Context, runID string, steps []plan.Step) (*run.ApplyResult, error) {
	result := &run.ApplyResult{}
	edited := make(map[string]struct{})

	for _, step := range steps {
		if step.Type != plan.StepTypeFileEdit {
			continue
		}

		cur, err := a.store.GetSandboxFile(ctx, runID, step.Path)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			if step.OldContent != nil {
				result.Conflicts = append(result.Conflicts, run.Conflict{
					Path:    step.Path,
					Message: "expected prior content but file does not exist",
				})
				continue
			}
			cur = nil
		default:
			return nil, fmt.Errorf("%w: read sandbox file %s: %s", domain.ErrInfrastructure, step.Path, err)
		}

		var next string
		switch {
		case step.OldContent == nil:
			next = step.NewContent
		case cur.Content == *step.OldContent:
			next = step.NewContent
		case strings.Contains(cur.Content, *step.OldContent):
			next = strings.Replace(cur.Content, *step.OldContent, step.NewContent, 1)
		default:
			result.Conflicts = append(result.Conflicts, run.Conflict{
				Path:    step.Path,
				Message: "expected prior content does not match sandbox content",
			})
			continue
		}

		if err := a.store.PutSandboxFile(ctx, runID, step.Path, next); err != nil {
			// A failed write is isolated to its path, same as a content
			// mismatch; later steps still run. A dead context means the
			// whole store is gone, so that one aborts.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: write sandbox file %s: %s", domain.ErrInfrastructure, step.Path, err)
			}
			result.Conflicts = append(result.Conflicts, run.Conflict{
				Path:    step.Path,
				Message: fmt.Sprintf("write failed: %s", err),
			})
			continue
		}
		if _, ok := edited[step.Path]; !ok {
			edited[step.Path] = struct{}{}
			result.FilesEdited = append(result.FilesEdited, step.Path)
		}
	}

	return result, nil
}
