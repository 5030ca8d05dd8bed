package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/adapter/memstore"
	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/project"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/port/database"
)

func str(s string) *string { return &s }

// newSandboxRun seeds a project with the given files and snapshots it into
// a fresh sandbox run, returning the run ID.
func newSandboxRun(t *testing.T, store *memstore.Store, files map[string]string) string {
	t.Helper()
	ctx := context.Background()

	p, err := store.CreateProject(ctx, project.CreateRequest{Name: "demo"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	for path, content := range files {
		if err := store.PutFile(ctx, p.ID, path, content); err != nil {
			t.Fatalf("put file %s: %v", path, err)
		}
	}
	r := &run.SandboxRun{ID: "run-1", ProjectID: p.ID, ActorID: "tester", Source: run.SourceInteractiveEdit, Status: run.StatusCreated}
	if err := store.CreateRun(ctx, r); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if _, err := store.SnapshotFiles(ctx, r.ID, p.ID); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return r.ID
}

func TestApplyUnconditionalWrite(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, nil)
	a := NewApplier(store)

	res, err := a.Apply(context.Background(), runID, []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "new.go", NewContent: "package new\n"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("conflicts = %v", res.Conflicts)
	}
	f, err := store.GetSandboxFile(context.Background(), runID, "new.go")
	if err != nil {
		t.Fatalf("get sandbox file: %v", err)
	}
	if f.Content != "package new\n" || !f.Edited {
		t.Fatalf("file = %+v", f)
	}
}

func TestApplyExactMatchReplace(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, map[string]string{"a.go": "old"})
	a := NewApplier(store)

	res, err := a.Apply(context.Background(), runID, []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "a.go", OldContent: str("old"), NewContent: "new"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("conflicts = %v", res.Conflicts)
	}
	f, _ := store.GetSandboxFile(context.Background(), runID, "a.go")
	if f.Content != "new" {
		t.Fatalf("content = %q", f.Content)
	}
}

func TestApplySubstringReplacesFirstOccurrence(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, map[string]string{"a.go": "foo bar foo"})
	a := NewApplier(store)

	_, err := a.Apply(context.Background(), runID, []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "a.go", OldContent: str("foo"), NewContent: "baz"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	f, _ := store.GetSandboxFile(context.Background(), runID, "a.go")
	if f.Content != "baz bar foo" {
		t.Fatalf("content = %q, want first occurrence replaced only", f.Content)
	}
}

func TestApplyMismatchIsConflictNotError(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, map[string]string{"a.go": "actual"})
	a := NewApplier(store)

	res, err := a.Apply(context.Background(), runID, []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "a.go", OldContent: str("expected"), NewContent: "new"},
		{Type: plan.StepTypeFileEdit, Path: "b.go", NewContent: "fine"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Path != "a.go" {
		t.Fatalf("conflicts = %v", res.Conflicts)
	}
	// Conflicted file untouched, later step still applied.
	f, _ := store.GetSandboxFile(context.Background(), runID, "a.go")
	if f.Content != "actual" {
		t.Fatalf("conflicted file was modified: %q", f.Content)
	}
	if len(res.FilesEdited) != 1 || res.FilesEdited[0] != "b.go" {
		t.Fatalf("files edited = %v", res.FilesEdited)
	}
}

func TestApplyMissingFileWithOldContentConflicts(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, nil)
	a := NewApplier(store)

	res, err := a.Apply(context.Background(), runID, []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "ghost.go", OldContent: str("anything"), NewContent: "new"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %v", res.Conflicts)
	}
}

func TestApplyLaterStepsSeeEarlierWrites(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, map[string]string{"a.go": "v1"})
	a := NewApplier(store)

	res, err := a.Apply(context.Background(), runID, []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "a.go", OldContent: str("v1"), NewContent: "v2"},
		{Type: plan.StepTypeFileEdit, Path: "a.go", OldContent: str("v2"), NewContent: "v3"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("conflicts = %v", res.Conflicts)
	}
	f, _ := store.GetSandboxFile(context.Background(), runID, "a.go")
	if f.Content != "v3" {
		t.Fatalf("content = %q, want v3", f.Content)
	}
	// The path is reported once even though two steps touched it.
	if len(res.FilesEdited) != 1 {
		t.Fatalf("files edited = %v", res.FilesEdited)
	}
}

// failWriteStore rejects writes to one path, standing in for a store that
// loses a single row.
type failWriteStore struct {
	database.Store
	failPath string
}

func (s *failWriteStore) PutSandboxFile(ctx context.Context, runID, path, content string) error {
	if path == s.failPath {
		return errors.New("disk full")
	}
	return s.Store.PutSandboxFile(ctx, runID, path, content)
}

func TestApplyWriteFailureIsConflictNotError(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, nil)
	a := NewApplier(&failWriteStore{Store: store, failPath: "broken.go"})

	res, err := a.Apply(context.Background(), runID, []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "broken.go", NewContent: "x"},
		{Type: plan.StepTypeFileEdit, Path: "ok.go", NewContent: "y"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Path != "broken.go" {
		t.Fatalf("conflicts = %v", res.Conflicts)
	}
	// The failing path is collected, the rest of the batch still lands.
	if len(res.FilesEdited) != 1 || res.FilesEdited[0] != "ok.go" {
		t.Fatalf("files edited = %v", res.FilesEdited)
	}
}

func TestApplyCancelledContextAborts(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, nil)
	a := NewApplier(&failWriteStore{Store: store, failPath: "broken.go"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Apply(ctx, runID, []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "broken.go", NewContent: "x"},
	})
	if !errors.Is(err, domain.ErrInfrastructure) {
		t.Fatalf("err = %v, want infrastructure", err)
	}
}

func TestApplySkipsCommandSteps(t *testing.T) {
	store := memstore.New()
	runID := newSandboxRun(t, store, nil)
	a := NewApplier(store)

	res, err := a.Apply(context.Background(), runID, []plan.Step{
		{Type: plan.StepTypeCommand, Command: "npm install"},
		{Type: plan.StepTypeFileEdit, Path: "a.go", NewContent: "x"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.FilesEdited) != 1 {
		t.Fatalf("files edited = %v", res.FilesEdited)
	}
}
