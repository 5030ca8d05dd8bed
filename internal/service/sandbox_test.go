package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/adapter/memstore"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/domain/project"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
)

func newSandboxFixture(t *testing.T) (*SandboxManager, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	cfg := config.Defaults().Sandbox
	cfg.WorkRoot = t.TempDir()
	return NewSandboxManager(store, cfg), store
}

func TestSandboxCreateSnapshotsProjectFiles(t *testing.T) {
	ctx := context.Background()
	mgr, store := newSandboxFixture(t)

	p, err := store.CreateProject(ctx, project.CreateRequest{Name: "demo"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if err := store.PutFile(ctx, p.ID, "main.go", "package main\n"); err != nil {
		t.Fatalf("put file: %v", err)
	}
	if err := store.PutFile(ctx, p.ID, "pkg/util.go", "package pkg\n"); err != nil {
		t.Fatalf("put file: %v", err)
	}

	r, err := mgr.Create(ctx, p.ID, "tester", run.SourceInteractiveEdit, nil)
	if err != nil {
		t.Fatalf("create sandbox: %v", err)
	}
	if r.Status != run.StatusCreated {
		t.Fatalf("status = %s, want %s", r.Status, run.StatusCreated)
	}

	files, err := store.ListSandboxFiles(ctx, r.ID)
	if err != nil {
		t.Fatalf("list sandbox files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("snapshot copied %d files, want 2", len(files))
	}
	for _, f := range files {
		if f.Edited {
			t.Fatalf("snapshot file %s marked edited", f.Path)
		}
	}
}

func TestSandboxMaterializeWritesNestedPaths(t *testing.T) {
	ctx := context.Background()
	mgr, store := newSandboxFixture(t)
	runID := newSandboxRun(t, store, map[string]string{
		"main.go":        "package main\n",
		"pkg/sub/lib.go": "package sub\n",
	})

	dir, err := mgr.Materialize(ctx, runID)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "pkg", "sub", "lib.go"))
	if err != nil {
		t.Fatalf("read materialized file: %v", err)
	}
	if string(data) != "package sub\n" {
		t.Fatalf("content = %q", data)
	}

	mgr.Cleanup(runID)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("cleanup left %s behind: %v", dir, err)
	}
}

func TestSandboxMaterializeRejectsEscapingPath(t *testing.T) {
	ctx := context.Background()
	mgr, store := newSandboxFixture(t)
	runID := newSandboxRun(t, store, nil)
	if err := store.PutSandboxFile(ctx, runID, "../outside.txt", "nope"); err != nil {
		t.Fatalf("put sandbox file: %v", err)
	}

	if _, err := mgr.Materialize(ctx, runID); err == nil {
		t.Fatal("expected error for path escaping the run dir")
	}
}

func TestSandboxCleanupKeepsDirWhenConfigured(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	cfg := config.Defaults().Sandbox
	cfg.WorkRoot = t.TempDir()
	cfg.KeepMaterialized = true
	mgr := NewSandboxManager(store, cfg)

	runID := newSandboxRun(t, store, map[string]string{"a.txt": "a"})
	dir, err := mgr.Materialize(ctx, runID)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	mgr.Cleanup(runID)
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("dir should survive cleanup: %v", err)
	}
}

func TestSandboxPromoteStampsRun(t *testing.T) {
	ctx := context.Background()
	mgr, store := newSandboxFixture(t)
	runID := newSandboxRun(t, store, map[string]string{"main.go": "package main\n"})
	if err := store.PutSandboxFile(ctx, runID, "main.go", "package main // v2\n"); err != nil {
		t.Fatalf("edit sandbox file: %v", err)
	}
	if err := mgr.Transition(ctx, runID, run.StatusEdited); err != nil {
		t.Fatalf("transition to edited: %v", err)
	}
	if err := mgr.Transition(ctx, runID, run.StatusChecked); err != nil {
		t.Fatalf("transition to checked: %v", err)
	}

	result, err := mgr.Promote(ctx, runID)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if len(result.FilesEdited) != 1 || result.FilesEdited[0] != "main.go" {
		t.Fatalf("files edited = %v", result.FilesEdited)
	}

	r, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if r.Status != run.StatusPromoted || r.PromotedAt == nil {
		t.Fatalf("run = %+v, want promoted with timestamp", r)
	}
}

func TestSandboxPromoteRequiresCheckedRun(t *testing.T) {
	ctx := context.Background()
	mgr, store := newSandboxFixture(t)
	runID := newSandboxRun(t, store, map[string]string{"main.go": "package main\n"})
	if err := store.PutSandboxFile(ctx, runID, "main.go", "package main // v2\n"); err != nil {
		t.Fatalf("edit sandbox file: %v", err)
	}
	r, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}

	// A run that never went through edited and checked must not promote,
	// and canonical storage must stay untouched.
	if _, err := mgr.Promote(ctx, runID); err == nil {
		t.Fatal("promote from created must fail")
	}
	if got, err := store.GetRun(ctx, runID); err != nil || got.Status != run.StatusCreated {
		t.Fatalf("run = %+v, %v; want status %s", got, err, run.StatusCreated)
	}
	f, err := store.GetFile(ctx, r.ProjectID, "main.go")
	if err != nil {
		t.Fatalf("get canonical file: %v", err)
	}
	if f.Content != "package main\n" {
		t.Fatalf("canonical content mutated: %q", f.Content)
	}
}

func TestSandboxRejectRecordsCode(t *testing.T) {
	ctx := context.Background()
	mgr, store := newSandboxFixture(t)
	runID := newSandboxRun(t, store, nil)

	if err := mgr.Reject(ctx, runID, "checks_failed", "lint failed"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	r, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if r.Status != run.StatusRejected || r.ErrorCode != "checks_failed" {
		t.Fatalf("run = %+v", r)
	}
}
