package service

import (
	"context"
	"sync"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/adapter/memstore"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/domain/event"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/port/executor"
	"github.com/gatehouse-io/gatehouse/internal/port/stack"
)

// scriptExec returns canned results per command. Unknown commands pass.
type scriptExec struct {
	mu      sync.Mutex
	results map[string]*executor.Result
	err     error
	calls   []executor.Command
}

func (e *scriptExec) Execute(_ context.Context, cmd executor.Command) (*executor.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, cmd)
	if e.err != nil {
		return nil, e.err
	}
	if res, ok := e.results[cmd.Command]; ok {
		out := *res
		return &out, nil
	}
	return &executor.Result{ExitCode: 0}, nil
}

type fixedResolver struct {
	cmds stack.Commands
}

func (r fixedResolver) Resolve(context.Context, string, []string) (stack.Commands, error) {
	return r.cmds, nil
}

type recordedEvent struct {
	t       event.Type
	payload any
}

func newCheckRunnerFixture(t *testing.T, cmds stack.Commands, exec executor.Executor) (*CheckRunner, *memstore.Store, *run.SandboxRun) {
	t.Helper()
	store := memstore.New()
	runID := newSandboxRun(t, store, map[string]string{"main.go": "package main\n"})
	r, err := store.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	sandbox := NewSandboxManager(store, config.Sandbox{WorkRoot: t.TempDir()})
	checker := NewCheckRunner(store, fixedResolver{cmds: cmds}, exec, sandbox, config.Defaults().Checks)
	return checker, store, r
}

func collectEmit(events *[]recordedEvent) EmitFunc {
	return func(t event.Type, payload any) {
		*events = append(*events, recordedEvent{t: t, payload: payload})
	}
}

func TestChecksAllPassed(t *testing.T) {
	exec := &scriptExec{}
	checker, _, r := newCheckRunnerFixture(t, stack.Commands{Lint: "run-lint", Test: "run-test"}, exec)

	var events []recordedEvent
	checks, err := checker.Run(context.Background(), r, nil, collectEmit(&events))
	if err != nil {
		t.Fatalf("run checks: %v", err)
	}

	if checks.Lint.Status != run.CheckPassed || checks.Test.Status != run.CheckPassed {
		t.Fatalf("checks = %+v", checks)
	}
	if checks.Run.Status != run.CheckNotConfigured {
		t.Fatalf("run status = %s, want not_configured", checks.Run.Status)
	}

	started, finished := 0, 0
	for _, ev := range events {
		switch ev.t {
		case event.TypeCheckStarted:
			started++
		case event.TypeCheckFinished:
			finished++
		}
	}
	if started != 2 || finished != 2 {
		t.Fatalf("events: started=%d finished=%d, want 2/2", started, finished)
	}
}

func TestChecksFailureCapturesOutput(t *testing.T) {
	exec := &scriptExec{results: map[string]*executor.Result{
		"run-test": {ExitCode: 1, Stdout: "1 failing", Stderr: "assertion failed"},
	}}
	checker, _, r := newCheckRunnerFixture(t, stack.Commands{Test: "run-test"}, exec)

	var events []recordedEvent
	checks, err := checker.Run(context.Background(), r, nil, collectEmit(&events))
	if err != nil {
		t.Fatalf("run checks: %v", err)
	}

	if checks.Test.Status != run.CheckFailed {
		t.Fatalf("test status = %s", checks.Test.Status)
	}
	if checks.Test.Stderr != "assertion failed" || checks.Test.ExitCode != 1 {
		t.Fatalf("failure lost its logs: %+v", checks.Test)
	}
}

func TestChecksFailClosedOnExecutorError(t *testing.T) {
	exec := &scriptExec{err: context.DeadlineExceeded}
	checker, _, r := newCheckRunnerFixture(t, stack.Commands{Test: "run-test"}, exec)

	var events []recordedEvent
	checks, err := checker.Run(context.Background(), r, nil, collectEmit(&events))
	if err != nil {
		t.Fatalf("run checks: %v", err)
	}
	if checks.Test.Status != run.CheckFailed || checks.Test.ExitCode != -1 {
		t.Fatalf("executor error must report as failed, got %+v", checks.Test)
	}
}

func TestChecksNothingConfigured(t *testing.T) {
	exec := &scriptExec{}
	checker, _, r := newCheckRunnerFixture(t, stack.Commands{}, exec)

	var events []recordedEvent
	checks, err := checker.Run(context.Background(), r, nil, collectEmit(&events))
	if err != nil {
		t.Fatalf("run checks: %v", err)
	}
	for _, k := range run.Kinds() {
		if checks.Get(k).Status != run.CheckNotConfigured {
			t.Fatalf("%s status = %s, want not_configured", k, checks.Get(k).Status)
		}
	}
	if len(exec.calls) != 0 {
		t.Fatalf("executor invoked %d times for unconfigured checks", len(exec.calls))
	}
	if len(events) != 0 {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestChecksCommandStepFailureSkipsChecks(t *testing.T) {
	exec := &scriptExec{results: map[string]*executor.Result{
		"make generate": {ExitCode: 2, Stderr: "codegen broke"},
	}}
	checker, _, r := newCheckRunnerFixture(t, stack.Commands{Lint: "run-lint"}, exec)

	commands := []plan.Step{{Type: plan.StepTypeCommand, Command: "make generate"}}
	var events []recordedEvent
	checks, err := checker.Run(context.Background(), r, commands, collectEmit(&events))
	if err != nil {
		t.Fatalf("run checks: %v", err)
	}

	if checks.Run.Status != run.CheckFailed {
		t.Fatalf("run status = %s, want failed", checks.Run.Status)
	}
	if checks.Lint.Status != run.CheckSkipped {
		t.Fatalf("lint status = %s, want skipped (configured but unrun)", checks.Lint.Status)
	}
	if checks.Test.Status != run.CheckNotConfigured {
		t.Fatalf("test status = %s, want not_configured", checks.Test.Status)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("checks ran after the command step failed: %d calls", len(exec.calls))
	}
}

func TestChecksCommandStepsRunInOrder(t *testing.T) {
	exec := &scriptExec{}
	checker, _, r := newCheckRunnerFixture(t, stack.Commands{}, exec)

	commands := []plan.Step{
		{Type: plan.StepTypeCommand, Command: "first"},
		{Type: plan.StepTypeCommand, Command: "second"},
	}
	if _, err := checker.Run(context.Background(), r, commands, collectEmit(&[]recordedEvent{})); err != nil {
		t.Fatalf("run checks: %v", err)
	}
	if len(exec.calls) != 2 || exec.calls[0].Command != "first" || exec.calls[1].Command != "second" {
		t.Fatalf("calls = %+v", exec.calls)
	}
}
