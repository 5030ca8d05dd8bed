package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-io/gatehouse/internal/adapter/otel"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/event"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/port/database"
	"github.com/gatehouse-io/gatehouse/internal/port/executor"
	"github.com/gatehouse-io/gatehouse/internal/port/stack"
)

// EmitFunc receives progress events from the check runner in generation
// order. The streamer binds it to the run's event sequence.
type EmitFunc func(t event.Type, payload any)

// CheckRunner materializes a sandbox and executes plan command steps plus
// the configured verification checks against it. Fail-closed: any ambiguous
// outcome (executor error, timeout, unknown exit) reports as failed.
type CheckRunner struct {
	store    database.Store
	resolver stack.Resolver
	exec     executor.Executor
	sandbox  *SandboxManager
	cfg      config.Checks
	metrics  *otel.Metrics
}

// NewCheckRunner creates a CheckRunner.
func NewCheckRunner(store database.Store, resolver stack.Resolver, exec executor.Executor, sandbox *SandboxManager, cfg config.Checks) *CheckRunner {
	return &CheckRunner{store: store, resolver: resolver, exec: exec, sandbox: sandbox, cfg: cfg}
}

// SetMetrics attaches metric instruments. Nil disables recording.
func (c *CheckRunner) SetMetrics(m *otel.Metrics) { c.metrics = m }

// Run executes the plan's command steps sequentially, then the configured
// lint/test/run checks concurrently, all in the run's materialized
// directory. A failing command step surfaces as a failed run check and
// skips the remaining checks.
func (c *CheckRunner) Run(ctx context.Context, r *run.SandboxRun, commands []plan.Step, emit EmitFunc) (run.CheckSet, error) {
	var checks run.CheckSet

	dir, err := c.sandbox.Materialize(ctx, r.ID)
	if err != nil {
		return checks, err
	}
	defer c.sandbox.Cleanup(r.ID)

	files, err := c.store.ListSandboxFiles(ctx, r.ID)
	if err != nil {
		return checks, fmt.Errorf("%w: list sandbox files: %s", domain.ErrInfrastructure, err)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	cmds, err := c.resolver.Resolve(ctx, r.ProjectID, paths)
	if err != nil {
		return checks, fmt.Errorf("%w: resolve check commands: %s", domain.ErrInfrastructure, err)
	}

	// Plan command steps first, in order. They may mutate the materialized
	// dir (installs, codegen) that the checks then verify.
	for _, step := range commands {
		res := c.execute(ctx, step.Command, dir, step.Cwd)
		if res.Status == run.CheckFailed {
			checks.Run = res
			markUnrun(&checks, cmds, run.CheckRun)
			return checks, nil
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	runCheck := func(kind run.CheckKind, command string) func() error {
		return func() error {
			if command == "" {
				mu.Lock()
				checks.Set(kind, run.CheckResult{Status: run.CheckNotConfigured})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			emit(event.TypeCheckStarted, event.CheckStartedPayload{Kind: kind, Command: command})
			mu.Unlock()

			checkCtx, span := otel.StartCheckSpan(ctx, r.ID, string(kind))
			start := time.Now()
			res := c.execute(checkCtx, command, dir, "")
			span.End()
			if c.metrics != nil {
				c.metrics.RecordCheckDuration(checkCtx, string(kind), time.Since(start))
			}

			mu.Lock()
			checks.Set(kind, res)
			emit(event.TypeCheckFinished, event.CheckFinishedPayload{Kind: kind, Status: res.Status})
			mu.Unlock()
			return nil
		}
	}
	g.Go(runCheck(run.CheckLint, cmds.Lint))
	g.Go(runCheck(run.CheckTest, cmds.Test))
	g.Go(runCheck(run.CheckRun, cmds.Run))
	_ = g.Wait()

	return checks, nil
}

// execute runs one command and converts the outcome to a CheckResult.
// Executor errors are failures, never silently passed.
func (c *CheckRunner) execute(ctx context.Context, command, dir, cwd string) run.CheckResult {
	workDir := dir
	if cwd != "" {
		if err := plan.ValidatePath(cwd); err != nil {
			return run.CheckResult{
				Status:   run.CheckFailed,
				Command:  command,
				Stderr:   fmt.Sprintf("invalid cwd %q: %v", cwd, err),
				ExitCode: -1,
			}
		}
		workDir = filepath.Join(dir, filepath.FromSlash(cwd))
	}
	res, err := c.exec.Execute(ctx, executor.Command{
		Command: command,
		Dir:     workDir,
		Timeout: c.cfg.CommandTimeout,
	})
	if err != nil {
		return run.CheckResult{
			Status:   run.CheckFailed,
			Command:  command,
			Stderr:   err.Error(),
			ExitCode: -1,
		}
	}
	status := run.CheckPassed
	if res.ExitCode != 0 {
		status = run.CheckFailed
	}
	return run.CheckResult{
		Status:   status,
		Command:  command,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}
}

// markUnrun stamps the checks that never executed: skipped when a command is
// configured, not_configured otherwise.
func markUnrun(checks *run.CheckSet, cmds stack.Commands, except run.CheckKind) {
	for _, kind := range run.Kinds() {
		if kind == except {
			continue
		}
		command := ""
		switch kind {
		case run.CheckLint:
			command = cmds.Lint
		case run.CheckTest:
			command = cmds.Test
		case run.CheckRun:
			command = cmds.Run
		}
		status := run.CheckSkipped
		if command == "" {
			status = run.CheckNotConfigured
		}
		checks.Set(kind, run.CheckResult{Status: status, Command: command})
	}
}
