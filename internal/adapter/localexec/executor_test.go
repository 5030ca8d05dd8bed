package localexec_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/adapter/localexec"
	"github.com/gatehouse-io/gatehouse/internal/port/executor"
)

func TestExecute_CapturesOutput(t *testing.T) {
	e := localexec.New(0)
	res, err := e.Execute(context.Background(), executor.Command{
		Command: "echo out; echo err 1>&2",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

func TestExecute_NonZeroExitIsNotError(t *testing.T) {
	e := localexec.New(0)
	res, err := e.Execute(context.Background(), executor.Command{
		Command: "exit 3",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", res.ExitCode)
	}
}

func TestExecute_Timeout(t *testing.T) {
	e := localexec.New(0)
	res, err := e.Execute(context.Background(), executor.Command{
		Command: "sleep 5",
		Dir:     t.TempDir(),
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("timeout must be reported in result, got error: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if res.ExitCode == 0 {
		t.Fatal("timed-out command must not report exit 0")
	}
}

func TestExecute_CancelKillsProcess(t *testing.T) {
	e := localexec.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := e.Execute(ctx, executor.Command{
		Command: "sleep 10",
		Dir:     t.TempDir(),
	})
	if time.Since(start) > 2*time.Second {
		t.Fatal("cancellation did not kill the process promptly")
	}
	if err == nil && res.ExitCode == 0 {
		t.Fatal("cancelled command must not succeed")
	}
}

func TestExecute_CancelKillsShellDescendants(t *testing.T) {
	// The shell backgrounds a child that inherits the output pipes. If only
	// the direct shell were killed, the child would keep the pipes open and
	// Wait would block for the full WaitDelay.
	e := localexec.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _ = e.Execute(ctx, executor.Command{
		Command: "sleep 30 & wait",
		Dir:     t.TempDir(),
	})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("shell descendants survived cancellation, Execute took %s", elapsed)
	}
}

func TestExecute_TruncatesOutput(t *testing.T) {
	e := localexec.New(16)
	res, err := e.Execute(context.Background(), executor.Command{
		Command: "yes x | head -100",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res.Stdout, "[output truncated]") {
		t.Fatalf("expected truncation marker, got %q", res.Stdout)
	}
}

func TestExecute_EmptyCommand(t *testing.T) {
	e := localexec.New(0)
	if _, err := e.Execute(context.Background(), executor.Command{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
