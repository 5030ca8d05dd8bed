// Package localexec implements the process executor port with local
// subprocesses. Commands run through the shell in the materialized sandbox
// directory, with a bounded timeout and kill-on-cancel.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/port/executor"
)

// Executor runs commands as local subprocesses.
type Executor struct {
	// MaxOutputBytes caps captured stdout/stderr each. Zero means no cap.
	MaxOutputBytes int
}

// New creates a local executor with the given output cap.
func New(maxOutputBytes int) *Executor {
	return &Executor{MaxOutputBytes: maxOutputBytes}
}

// Execute runs the command and captures its output. A non-zero exit or a
// timeout is reported in the Result, not as an error; errors mean the
// process could not be started or observed.
func (e *Executor) Execute(ctx context.Context, cmd executor.Command) (*executor.Result, error) {
	if cmd.Command == "" {
		return nil, errors.New("empty command")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, "/bin/sh", "-c", cmd.Command)
	proc.Dir = cmd.Dir
	// Kill the whole process group on cancel so shell descendants die too;
	// killing only the direct child leaves them holding the pipes open.
	setProcAttr(proc)
	proc.Cancel = func() error { return killProcessGroup(proc) }
	// Backstop in case a descendant outside the group keeps a pipe open.
	proc.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	start := time.Now()
	err := proc.Run()
	duration := time.Since(start)

	res := &executor.Result{
		Stdout:   truncate(stdout.Bytes(), e.MaxOutputBytes),
		Stderr:   truncate(stderr.Bytes(), e.MaxOutputBytes),
		Duration: duration,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case res.TimedOut:
		// Fail closed: a killed process may report exit 0 on some
		// platforms, so force a distinct non-zero code.
		res.ExitCode = -1
		res.Stderr = res.Stderr + fmt.Sprintf("\n[killed after %s timeout]", cmd.Timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Could not start or observe the process at all.
			return nil, fmt.Errorf("execute %q: %w", cmd.Command, err)
		}
	}

	return res, nil
}

func truncate(b []byte, max int) string {
	if max > 0 && len(b) > max {
		return string(b[:max]) + "\n[output truncated]"
	}
	return string(b)
}
