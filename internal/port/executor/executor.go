// Package executor defines the process executor port. Verification commands
// and plan command steps run through this, never through direct os/exec
// calls in the services.
package executor

import (
	"context"
	"time"
)

// Command describes one subprocess invocation. Dir is the materialized
// sandbox directory (or a subdirectory of it); commands never run against
// canonical storage.
type Command struct {
	Command string        `json:"command"`
	Dir     string        `json:"dir"`
	Timeout time.Duration `json:"timeout"`
}

// Result is the captured outcome of a subprocess. A TimedOut result always
// carries a non-zero exit code so callers stay fail-closed.
type Result struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Executor runs subprocesses with a bounded timeout and cooperative
// cancellation. A non-nil error means the process could not be run or
// observed at all (infrastructure trouble); command failure is reported via
// Result.ExitCode, not via error.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}
