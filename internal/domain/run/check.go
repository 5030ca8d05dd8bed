package run

// CheckKind identifies a verification command category.
type CheckKind string

const (
	CheckLint CheckKind = "lint"
	CheckTest CheckKind = "test"
	CheckRun  CheckKind = "run"
)

// Kinds lists all check kinds in reporting order.
func Kinds() []CheckKind {
	return []CheckKind{CheckLint, CheckTest, CheckRun}
}

// CheckStatus is the outcome of one verification check.
type CheckStatus string

const (
	CheckPassed CheckStatus = "passed"
	CheckFailed CheckStatus = "failed"
	// CheckSkipped means a configured check was not executed, e.g. because
	// an earlier stage already failed or the run was cancelled.
	CheckSkipped CheckStatus = "skipped"
	// CheckNotConfigured means no command is configured for this kind.
	// Never treated as a failure.
	CheckNotConfigured CheckStatus = "not_configured"
)

// CheckResult is the outcome of a single check with its captured logs.
type CheckResult struct {
	Status   CheckStatus `json:"status"`
	Command  string      `json:"command,omitempty"`
	Stdout   string      `json:"stdout,omitempty"`
	Stderr   string      `json:"stderr,omitempty"`
	ExitCode int         `json:"exit_code"`
}

// CheckSet holds one result per check kind.
type CheckSet struct {
	Lint CheckResult `json:"lint"`
	Test CheckResult `json:"test"`
	Run  CheckResult `json:"run"`
}

// Get returns the result for the given kind.
func (c CheckSet) Get(kind CheckKind) CheckResult {
	switch kind {
	case CheckLint:
		return c.Lint
	case CheckTest:
		return c.Test
	default:
		return c.Run
	}
}

// Set stores the result for the given kind.
func (c *CheckSet) Set(kind CheckKind, r CheckResult) {
	switch kind {
	case CheckLint:
		c.Lint = r
	case CheckTest:
		c.Test = r
	case CheckRun:
		c.Run = r
	}
}

// HasFailures reports whether any check failed. The promotion gate promotes
// iff this is false; ambiguous outcomes were already recorded as failed.
func (c CheckSet) HasFailures() bool {
	for _, k := range Kinds() {
		if c.Get(k).Status == CheckFailed {
			return true
		}
	}
	return false
}

// FailedKinds returns the kinds whose checks failed, in reporting order.
func (c CheckSet) FailedKinds() []CheckKind {
	var failed []CheckKind
	for _, k := range Kinds() {
		if c.Get(k).Status == CheckFailed {
			failed = append(failed, k)
		}
	}
	return failed
}

// Conflict records a per-file edit failure: the expected prior content did
// not match the sandbox's current content, or a write failed. Conflicts are
// data, not errors; processing continues for remaining steps.
type Conflict struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ApplyResult is the outcome of applying an edit batch to a sandbox.
type ApplyResult struct {
	FilesEdited []string   `json:"files_edited"`
	Conflicts   []Conflict `json:"conflicts"`
}

// Outcome is the terminal payload of an execution: what was promoted (or
// why not), with both attempts' check logs when a repair ran.
type Outcome struct {
	RunID       string     `json:"run_id"`
	Success     bool       `json:"success"`
	FilesEdited []string   `json:"files_edited"`
	Conflicts   []Conflict `json:"conflicts"`
	Checks      CheckSet   `json:"checks"`
	Retried     bool       `json:"retried"`
	// FirstAttempt carries the failed first attempt when Retried is true.
	FirstAttempt *AttemptReport `json:"first_attempt,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// AttemptReport summarizes one sandbox attempt for terminal reporting.
type AttemptReport struct {
	RunID     string     `json:"run_id"`
	Checks    CheckSet   `json:"checks"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}
