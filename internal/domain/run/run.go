// Package run defines the SandboxRun domain entity: one isolated,
// disposable trial of a plan's edits and verification.
package run

import "time"

// Status represents the lifecycle state of a sandbox run.
// Legal order: created -> edited -> checked -> promoted | rejected.
type Status string

const (
	StatusCreated  Status = "created"
	StatusEdited   Status = "edited"
	StatusChecked  Status = "checked"
	StatusPromoted Status = "promoted"
	StatusRejected Status = "rejected"
)

// IsTerminal returns true if the run is in a final state. Terminal runs are
// retained, never deleted, for audit and failure-rate analytics.
func (s Status) IsTerminal() bool {
	return s == StatusPromoted || s == StatusRejected
}

// CanTransition reports whether moving from s to next follows the lifecycle
// order. Rejection is legal from any non-terminal state (early aborts).
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StatusEdited:
		return s == StatusCreated
	case StatusChecked:
		return s == StatusEdited
	case StatusPromoted:
		return s == StatusChecked
	case StatusRejected:
		return true
	}
	return false
}

// Source tags who initiated a sandbox run.
type Source string

const (
	SourceInteractiveEdit Source = "interactive-edit"
	SourceAutomatedRepair Source = "automated-repair"
)

// SandboxRun is the record of one sandboxed trial. Owned exclusively by the
// sandbox manager; other components observe it through the store.
type SandboxRun struct {
	ID         string            `json:"id"`
	ProjectID  string            `json:"project_id"`
	ActorID    string            `json:"actor_id"`
	Source     Source            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     Status            `json:"status"`
	Checks     CheckSet          `json:"checks"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Error      string            `json:"error,omitempty"`
	PromotedAt *time.Time        `json:"promoted_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// MetadataFailureFingerprint is the metadata key carrying the originating
// failure fingerprint on automated-repair runs, for dedup analytics.
const MetadataFailureFingerprint = "failure_fingerprint"
