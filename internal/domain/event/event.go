// Package event defines the closed set of progress events emitted while a
// plan executes. Events for a single run are delivered in generation order;
// the terminal event is always the last event.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of run event.
type Type string

const (
	TypePlanValidated  Type = "plan.validated"
	TypeEditApplied    Type = "edit.applied"
	TypeEditConflicted Type = "edit.conflicted"
	TypeCheckStarted   Type = "check.started"
	TypeCheckFinished  Type = "check.finished"
	TypeRepairStarted  Type = "repair.started"
	TypeTerminal       Type = "run.terminal"
)

// RunEvent is a single immutable event in a run's trajectory. Version is a
// per-run monotonically increasing sequence number.
type RunEvent struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	ProjectID string          `json:"project_id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsTerminal reports whether this event closes the stream.
func (e *RunEvent) IsTerminal() bool {
	return e.Type == TypeTerminal
}
