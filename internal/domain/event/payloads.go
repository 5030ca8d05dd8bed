package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/internal/domain/run"
)

// PlanValidatedPayload accompanies TypePlanValidated.
type PlanValidatedPayload struct {
	PlanHash  string `json:"plan_hash"`
	StepCount int    `json:"step_count"`
}

// EditAppliedPayload accompanies TypeEditApplied.
type EditAppliedPayload struct {
	Path string `json:"path"`
}

// EditConflictedPayload accompanies TypeEditConflicted.
type EditConflictedPayload struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// CheckStartedPayload accompanies TypeCheckStarted.
type CheckStartedPayload struct {
	Kind    run.CheckKind `json:"kind"`
	Command string        `json:"command"`
}

// CheckFinishedPayload accompanies TypeCheckFinished.
type CheckFinishedPayload struct {
	Kind   run.CheckKind   `json:"kind"`
	Status run.CheckStatus `json:"status"`
}

// RepairStartedPayload accompanies TypeRepairStarted.
type RepairStartedPayload struct {
	ErrorType   string   `json:"error_type"`
	ScopePaths  []string `json:"scope_paths"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// TerminalPayload accompanies TypeTerminal. Exactly one per run.
type TerminalPayload struct {
	Outcome run.Outcome `json:"outcome"`
}

// New builds a RunEvent with a fresh id and the given sequence number.
// Payload must be JSON-marshalable; constructors below guarantee that.
func New(runID, projectID string, t Type, version int, payload any) (*RunEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &RunEvent{
		ID:        uuid.NewString(),
		RunID:     runID,
		ProjectID: projectID,
		Type:      t,
		Payload:   data,
		Version:   version,
		CreatedAt: time.Now().UTC(),
	}, nil
}
