package messagequeue

import "time"

// RunOutcomePayload is published on runs.promoted / runs.rejected when a
// run reaches its terminal state.
type RunOutcomePayload struct {
	RunID       string    `json:"run_id"`
	ProjectID   string    `json:"project_id"`
	ActorID     string    `json:"actor_id"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"error_code,omitempty"`
	FilesEdited int       `json:"files_edited"`
	Conflicts   int       `json:"conflicts"`
	Retried     bool      `json:"retried"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RepairAttemptPayload is published on runs.repair when a repair cycle
// starts, carrying the failure fingerprint for dedup analytics.
type RepairAttemptPayload struct {
	RunID       string    `json:"run_id"`
	ProjectID   string    `json:"project_id"`
	ErrorType   string    `json:"error_type"`
	Fingerprint string    `json:"fingerprint"`
	StartedAt   time.Time `json:"started_at"`
}
