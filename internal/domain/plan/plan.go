// Package plan defines the edit/command plan entity that the execution
// engine trials in a sandbox before promotion.
package plan

// StepType identifies the kind of plan step.
type StepType string

const (
	StepTypeFileEdit StepType = "file_edit"
	StepTypeCommand  StepType = "command"
)

// Step is one unit of a plan: either a file edit or a shell command.
// Which fields are meaningful depends on Type.
type Step struct {
	Type StepType `json:"type"`

	// File edit fields.
	Path string `json:"path,omitempty"`
	// OldContent, when set, is the expected prior content. It is matched
	// against the sandbox file before the edit lands (optimistic
	// concurrency); nil means unconditional create/overwrite.
	OldContent  *string `json:"old_content,omitempty"`
	NewContent  string  `json:"new_content,omitempty"`
	Description string  `json:"description,omitempty"`

	// Command fields.
	Command string `json:"command,omitempty"`
	Cwd     string `json:"cwd,omitempty"`
}

// Plan is an ordered sequence of steps plus a human-readable summary.
// A plan is logically immutable once hashed.
type Plan struct {
	Summary string `json:"summary,omitempty"`
	Steps   []Step `json:"steps"`
}

// FileEdits returns the file-edit steps in plan order.
func (p *Plan) FileEdits() []Step {
	var edits []Step
	for _, s := range p.Steps {
		if s.Type == StepTypeFileEdit {
			edits = append(edits, s)
		}
	}
	return edits
}

// Commands returns the command steps in plan order.
func (p *Plan) Commands() []Step {
	var cmds []Step
	for _, s := range p.Steps {
		if s.Type == StepTypeCommand {
			cmds = append(cmds, s)
		}
	}
	return cmds
}

// AllowedPaths returns the set of paths declared by the plan's file-edit
// steps. Edit batches referencing a path outside this set are rejected
// before any mutation occurs.
func (p *Plan) AllowedPaths() map[string]struct{} {
	allowed := make(map[string]struct{})
	for _, s := range p.Steps {
		if s.Type == StepTypeFileEdit && s.Path != "" {
			allowed[s.Path] = struct{}{}
		}
	}
	return allowed
}
