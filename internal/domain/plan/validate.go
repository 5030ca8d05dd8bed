package plan

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrNoSteps            = errors.New("at least one step is required")
	ErrInvalidStepType    = errors.New("invalid step type: must be file_edit or command")
	ErrStepMissingPath    = errors.New("file_edit step path is required")
	ErrStepMissingCommand = errors.New("command step command is required")
	ErrUnsafePath         = errors.New("path must be relative and must not escape the project root")
)

// Validate checks the plan for structural correctness. It does not verify
// the plan hash; that is the integrity guard's job.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return ErrNoSteps
	}

	for i, s := range p.Steps {
		switch s.Type {
		case StepTypeFileEdit:
			if s.Path == "" {
				return fmt.Errorf("step %d: %w", i, ErrStepMissingPath)
			}
			if err := ValidatePath(s.Path); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		case StepTypeCommand:
			if strings.TrimSpace(s.Command) == "" {
				return fmt.Errorf("step %d: %w", i, ErrStepMissingCommand)
			}
			if s.Cwd != "" {
				if err := ValidatePath(s.Cwd); err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
			}
		default:
			return fmt.Errorf("step %d: %w", i, ErrInvalidStepType)
		}
	}

	return nil
}

// ValidatePath rejects absolute paths and paths that escape the project
// root after cleaning. All plan and edit paths must pass this check before
// they are used as storage keys or written to a sandbox directory.
func ValidatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return ErrUnsafePath
	}
	clean := path.Clean(p)
	if clean != p || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return ErrUnsafePath
	}
	return nil
}
