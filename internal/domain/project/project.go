// Package project defines the project entity owning canonical file storage.
package project

import (
	"errors"
	"time"
)

// Project is the unit of canonical storage that sandboxes snapshot from and
// promote into.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// SafeMode gates execution when a plan touches protected paths that the
	// caller has not explicitly confirmed.
	SafeMode bool `json:"safe_mode"`
	// ProtectedPatterns overrides the default protected-path globs when set.
	ProtectedPatterns []string  `json:"protected_patterns,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// File is one canonical file row, keyed by (project id, path).
type File struct {
	ProjectID string    `json:"project_id"`
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest holds the fields for creating a project.
type CreateRequest struct {
	Name              string   `json:"name"`
	SafeMode          bool     `json:"safe_mode"`
	ProtectedPatterns []string `json:"protected_patterns,omitempty"`
}

var ErrNameRequired = errors.New("name is required")

// Validate checks the request for structural correctness.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return ErrNameRequired
	}
	return nil
}
