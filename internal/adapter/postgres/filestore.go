package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/project"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
)

// --- Canonical files ---

func (s *Store) GetFile(ctx context.Context, projectID, path string) (*project.File, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT project_id, path, content, updated_at FROM project_files
		 WHERE project_id = $1 AND path = $2`, projectID, path)

	var f project.File
	if err := row.Scan(&f.ProjectID, &f.Path, &f.Content, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get file %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get file %s: %w", path, err)
	}
	return &f, nil
}

func (s *Store) PutFile(ctx context.Context, projectID, path, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO project_files (project_id, path, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, path) DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
		projectID, path, content)
	if err != nil {
		return fmt.Errorf("put file %s: %w", path, err)
	}
	return nil
}

func (s *Store) ListFiles(ctx context.Context, projectID string) ([]project.File, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id, path, content, updated_at FROM project_files
		 WHERE project_id = $1 ORDER BY path ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []project.File
	for rows.Next() {
		var f project.File
		if err := rows.Scan(&f.ProjectID, &f.Path, &f.Content, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *Store) ListFilePaths(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path FROM project_files WHERE project_id = $1 ORDER BY path ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// --- Sandbox arena ---

// SnapshotFiles copies every canonical file row into the run's arena in one
// statement, so the snapshot observes a single consistent state.
func (s *Store) SnapshotFiles(ctx context.Context, runID, projectID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO sandbox_files (run_id, path, content)
		 SELECT $1, path, content FROM project_files WHERE project_id = $2`,
		runID, projectID)
	if err != nil {
		return 0, fmt.Errorf("snapshot files for run %s: %w", runID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GetSandboxFile(ctx context.Context, runID, path string) (*run.SandboxFile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT run_id, path, content, edited FROM sandbox_files
		 WHERE run_id = $1 AND path = $2`, runID, path)

	var f run.SandboxFile
	if err := row.Scan(&f.RunID, &f.Path, &f.Content, &f.Edited); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get sandbox file %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get sandbox file %s: %w", path, err)
	}
	return &f, nil
}

func (s *Store) PutSandboxFile(ctx context.Context, runID, path, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sandbox_files (run_id, path, content, edited)
		 VALUES ($1, $2, $3, TRUE)
		 ON CONFLICT (run_id, path) DO UPDATE SET content = EXCLUDED.content, edited = TRUE`,
		runID, path, content)
	if err != nil {
		return fmt.Errorf("put sandbox file %s: %w", path, err)
	}
	return nil
}

func (s *Store) ListSandboxFiles(ctx context.Context, runID string) ([]run.SandboxFile, error) {
	return s.listSandbox(ctx, runID, false)
}

func (s *Store) ListEditedFiles(ctx context.Context, runID string) ([]run.SandboxFile, error) {
	return s.listSandbox(ctx, runID, true)
}

func (s *Store) listSandbox(ctx context.Context, runID string, editedOnly bool) ([]run.SandboxFile, error) {
	q := `SELECT run_id, path, content, edited FROM sandbox_files WHERE run_id = $1`
	if editedOnly {
		q += ` AND edited`
	}
	q += ` ORDER BY path ASC`

	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list sandbox files: %w", err)
	}
	defer rows.Close()

	var files []run.SandboxFile
	for rows.Next() {
		var f run.SandboxFile
		if err := rows.Scan(&f.RunID, &f.Path, &f.Content, &f.Edited); err != nil {
			return nil, fmt.Errorf("scan sandbox file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Promotion ---

// PromoteRun copies the run's edited files into canonical storage. Each file
// is a single-row upsert, so it commits or fails on its own; a failure is
// recorded as a conflict and the loop continues. Promotions for the same
// project are serialized with a session advisory lock held on a pinned
// connection for the duration of the copy loop.
func (s *Store) PromoteRun(ctx context.Context, runID string) (*run.ApplyResult, error) {
	r, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	edited, err := s.ListEditedFiles(ctx, runID)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, r.ProjectID); err != nil {
		return nil, fmt.Errorf("acquire promotion lock: %w", err)
	}
	defer func() {
		// Unlock on the same session; use Background so a cancelled request
		// cannot leave the lock held.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, r.ProjectID)
	}()

	result := &run.ApplyResult{}
	for _, f := range edited {
		_, err := conn.Exec(ctx,
			`INSERT INTO project_files (project_id, path, content)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (project_id, path) DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
			r.ProjectID, f.Path, f.Content)
		if err != nil {
			result.Conflicts = append(result.Conflicts, run.Conflict{Path: f.Path, Message: err.Error()})
			continue
		}
		result.FilesEdited = append(result.FilesEdited, f.Path)
	}
	return result, nil
}
