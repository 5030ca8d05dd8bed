package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/project"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Projects ---

const projectColumns = `id, name, safe_mode, protected_patterns, created_at, updated_at`

func scanProject(scanner interface{ Scan(dest ...any) error }) (project.Project, error) {
	var p project.Project
	err := scanner.Scan(&p.ID, &p.Name, &p.SafeMode, &p.ProtectedPatterns, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) CreateProject(ctx context.Context, req project.CreateRequest) (*project.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	patterns := req.ProtectedPatterns
	if patterns == nil {
		patterns = []string{}
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO projects (name, safe_mode, protected_patterns)
		 VALUES ($1, $2, $3)
		 RETURNING `+projectColumns,
		req.Name, req.SafeMode, patterns)

	p, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)

	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- Sandbox runs ---

const runColumns = `id, project_id, actor_id, source, metadata, status, checks, error_code, error, promoted_at, created_at, updated_at`

func scanRun(scanner interface{ Scan(dest ...any) error }) (run.SandboxRun, error) {
	var (
		r        run.SandboxRun
		metadata []byte
		checks   []byte
	)
	err := scanner.Scan(&r.ID, &r.ProjectID, &r.ActorID, &r.Source, &metadata, &r.Status,
		&checks, &r.ErrorCode, &r.Error, &r.PromotedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return r, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(checks) > 0 && string(checks) != "{}" {
		if err := json.Unmarshal(checks, &r.Checks); err != nil {
			return r, fmt.Errorf("unmarshal checks: %w", err)
		}
	}
	return r, nil
}

func (s *Store) CreateRun(ctx context.Context, r *run.SandboxRun) error {
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if r.Metadata == nil {
		metadata = []byte(`{}`)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sandbox_runs (id, project_id, actor_id, source, metadata, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		r.ID, r.ProjectID, r.ActorID, string(r.Source), metadata, string(r.Status))
	if err := row.Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*run.SandboxRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM sandbox_runs WHERE id = $1`, id)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get run %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) ListRunsByProject(ctx context.Context, projectID string) ([]run.SandboxRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM sandbox_runs WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []run.SandboxRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpdateRunStatus advances a run's lifecycle state. The WHERE clause enforces
// the legal predecessor so terminal runs can never be resurrected by a racing
// writer.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, status run.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sandbox_runs SET status = $2, updated_at = now()
		 WHERE id = $1 AND status NOT IN ('promoted', 'rejected')`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("update run status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) SetRunChecks(ctx context.Context, id string, checks run.CheckSet) error {
	data, err := json.Marshal(checks)
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sandbox_runs SET checks = $2, updated_at = now() WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("set run checks %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set run checks %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) FinalizeRun(ctx context.Context, id string, status run.Status, errorCode, errMsg string, promotedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sandbox_runs SET status = $2, error_code = $3, error = $4, promoted_at = $5, updated_at = now()
		 WHERE id = $1 AND status NOT IN ('promoted', 'rejected')`,
		id, string(status), errorCode, errMsg, promotedAt)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
