package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

// ProjectRepository handles project persistence.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

type dbProject struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	IsArchive   bool      `db:"is_archive"`
	IsPrivate   bool      `db:"is_private"`
	Settings    []byte    `db:"settings"`
	CasesCount  int64     `db:"cases_count"`
	SuitesCount int64     `db:"suites_count"`
	PlansCount  int64     `db:"plans_count"`
	TestsCount  int64     `db:"tests_count"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (p *dbProject) toModel() *model.Project {
	out := &model.Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		IsArchive:   p.IsArchive,
		IsPrivate:   p.IsPrivate,
		CasesCount:  p.CasesCount,
		SuitesCount: p.SuitesCount,
		PlansCount:  p.PlansCount,
		TestsCount:  p.TestsCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if len(p.Settings) > 0 {
		json.Unmarshal(p.Settings, &out.Settings)
	}
	return out
}

const projectColumns = `id, name, description, is_archive, is_private, settings,
	cases_count, suites_count, plans_count, tests_count, created_at, updated_at`

// Create inserts a new project.
func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	settings, err := marshalJSON(p.Settings)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO projects (name, description, is_archive, is_private, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, created_at, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query, p.Name, p.Description, p.IsArchive, p.IsPrivate, settings)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// Get retrieves a live project by id.
func (r *ProjectRepository) Get(ctx context.Context, id int64) (*model.Project, error) {
	var p dbProject
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1 AND NOT is_deleted`, projectColumns)
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p.toModel(), nil
}

// Update persists mutable project fields.
func (r *ProjectRepository) Update(ctx context.Context, p *model.Project) error {
	settings, err := marshalJSON(p.Settings)
	if err != nil {
		return err
	}
	query := `
		UPDATE projects SET
			name = $1, description = $2, is_private = $3, settings = $4, updated_at = now()
		WHERE id = $5 AND NOT is_deleted
	`
	result, err := r.db.ExecContext(ctx, query, p.Name, p.Description, p.IsPrivate, settings, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("project")
	}
	return nil
}

// List retrieves live projects, optionally restricted to the given ids
// (membership restriction for external roles).
func (r *ProjectRepository) List(ctx context.Context, isArchive *bool, onlyIDs []int64) ([]*model.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE NOT is_deleted`, projectColumns)
	args := []interface{}{}
	if isArchive != nil {
		args = append(args, *isArchive)
		query += fmt.Sprintf(" AND is_archive = $%d", len(args))
	}
	if onlyIDs != nil {
		args = append(args, int64Array(onlyIDs))
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args))
	}
	query += " ORDER BY name"

	var rows []dbProject
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	projects := make([]*model.Project, len(rows))
	for i := range rows {
		projects[i] = rows[i].toModel()
	}
	return projects, nil
}

// Recount refreshes the precomputed statistics tuple from the live rows.
// Called in the same transaction as entity insert/soft-delete/hard-delete/
// archive transitions.
func (r *ProjectRepository) Recount(ctx context.Context, q sqlx.ExtContext, projectID int64) error {
	query := `
		UPDATE projects SET
			cases_count  = (SELECT count(*) FROM testcases  WHERE project_id = $1 AND NOT is_deleted AND NOT is_archive),
			suites_count = (SELECT count(*) FROM testsuites WHERE project_id = $1 AND NOT is_deleted),
			plans_count  = (SELECT count(*) FROM testplans  WHERE project_id = $1 AND NOT is_deleted AND NOT is_archive),
			tests_count  = (SELECT count(*) FROM tests      WHERE project_id = $1 AND NOT is_deleted AND NOT is_archive)
		WHERE id = $1
	`
	if _, err := q.ExecContext(ctx, query, projectID); err != nil {
		return fmt.Errorf("failed to recount project statistics: %w", err)
	}
	return nil
}
