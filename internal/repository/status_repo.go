package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

// StatusRepository handles result status persistence. SYSTEM statuses carry a
// NULL project and are shared; CUSTOM statuses belong to one project.
type StatusRepository struct {
	db *sqlx.DB
}

// NewStatusRepository creates a new status repository.
func NewStatusRepository(db *sqlx.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

type dbStatus struct {
	ID        int64         `db:"id"`
	ProjectID sql.NullInt64 `db:"project_id"`
	Name      string        `db:"name"`
	Color     string        `db:"color"`
	Type      string        `db:"type"`
}

func (s *dbStatus) toModel() *model.ResultStatus {
	return &model.ResultStatus{
		ID:        s.ID,
		ProjectID: intPtr(s.ProjectID),
		Name:      s.Name,
		Color:     s.Color,
		Type:      model.StatusType(s.Type),
	}
}

const statusColumns = `id, project_id, name, color, type`

// Get retrieves a live status by id. The synthetic Untested status is served
// without touching storage.
func (r *StatusRepository) Get(ctx context.Context, id int64) (*model.ResultStatus, error) {
	if id == model.UntestedStatusID {
		return model.UntestedStatus(), nil
	}
	var s dbStatus
	query := `SELECT ` + statusColumns + ` FROM statuses WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &s, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("status")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return s.toModel(), nil
}

// Catalog retrieves the statuses usable in a project: all SYSTEM statuses
// plus the project's CUSTOM ones.
func (r *StatusRepository) Catalog(ctx context.Context, projectID int64) ([]*model.ResultStatus, error) {
	var rows []dbStatus
	query := `
		SELECT ` + statusColumns + ` FROM statuses
		WHERE NOT is_deleted AND (project_id IS NULL OR project_id = $1)
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &rows, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to load status catalog: %w", err)
	}
	statuses := make([]*model.ResultStatus, len(rows))
	for i := range rows {
		statuses[i] = rows[i].toModel()
	}
	return statuses, nil
}

// Create inserts a status, enforcing case-insensitive name uniqueness within
// the status's scope (instance-wide for SYSTEM, per project for CUSTOM).
func (r *StatusRepository) Create(ctx context.Context, s *model.ResultStatus) error {
	var exists bool
	check := `
		SELECT EXISTS (
			SELECT 1 FROM statuses
			WHERE NOT is_deleted AND lower(name) = lower($1)
			AND project_id IS NOT DISTINCT FROM $2
		)
	`
	if err := r.db.GetContext(ctx, &exists, check, s.Name, nullInt(s.ProjectID)); err != nil {
		return fmt.Errorf("failed to check status uniqueness: %w", err)
	}
	if exists {
		return apperr.New(apperr.CodeDuplicateStatus, "status name already in use")
	}

	query := `
		INSERT INTO statuses (project_id, name, color, type)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	row := r.db.QueryRowxContext(ctx, query, nullInt(s.ProjectID), s.Name, s.Color, string(s.Type))
	if err := row.Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to create status: %w", err)
	}
	return nil
}

// Update persists name and color. SYSTEM statuses are immutable through the
// API; the service enforces that before calling here.
func (r *StatusRepository) Update(ctx context.Context, s *model.ResultStatus) error {
	query := `UPDATE statuses SET name = $1, color = $2 WHERE id = $3 AND NOT is_deleted`
	result, err := r.db.ExecContext(ctx, query, s.Name, s.Color, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("status")
	}
	return nil
}

// Delete soft-deletes a CUSTOM status. Results referencing it keep the id.
func (r *StatusRepository) Delete(ctx context.Context, id int64) error {
	query := `UPDATE statuses SET is_deleted = true, deleted_at = now() WHERE id = $1 AND NOT is_deleted AND type <> 'SYSTEM'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("status")
	}
	return nil
}

// SeedSystem inserts missing SYSTEM statuses from the startup catalog.
// Existing names are left untouched so operator edits survive restarts.
func (r *StatusRepository) SeedSystem(ctx context.Context, statuses []*model.ResultStatus) error {
	query := `
		INSERT INTO statuses (project_id, name, color, type)
		SELECT NULL, $1, $2, 'SYSTEM'
		WHERE NOT EXISTS (
			SELECT 1 FROM statuses
			WHERE NOT is_deleted AND project_id IS NULL AND lower(name) = lower($1)
		)
	`
	for _, s := range statuses {
		if _, err := r.db.ExecContext(ctx, query, s.Name, s.Color); err != nil {
			return fmt.Errorf("failed to seed system status %q: %w", s.Name, err)
		}
	}
	return nil
}
