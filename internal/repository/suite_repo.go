package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/tree"
)

// SuiteRepository handles test suite persistence. Tree placement columns
// (tree_id, path) are maintained here on insert and by tree.Index on move.
type SuiteRepository struct {
	db *sqlx.DB
}

// NewSuiteRepository creates a new suite repository.
func NewSuiteRepository(db *sqlx.DB) *SuiteRepository {
	return &SuiteRepository{db: db}
}

type dbSuite struct {
	ID          int64         `db:"id"`
	ProjectID   int64         `db:"project_id"`
	ParentID    sql.NullInt64 `db:"parent_id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	TreeID      int64         `db:"tree_id"`
	Path        string        `db:"path"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

func (s *dbSuite) toModel() *model.Suite {
	return &model.Suite{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		ParentID:    intPtr(s.ParentID),
		Name:        s.Name,
		Description: s.Description,
		TreeID:      s.TreeID,
		Path:        s.Path,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

const suiteColumns = `id, project_id, parent_id, name, description, tree_id, path, created_at, updated_at`

// Create inserts a suite and computes its tree placement. A root suite
// starts its own tree; a child joins the parent's tree under the parent's
// path.
func (r *SuiteRepository) Create(ctx context.Context, tx *sqlx.Tx, s *model.Suite) error {
	query := `
		INSERT INTO testsuites (project_id, parent_id, name, description, tree_id, path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, '', now(), now())
		RETURNING id, created_at, updated_at
	`
	row := tx.QueryRowxContext(ctx, query, s.ProjectID, nullInt(s.ParentID), s.Name, s.Description)
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create suite: %w", err)
	}

	if s.ParentID == nil {
		s.TreeID = s.ID
		s.Path = tree.Segment(s.ID)
	} else {
		var parent dbSuite
		err := tx.GetContext(ctx, &parent,
			`SELECT `+suiteColumns+` FROM testsuites WHERE id = $1 AND NOT is_deleted`, *s.ParentID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("parent suite")
		}
		if err != nil {
			return fmt.Errorf("failed to get parent suite: %w", err)
		}
		if parent.ProjectID != s.ProjectID {
			return apperr.New(apperr.CodeTestPlanParent, "parent suite belongs to another project")
		}
		s.TreeID = parent.TreeID
		s.Path = tree.ChildPath(parent.Path, s.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE testsuites SET tree_id = $1, path = $2 WHERE id = $3`, s.TreeID, s.Path, s.ID); err != nil {
		return fmt.Errorf("failed to place suite in tree: %w", err)
	}
	return nil
}

// Get retrieves a live suite by id.
func (r *SuiteRepository) Get(ctx context.Context, id int64) (*model.Suite, error) {
	var s dbSuite
	query := `SELECT ` + suiteColumns + ` FROM testsuites WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &s, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("suite")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suite: %w", err)
	}
	return s.toModel(), nil
}

// Update persists name and description. Reparenting goes through tree.Index.
func (r *SuiteRepository) Update(ctx context.Context, q sqlx.ExtContext, s *model.Suite) error {
	query := `
		UPDATE testsuites SET name = $1, description = $2, updated_at = now()
		WHERE id = $3 AND NOT is_deleted
	`
	result, err := q.ExecContext(ctx, query, s.Name, s.Description, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update suite: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("suite")
	}
	return nil
}

// List retrieves live suites of a project matching the filter, ordered by
// tree path so parents precede children.
func (r *SuiteRepository) List(ctx context.Context, f model.ListFilter) ([]*model.Suite, error) {
	query := `SELECT ` + suiteColumns + ` FROM testsuites WHERE project_id = $1 AND NOT is_deleted`
	args := []interface{}{f.ProjectID}
	if f.ParentIsNull {
		query += " AND parent_id IS NULL"
	} else if f.ParentID != nil {
		args = append(args, *f.ParentID)
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	query += " ORDER BY tree_id, path"

	var rows []dbSuite
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list suites: %w", err)
	}
	suites := make([]*model.Suite, len(rows))
	for i := range rows {
		suites[i] = rows[i].toModel()
	}
	return suites, nil
}

// ListByIDs retrieves live suites by id, ordered by path.
func (r *SuiteRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Suite, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []dbSuite
	query := `SELECT ` + suiteColumns + ` FROM testsuites WHERE id = ANY($1) AND NOT is_deleted ORDER BY tree_id, path`
	if err := r.db.SelectContext(ctx, &rows, query, int64Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list suites by ids: %w", err)
	}
	suites := make([]*model.Suite, len(rows))
	for i := range rows {
		suites[i] = rows[i].toModel()
	}
	return suites, nil
}

// DescendantIDs returns ids of the suite's subtree, including the suite
// itself. Used to expand suite filters to whole branches.
func (r *SuiteRepository) DescendantIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	roots, err := r.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(ids))
	var out []int64
	for _, root := range roots {
		var descIDs []int64
		query := `
			SELECT id FROM testsuites
			WHERE tree_id = $1 AND (path = $2 OR path LIKE $3) AND NOT is_deleted
		`
		if err := r.db.SelectContext(ctx, &descIDs, query, root.TreeID, root.Path, root.Path+".%"); err != nil {
			return nil, fmt.Errorf("failed to expand suite subtree: %w", err)
		}
		for _, id := range descIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}
