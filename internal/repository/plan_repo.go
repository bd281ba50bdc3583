package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/tree"
)

// PlanRepository handles test plan and parameter persistence. Plans form
// their own materialized-path tree, independent from suites.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository creates a new plan repository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

type dbPlan struct {
	ID           int64         `db:"id"`
	ProjectID    int64         `db:"project_id"`
	ParentID     sql.NullInt64 `db:"parent_id"`
	Name         string        `db:"name"`
	Description  string        `db:"description"`
	StartedAt    time.Time     `db:"started_at"`
	DueDate      time.Time     `db:"due_date"`
	FinishedAt   sql.NullTime  `db:"finished_at"`
	IsArchive    bool          `db:"is_archive"`
	Attributes   []byte        `db:"attributes"`
	ParameterIDs pq.Int64Array `db:"parameter_ids"`
	TreeID       int64         `db:"tree_id"`
	Path         string        `db:"path"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

func (p *dbPlan) toModel() *model.Plan {
	out := &model.Plan{
		ID:           p.ID,
		ProjectID:    p.ProjectID,
		ParentID:     intPtr(p.ParentID),
		Name:         p.Name,
		Description:  p.Description,
		StartedAt:    p.StartedAt,
		DueDate:      p.DueDate,
		IsArchive:    p.IsArchive,
		Attributes:   unmarshalAttrs(p.Attributes),
		ParameterIDs: p.ParameterIDs,
		TreeID:       p.TreeID,
		Path:         p.Path,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.FinishedAt.Valid {
		t := p.FinishedAt.Time
		out.FinishedAt = &t
	}
	return out
}

const planColumns = `id, project_id, parent_id, name, description, started_at, due_date,
	finished_at, is_archive, attributes, parameter_ids, tree_id, path, created_at, updated_at`

// Create inserts a plan and computes its tree placement.
func (r *PlanRepository) Create(ctx context.Context, tx *sqlx.Tx, p *model.Plan) error {
	attrs, err := marshalJSON(p.Attributes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO testplans (project_id, parent_id, name, description, started_at, due_date,
			attributes, parameter_ids, tree_id, path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, '', now(), now())
		RETURNING id, created_at, updated_at
	`
	row := tx.QueryRowxContext(ctx, query,
		p.ProjectID, nullInt(p.ParentID), p.Name, p.Description, p.StartedAt, p.DueDate,
		attrs, pq.Array(p.ParameterIDs))
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	if p.ParentID == nil {
		p.TreeID = p.ID
		p.Path = tree.Segment(p.ID)
	} else {
		var parent dbPlan
		err := tx.GetContext(ctx, &parent,
			`SELECT `+planColumns+` FROM testplans WHERE id = $1 AND NOT is_deleted`, *p.ParentID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("parent plan")
		}
		if err != nil {
			return fmt.Errorf("failed to get parent plan: %w", err)
		}
		if parent.ProjectID != p.ProjectID {
			return apperr.New(apperr.CodeTestPlanParent, "parent plan belongs to another project")
		}
		p.TreeID = parent.TreeID
		p.Path = tree.ChildPath(parent.Path, p.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE testplans SET tree_id = $1, path = $2 WHERE id = $3`, p.TreeID, p.Path, p.ID); err != nil {
		return fmt.Errorf("failed to place plan in tree: %w", err)
	}
	return nil
}

// Get retrieves a live plan by id.
func (r *PlanRepository) Get(ctx context.Context, id int64) (*model.Plan, error) {
	var p dbPlan
	query := `SELECT ` + planColumns + ` FROM testplans WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("plan")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p.toModel(), nil
}

// Update persists mutable plan fields. Reparenting goes through tree.Index.
func (r *PlanRepository) Update(ctx context.Context, q sqlx.ExtContext, p *model.Plan) error {
	attrs, err := marshalJSON(p.Attributes)
	if err != nil {
		return err
	}
	var finishedAt interface{}
	if p.FinishedAt != nil {
		finishedAt = *p.FinishedAt
	}
	query := `
		UPDATE testplans SET
			name = $1, description = $2, started_at = $3, due_date = $4, finished_at = $5,
			attributes = $6, updated_at = now()
		WHERE id = $7 AND NOT is_deleted
	`
	result, err := q.ExecContext(ctx, query,
		p.Name, p.Description, p.StartedAt, p.DueDate, finishedAt, attrs, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("plan")
	}
	return nil
}

var planOrderColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"started_at": "started_at",
	"due_date":   "due_date",
	"created_at": "created_at",
}

// List retrieves live plans matching the filter. Unknown ordering keys are
// ignored; the default order is tree order.
func (r *PlanRepository) List(ctx context.Context, f model.ListFilter) ([]*model.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM testplans WHERE project_id = $1 AND NOT is_deleted`
	args := []interface{}{f.ProjectID}
	if f.ParentIsNull {
		query += " AND parent_id IS NULL"
	} else if f.ParentID != nil {
		args = append(args, *f.ParentID)
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	if f.IsArchive != nil {
		args = append(args, *f.IsArchive)
		query += fmt.Sprintf(" AND is_archive = $%d", len(args))
	} else {
		query += " AND NOT is_archive"
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	if len(f.Parameters) > 0 {
		args = append(args, int64Array(f.Parameters))
		query += fmt.Sprintf(" AND parameter_ids @> $%d", len(args))
	}
	for _, key := range f.Attributes {
		args = append(args, key)
		query += fmt.Sprintf(" AND attributes ? $%d", len(args))
	}
	if len(f.AnyAttributes) > 0 {
		args = append(args, pq.Array(f.AnyAttributes))
		query += fmt.Sprintf(" AND attributes ?| $%d", len(args))
	}

	var order []string
	for _, key := range f.Ordering {
		desc := strings.HasPrefix(key, "-")
		col, ok := planOrderColumns[strings.TrimPrefix(key, "-")]
		if !ok {
			continue
		}
		if desc {
			col += " DESC"
		}
		order = append(order, col)
	}
	if len(order) == 0 {
		order = []string{"tree_id", "path"}
	}
	query += " ORDER BY " + strings.Join(order, ", ")
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var rows []dbPlan
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	plans := make([]*model.Plan, len(rows))
	for i := range rows {
		plans[i] = rows[i].toModel()
	}
	return plans, nil
}

// ListByIDs retrieves live plans by id in tree order.
func (r *PlanRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Plan, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []dbPlan
	query := `SELECT ` + planColumns + ` FROM testplans WHERE id = ANY($1) AND NOT is_deleted ORDER BY tree_id, path`
	if err := r.db.SelectContext(ctx, &rows, query, int64Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list plans by ids: %w", err)
	}
	plans := make([]*model.Plan, len(rows))
	for i := range rows {
		plans[i] = rows[i].toModel()
	}
	return plans, nil
}

// DescendantIDs returns the subtree ids of a plan, including itself.
func (r *PlanRepository) DescendantIDs(ctx context.Context, id int64) ([]int64, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var ids []int64
	query := `
		SELECT id FROM testplans
		WHERE tree_id = $1 AND (path = $2 OR path LIKE $3) AND NOT is_deleted
	`
	if err := r.db.SelectContext(ctx, &ids, query, p.TreeID, p.Path, p.Path+".%"); err != nil {
		return nil, fmt.Errorf("failed to expand plan subtree: %w", err)
	}
	return ids, nil
}

// GetParameters retrieves live parameters by id.
func (r *PlanRepository) GetParameters(ctx context.Context, ids []int64) ([]*model.Parameter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var params []*model.Parameter
	query := `
		SELECT id, project_id, group_name, data FROM parameters
		WHERE id = ANY($1) AND NOT is_deleted
		ORDER BY group_name, id
	`
	if err := r.db.SelectContext(ctx, &params, query, int64Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get parameters: %w", err)
	}
	return params, nil
}

// ListParameters retrieves a project's live parameters grouped by name.
func (r *PlanRepository) ListParameters(ctx context.Context, projectID int64) ([]*model.Parameter, error) {
	var params []*model.Parameter
	query := `
		SELECT id, project_id, group_name, data FROM parameters
		WHERE project_id = $1 AND NOT is_deleted
		ORDER BY group_name, id
	`
	if err := r.db.SelectContext(ctx, &params, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list parameters: %w", err)
	}
	return params, nil
}

// CreateParameter inserts a parameter.
func (r *PlanRepository) CreateParameter(ctx context.Context, p *model.Parameter) error {
	query := `
		INSERT INTO parameters (project_id, group_name, data)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	row := r.db.QueryRowxContext(ctx, query, p.ProjectID, p.GroupName, p.Data)
	if err := row.Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to create parameter: %w", err)
	}
	return nil
}

// DeleteParameter soft-deletes a parameter. Plans that already reference it
// keep the id; the title join simply drops missing parameters.
func (r *PlanRepository) DeleteParameter(ctx context.Context, id int64) error {
	query := `UPDATE parameters SET is_deleted = true, deleted_at = now() WHERE id = $1 AND NOT is_deleted`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete parameter: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("parameter")
	}
	return nil
}
