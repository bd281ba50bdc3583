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
)

// CaseRepository handles test case and step persistence. Versioning lives in
// the history store; this repository only deals with the live rows.
type CaseRepository struct {
	db *sqlx.DB
}

// NewCaseRepository creates a new case repository.
func NewCaseRepository(db *sqlx.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

type dbCase struct {
	ID          int64         `db:"id"`
	ProjectID   int64         `db:"project_id"`
	SuiteID     int64         `db:"suite_id"`
	Name        string        `db:"name"`
	Setup       string        `db:"setup"`
	Scenario    string        `db:"scenario"`
	Expected    string        `db:"expected"`
	Teardown    string        `db:"teardown"`
	Estimate    sql.NullInt64 `db:"estimate"`
	Description string        `db:"description"`
	IsSteps     bool          `db:"is_steps"`
	IsArchive   bool          `db:"is_archive"`
	Attributes  []byte        `db:"attributes"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

func (c *dbCase) toModel() *model.Case {
	return &model.Case{
		ID:          c.ID,
		ProjectID:   c.ProjectID,
		SuiteID:     c.SuiteID,
		Name:        c.Name,
		Setup:       c.Setup,
		Scenario:    c.Scenario,
		Expected:    c.Expected,
		Teardown:    c.Teardown,
		Estimate:    intPtr(c.Estimate),
		Description: c.Description,
		IsSteps:     c.IsSteps,
		IsArchive:   c.IsArchive,
		Attributes:  unmarshalAttrs(c.Attributes),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

const caseColumns = `id, project_id, suite_id, name, setup, scenario, expected, teardown,
	estimate, description, is_steps, is_archive, attributes, created_at, updated_at`

// Create inserts a case.
func (r *CaseRepository) Create(ctx context.Context, tx *sqlx.Tx, c *model.Case) error {
	attrs, err := marshalJSON(c.Attributes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO testcases (project_id, suite_id, name, setup, scenario, expected, teardown,
			estimate, description, is_steps, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING id, created_at, updated_at
	`
	row := tx.QueryRowxContext(ctx, query,
		c.ProjectID, c.SuiteID, c.Name, c.Setup, c.Scenario, c.Expected, c.Teardown,
		nullInt(c.Estimate), c.Description, c.IsSteps, attrs)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

// Get retrieves a live case by id, without steps.
func (r *CaseRepository) Get(ctx context.Context, id int64) (*model.Case, error) {
	var c dbCase
	query := `SELECT ` + caseColumns + ` FROM testcases WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("case")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c.toModel(), nil
}

// GetForUpdate locks the live case row for the duration of the transaction.
func (r *CaseRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Case, error) {
	var c dbCase
	query := `SELECT ` + caseColumns + ` FROM testcases WHERE id = $1 AND NOT is_deleted FOR UPDATE`
	err := tx.GetContext(ctx, &c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("case")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock case: %w", err)
	}
	return c.toModel(), nil
}

// Update persists the full mutable field set of a case.
func (r *CaseRepository) Update(ctx context.Context, q sqlx.ExtContext, c *model.Case) error {
	attrs, err := marshalJSON(c.Attributes)
	if err != nil {
		return err
	}
	query := `
		UPDATE testcases SET
			suite_id = $1, name = $2, setup = $3, scenario = $4, expected = $5, teardown = $6,
			estimate = $7, description = $8, is_steps = $9, attributes = $10, updated_at = now()
		WHERE id = $11 AND NOT is_deleted
	`
	result, err := q.ExecContext(ctx, query,
		c.SuiteID, c.Name, c.Setup, c.Scenario, c.Expected, c.Teardown,
		nullInt(c.Estimate), c.Description, c.IsSteps, attrs, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("case")
	}
	return nil
}

// List retrieves live cases. Suite filtering is by the pre-expanded id set;
// the caller resolves subtrees. Label filtering happens in the service.
func (r *CaseRepository) List(ctx context.Context, f model.ListFilter, suiteIDs []int64) ([]*model.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM testcases WHERE project_id = $1 AND NOT is_deleted`
	args := []interface{}{f.ProjectID}
	if suiteIDs != nil {
		args = append(args, int64Array(suiteIDs))
		query += fmt.Sprintf(" AND suite_id = ANY($%d)", len(args))
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
	for _, key := range f.Attributes {
		args = append(args, key)
		query += fmt.Sprintf(" AND attributes ? $%d", len(args))
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var rows []dbCase
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	cases := make([]*model.Case, len(rows))
	for i := range rows {
		cases[i] = rows[i].toModel()
	}
	return cases, nil
}

// ListByIDs retrieves live cases by id.
func (r *CaseRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Case, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []dbCase
	query := `SELECT ` + caseColumns + ` FROM testcases WHERE id = ANY($1) AND NOT is_deleted ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, int64Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to list cases by ids: %w", err)
	}
	cases := make([]*model.Case, len(rows))
	for i := range rows {
		cases[i] = rows[i].toModel()
	}
	return cases, nil
}

type dbStep struct {
	ID        int64  `db:"id"`
	CaseID    int64  `db:"case_id"`
	Name      string `db:"name"`
	Scenario  string `db:"scenario"`
	Expected  string `db:"expected"`
	SortOrder int    `db:"sort_order"`
}

func (s *dbStep) toModel() *model.Step {
	return &model.Step{
		ID:        s.ID,
		CaseID:    s.CaseID,
		Name:      s.Name,
		Scenario:  s.Scenario,
		Expected:  s.Expected,
		SortOrder: s.SortOrder,
	}
}

// ListSteps retrieves the live steps of a case in sort order.
func (r *CaseRepository) ListSteps(ctx context.Context, caseID int64) ([]*model.Step, error) {
	var rows []dbStep
	query := `
		SELECT id, case_id, name, scenario, expected, sort_order
		FROM teststeps WHERE case_id = $1 AND NOT is_deleted
		ORDER BY sort_order, id
	`
	if err := r.db.SelectContext(ctx, &rows, query, caseID); err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	steps := make([]*model.Step, len(rows))
	for i := range rows {
		steps[i] = rows[i].toModel()
	}
	return steps, nil
}

// CreateStep inserts a step.
func (r *CaseRepository) CreateStep(ctx context.Context, tx *sqlx.Tx, s *model.Step) error {
	query := `
		INSERT INTO teststeps (case_id, name, scenario, expected, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	row := tx.QueryRowxContext(ctx, query, s.CaseID, s.Name, s.Scenario, s.Expected, s.SortOrder)
	if err := row.Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}
	return nil
}

// UpdateStep persists a live step.
func (r *CaseRepository) UpdateStep(ctx context.Context, tx *sqlx.Tx, s *model.Step) error {
	query := `
		UPDATE teststeps SET name = $1, scenario = $2, expected = $3, sort_order = $4
		WHERE id = $5 AND case_id = $6 AND NOT is_deleted
	`
	result, err := tx.ExecContext(ctx, query, s.Name, s.Scenario, s.Expected, s.SortOrder, s.ID, s.CaseID)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("step")
	}
	return nil
}

// SoftDeleteSteps marks steps deleted. Step removal is part of case editing,
// not the cascade engine.
func (r *CaseRepository) SoftDeleteSteps(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE teststeps SET is_deleted = true, deleted_at = now() WHERE id = ANY($1)`
	if _, err := tx.ExecContext(ctx, query, int64Array(ids)); err != nil {
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	return nil
}
