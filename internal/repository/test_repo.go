package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

// TestRepository handles test persistence. Tests are created by plan fan-out
// and reconciliation, never directly.
type TestRepository struct {
	db *sqlx.DB
}

// NewTestRepository creates a new test repository.
func NewTestRepository(db *sqlx.DB) *TestRepository {
	return &TestRepository{db: db}
}

type dbTest struct {
	ID           int64         `db:"id"`
	ProjectID    int64         `db:"project_id"`
	PlanID       int64         `db:"plan_id"`
	CaseID       int64         `db:"case_id"`
	AssigneeID   sql.NullInt64 `db:"assignee_id"`
	IsArchive    bool          `db:"is_archive"`
	LastStatusID sql.NullInt64 `db:"last_status_id"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

func (t *dbTest) toModel() *model.Test {
	return &model.Test{
		ID:           t.ID,
		ProjectID:    t.ProjectID,
		PlanID:       t.PlanID,
		CaseID:       t.CaseID,
		AssigneeID:   intPtr(t.AssigneeID),
		IsArchive:    t.IsArchive,
		LastStatusID: intPtr(t.LastStatusID),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

const testColumns = `id, project_id, plan_id, case_id, assignee_id, is_archive,
	last_status_id, created_at, updated_at`

// CreateBatch inserts one test per (plan, case) pair.
func (r *TestRepository) CreateBatch(ctx context.Context, tx *sqlx.Tx, tests []*model.Test) error {
	query := `
		INSERT INTO tests (project_id, plan_id, case_id, assignee_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, created_at, updated_at
	`
	for _, t := range tests {
		row := tx.QueryRowxContext(ctx, query, t.ProjectID, t.PlanID, t.CaseID, nullInt(t.AssigneeID))
		if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return fmt.Errorf("failed to create test: %w", err)
		}
	}
	return nil
}

// Get retrieves a live test by id.
func (r *TestRepository) Get(ctx context.Context, id int64) (*model.Test, error) {
	var t dbTest
	query := `SELECT ` + testColumns + ` FROM tests WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("test")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return t.toModel(), nil
}

// ListByPlans retrieves live tests of the given plans. Archived tests are
// excluded unless includeArchived is set.
func (r *TestRepository) ListByPlans(ctx context.Context, planIDs []int64, includeArchived bool) ([]*model.Test, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + testColumns + ` FROM tests WHERE plan_id = ANY($1) AND NOT is_deleted`
	if !includeArchived {
		query += " AND NOT is_archive"
	}
	query += " ORDER BY id"

	var rows []dbTest
	if err := r.db.SelectContext(ctx, &rows, query, int64Array(planIDs)); err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	tests := make([]*model.Test, len(rows))
	for i := range rows {
		tests[i] = rows[i].toModel()
	}
	return tests, nil
}

// ListByCase retrieves live tests spawned from one case across plans.
func (r *TestRepository) ListByCase(ctx context.Context, caseID int64) ([]*model.Test, error) {
	var rows []dbTest
	query := `SELECT ` + testColumns + ` FROM tests WHERE case_id = $1 AND NOT is_deleted ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, caseID); err != nil {
		return nil, fmt.Errorf("failed to list case tests: %w", err)
	}
	tests := make([]*model.Test, len(rows))
	for i := range rows {
		tests[i] = rows[i].toModel()
	}
	return tests, nil
}

// ListByPlanTx retrieves live tests of one plan inside a transaction, for
// reconciliation against an updated case list.
func (r *TestRepository) ListByPlanTx(ctx context.Context, tx *sqlx.Tx, planID int64) ([]*model.Test, error) {
	var rows []dbTest
	query := `SELECT ` + testColumns + ` FROM tests WHERE plan_id = $1 AND NOT is_deleted ORDER BY id`
	if err := tx.SelectContext(ctx, &rows, query, planID); err != nil {
		return nil, fmt.Errorf("failed to list plan tests: %w", err)
	}
	tests := make([]*model.Test, len(rows))
	for i := range rows {
		tests[i] = rows[i].toModel()
	}
	return tests, nil
}

// Update persists assignee and plan placement changes.
func (r *TestRepository) Update(ctx context.Context, q sqlx.ExtContext, t *model.Test) error {
	query := `
		UPDATE tests SET plan_id = $1, assignee_id = $2, updated_at = now()
		WHERE id = $3 AND NOT is_deleted
	`
	result, err := q.ExecContext(ctx, query, t.PlanID, nullInt(t.AssigneeID), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update test: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("test")
	}
	return nil
}

// BulkUpdate applies assignee and plan changes to a set of tests.
func (r *TestRepository) BulkUpdate(ctx context.Context, tx *sqlx.Tx, req model.BulkUpdateTestsRequest) error {
	if len(req.IDs) == 0 {
		return nil
	}
	var sets []string
	args := []interface{}{int64Array(req.IDs)}
	if req.AssigneeID != nil {
		args = append(args, *req.AssigneeID)
		sets = append(sets, fmt.Sprintf("assignee_id = $%d", len(args)))
	}
	if req.PlanID != nil {
		args = append(args, *req.PlanID)
		sets = append(sets, fmt.Sprintf("plan_id = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`UPDATE tests SET %s WHERE id = ANY($1) AND NOT is_deleted`, strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to bulk update tests: %w", err)
	}
	return nil
}

// SoftDeleteByCases removes a plan's tests for cases dropped during
// reconciliation.
func (r *TestRepository) SoftDeleteByCases(ctx context.Context, tx *sqlx.Tx, planID int64, caseIDs []int64) error {
	if len(caseIDs) == 0 {
		return nil
	}
	query := `
		UPDATE tests SET is_deleted = true, deleted_at = now()
		WHERE plan_id = $1 AND case_id = ANY($2) AND NOT is_deleted
	`
	if _, err := tx.ExecContext(ctx, query, planID, int64Array(caseIDs)); err != nil {
		return fmt.Errorf("failed to remove plan tests: %w", err)
	}
	return nil
}

// SetLastStatus refreshes the denormalized latest-status column.
func (r *TestRepository) SetLastStatus(ctx context.Context, q sqlx.ExtContext, testID int64, statusID *int64) error {
	query := `UPDATE tests SET last_status_id = $1, updated_at = now() WHERE id = $2`
	if _, err := q.ExecContext(ctx, query, nullInt(statusID), testID); err != nil {
		return fmt.Errorf("failed to set test last status: %w", err)
	}
	return nil
}
