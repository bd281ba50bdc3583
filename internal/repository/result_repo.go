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

// ResultRepository handles test result and step result persistence.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new result repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

type dbResult struct {
	ID              int64         `db:"id"`
	TestID          int64         `db:"test_id"`
	ProjectID       int64         `db:"project_id"`
	StatusID        int64         `db:"status_id"`
	UserID          int64         `db:"user_id"`
	Comment         string        `db:"comment"`
	ExecutionTime   sql.NullInt64 `db:"execution_time"`
	Attributes      []byte        `db:"attributes"`
	IsArchive       bool          `db:"is_archive"`
	TestCaseVersion int64         `db:"test_case_version"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

func (res *dbResult) toModel() *model.TestResult {
	return &model.TestResult{
		ID:              res.ID,
		TestID:          res.TestID,
		ProjectID:       res.ProjectID,
		StatusID:        res.StatusID,
		UserID:          res.UserID,
		Comment:         res.Comment,
		ExecutionTime:   intPtr(res.ExecutionTime),
		Attributes:      unmarshalAttrs(res.Attributes),
		IsArchive:       res.IsArchive,
		TestCaseVersion: res.TestCaseVersion,
		CreatedAt:       res.CreatedAt,
		UpdatedAt:       res.UpdatedAt,
	}
}

const resultColumns = `id, test_id, project_id, status_id, user_id, comment, execution_time,
	attributes, is_archive, test_case_version, created_at, updated_at`

// Create inserts a result pinned to the case version current at write time.
func (r *ResultRepository) Create(ctx context.Context, tx *sqlx.Tx, res *model.TestResult) error {
	attrs, err := marshalJSON(res.Attributes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO testresults (test_id, project_id, status_id, user_id, comment, execution_time,
			attributes, test_case_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, created_at, updated_at
	`
	row := tx.QueryRowxContext(ctx, query,
		res.TestID, res.ProjectID, res.StatusID, res.UserID, res.Comment,
		nullInt(res.ExecutionTime), attrs, res.TestCaseVersion)
	if err := row.Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

// Get retrieves a live result by id, without step results.
func (r *ResultRepository) Get(ctx context.Context, id int64) (*model.TestResult, error) {
	var res dbResult
	query := `SELECT ` + resultColumns + ` FROM testresults WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &res, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("result")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return res.toModel(), nil
}

// Update persists mutable result fields.
func (r *ResultRepository) Update(ctx context.Context, q sqlx.ExtContext, res *model.TestResult) error {
	attrs, err := marshalJSON(res.Attributes)
	if err != nil {
		return err
	}
	query := `
		UPDATE testresults SET
			status_id = $1, comment = $2, execution_time = $3, attributes = $4, updated_at = now()
		WHERE id = $5 AND NOT is_deleted
	`
	result, err := q.ExecContext(ctx, query,
		res.StatusID, res.Comment, nullInt(res.ExecutionTime), attrs, res.ID)
	if err != nil {
		return fmt.Errorf("failed to update result: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("result")
	}
	return nil
}

// ListByTest retrieves a test's live results, newest first.
func (r *ResultRepository) ListByTest(ctx context.Context, testID int64) ([]*model.TestResult, error) {
	var rows []dbResult
	query := `SELECT ` + resultColumns + ` FROM testresults WHERE test_id = $1 AND NOT is_deleted ORDER BY id DESC`
	if err := r.db.SelectContext(ctx, &rows, query, testID); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	results := make([]*model.TestResult, len(rows))
	for i := range rows {
		results[i] = rows[i].toModel()
	}
	return results, nil
}

// LatestByTests returns the newest live result per test id.
func (r *ResultRepository) LatestByTests(ctx context.Context, testIDs []int64) (map[int64]*model.TestResult, error) {
	if len(testIDs) == 0 {
		return map[int64]*model.TestResult{}, nil
	}
	var rows []dbResult
	query := `
		SELECT DISTINCT ON (test_id) ` + resultColumns + `
		FROM testresults
		WHERE test_id = ANY($1) AND NOT is_deleted
		ORDER BY test_id, id DESC
	`
	if err := r.db.SelectContext(ctx, &rows, query, int64Array(testIDs)); err != nil {
		return nil, fmt.Errorf("failed to load latest results: %w", err)
	}
	latest := make(map[int64]*model.TestResult, len(rows))
	for i := range rows {
		latest[rows[i].TestID] = rows[i].toModel()
	}
	return latest, nil
}

// ListByTests retrieves all live results of the given tests, oldest first,
// for history-aware aggregation.
func (r *ResultRepository) ListByTests(ctx context.Context, testIDs []int64) ([]*model.TestResult, error) {
	if len(testIDs) == 0 {
		return nil, nil
	}
	var rows []dbResult
	query := `SELECT ` + resultColumns + ` FROM testresults WHERE test_id = ANY($1) AND NOT is_deleted ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, int64Array(testIDs)); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	results := make([]*model.TestResult, len(rows))
	for i := range rows {
		results[i] = rows[i].toModel()
	}
	return results, nil
}

// SoftDeleteByAttribute soft-deletes the live results of the plan subtree's
// live tests whose attributes carry the key with the given value (compared as
// text). Rows missing the key never match. Returns the deleted result ids
// keyed by owning test.
func (r *ResultRepository) SoftDeleteByAttribute(ctx context.Context, tx *sqlx.Tx,
	planID int64, key, value string) (map[int64][]int64, error) {
	query := `
		UPDATE testresults SET is_deleted = true, deleted_at = now()
		WHERE NOT is_deleted
		  AND attributes ? $2
		  AND attributes ->> $2 = $3
		  AND test_id IN (
			SELECT t.id FROM tests t
			JOIN testplans d ON d.id = t.plan_id
			JOIN testplans p ON d.tree_id = p.tree_id AND (d.id = p.id OR d.path LIKE p.path || '.%')
			WHERE p.id = $1 AND NOT t.is_deleted
		  )
		RETURNING id, test_id
	`
	rows, err := tx.QueryxContext(ctx, query, planID, key, value)
	if err != nil {
		return nil, fmt.Errorf("failed to delete results by attribute: %w", err)
	}
	defer rows.Close()

	byTest := make(map[int64][]int64)
	for rows.Next() {
		var id, testID int64
		if err := rows.Scan(&id, &testID); err != nil {
			return nil, fmt.Errorf("failed to scan deleted result: %w", err)
		}
		byTest[testID] = append(byTest[testID], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to delete results by attribute: %w", err)
	}
	return byTest, nil
}

// SoftDeleteStepResultsByResults removes the step results of deleted results.
func (r *ResultRepository) SoftDeleteStepResultsByResults(ctx context.Context, tx *sqlx.Tx, resultIDs []int64) error {
	if len(resultIDs) == 0 {
		return nil
	}
	query := `
		UPDATE teststepresults SET is_deleted = true, deleted_at = now()
		WHERE test_result_id = ANY($1) AND NOT is_deleted
	`
	if _, err := tx.ExecContext(ctx, query, int64Array(resultIDs)); err != nil {
		return fmt.Errorf("failed to delete step results: %w", err)
	}
	return nil
}

// ListStepResults retrieves the live step results of a result.
func (r *ResultRepository) ListStepResults(ctx context.Context, resultID int64) ([]*model.TestStepResult, error) {
	var steps []*model.TestStepResult
	query := `
		SELECT id, test_result_id, step_id, status_id FROM teststepresults
		WHERE test_result_id = $1 AND NOT is_deleted
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &steps, query, resultID); err != nil {
		return nil, fmt.Errorf("failed to list step results: %w", err)
	}
	return steps, nil
}

// CreateStepResult inserts a step result.
func (r *ResultRepository) CreateStepResult(ctx context.Context, tx *sqlx.Tx, s *model.TestStepResult) error {
	query := `
		INSERT INTO teststepresults (test_result_id, step_id, status_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	row := tx.QueryRowxContext(ctx, query, s.TestResultID, s.StepID, s.StatusID)
	if err := row.Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to create step result: %w", err)
	}
	return nil
}

// UpdateStepResult persists a step result's status.
func (r *ResultRepository) UpdateStepResult(ctx context.Context, tx *sqlx.Tx, s *model.TestStepResult) error {
	query := `
		UPDATE teststepresults SET status_id = $1
		WHERE id = $2 AND test_result_id = $3 AND NOT is_deleted
	`
	result, err := tx.ExecContext(ctx, query, s.StatusID, s.ID, s.TestResultID)
	if err != nil {
		return fmt.Errorf("failed to update step result: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("step result")
	}
	return nil
}

// SoftDeleteStepResults removes step results dropped by a result update.
func (r *ResultRepository) SoftDeleteStepResults(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE teststepresults SET is_deleted = true, deleted_at = now() WHERE id = ANY($1)`
	if _, err := tx.ExecContext(ctx, query, int64Array(ids)); err != nil {
		return fmt.Errorf("failed to delete step results: %w", err)
	}
	return nil
}
