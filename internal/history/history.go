// Package history provides the per-row immutable version log for cases,
// steps and results.
//
// Records are keyed by (row_id, history_id); history_id comes from a shared
// sequence and is therefore monotonic per row. Step records additionally pin
// the owning case version via test_case_history_id.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

// Store persists and queries history records.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new history store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// dbCaseVersion is the case_history row shape.
type dbCaseVersion struct {
	CaseID        int64           `db:"case_id"`
	HistoryID     int64           `db:"history_id"`
	HistoryUserID int64           `db:"history_user_id"`
	HistoryDate   time.Time       `db:"history_date"`
	HistoryType   string          `db:"history_type"`
	ProjectID     int64           `db:"project_id"`
	SuiteID       int64           `db:"suite_id"`
	Name          string          `db:"name"`
	Setup         string          `db:"setup"`
	Scenario      string          `db:"scenario"`
	Expected      string          `db:"expected"`
	Teardown      string          `db:"teardown"`
	Estimate      sql.NullInt64   `db:"estimate"`
	Description   string          `db:"description"`
	IsSteps       bool            `db:"is_steps"`
	IsArchive     bool            `db:"is_archive"`
	Attributes    []byte          `db:"attributes"`
}

func (v *dbCaseVersion) toModel() *model.CaseVersion {
	out := &model.CaseVersion{
		HistoryID:   v.HistoryID,
		HistoryUser: v.HistoryUserID,
		HistoryDate: v.HistoryDate,
		HistoryType: model.HistoryType(v.HistoryType),
		Case: model.Case{
			ID:          v.CaseID,
			ProjectID:   v.ProjectID,
			SuiteID:     v.SuiteID,
			Name:        v.Name,
			Setup:       v.Setup,
			Scenario:    v.Scenario,
			Expected:    v.Expected,
			Teardown:    v.Teardown,
			Description: v.Description,
			IsSteps:     v.IsSteps,
			IsArchive:   v.IsArchive,
		},
	}
	if v.Estimate.Valid {
		est := v.Estimate.Int64
		out.Case.Estimate = &est
	}
	if len(v.Attributes) > 0 {
		json.Unmarshal(v.Attributes, &out.Case.Attributes)
	}
	return out
}

const caseVersionColumns = `case_id, history_id, history_user_id, history_date,
	history_type, project_id, suite_id, name, setup, scenario, expected,
	teardown, estimate, description, is_steps, is_archive, attributes`

// CaseHistory returns the case's records, newest first.
func (s *Store) CaseHistory(ctx context.Context, caseID int64) ([]*model.CaseVersion, error) {
	var rows []dbCaseVersion
	query := fmt.Sprintf(
		`SELECT %s FROM case_history WHERE case_id = $1 ORDER BY history_id DESC`,
		caseVersionColumns)
	if err := s.db.SelectContext(ctx, &rows, query, caseID); err != nil {
		return nil, fmt.Errorf("failed to load case history: %w", err)
	}
	versions := make([]*model.CaseVersion, len(rows))
	for i := range rows {
		versions[i] = rows[i].toModel()
	}
	return versions, nil
}

// CaseLatest returns the tip record of a case.
func (s *Store) CaseLatest(ctx context.Context, caseID int64) (*model.CaseVersion, error) {
	var row dbCaseVersion
	query := fmt.Sprintf(
		`SELECT %s FROM case_history WHERE case_id = $1 ORDER BY history_id DESC LIMIT 1`,
		caseVersionColumns)
	err := s.db.GetContext(ctx, &row, query, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("case history")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case tip: %w", err)
	}
	return row.toModel(), nil
}

// CaseByVersion returns the snapshot identified by historyID.
func (s *Store) CaseByVersion(ctx context.Context, caseID, historyID int64) (*model.CaseVersion, error) {
	var row dbCaseVersion
	query := fmt.Sprintf(
		`SELECT %s FROM case_history WHERE case_id = $1 AND history_id = $2`,
		caseVersionColumns)
	err := s.db.GetContext(ctx, &row, query, caseID, historyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.VersionNotFound(historyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case version: %w", err)
	}
	return row.toModel(), nil
}

// AppendCase writes a new history record for the case and returns its
// history_id.
func (s *Store) AppendCase(ctx context.Context, q sqlx.ExtContext, c *model.Case, userID int64, htype model.HistoryType) (int64, error) {
	attrs, err := marshalAttrs(c.Attributes)
	if err != nil {
		return 0, err
	}
	var historyID int64
	query := `
		INSERT INTO case_history (
			case_id, history_id, history_user_id, history_date, history_type,
			project_id, suite_id, name, setup, scenario, expected, teardown,
			estimate, description, is_steps, is_archive, attributes
		) VALUES (
			$1, nextval('history_id_seq'), $2, now(), $3,
			$4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING history_id
	`
	err = sqlx.GetContext(ctx, q, &historyID, query,
		c.ID, userID, string(htype),
		c.ProjectID, c.SuiteID, c.Name, c.Setup, c.Scenario, c.Expected,
		c.Teardown, nullInt(c.Estimate), c.Description, c.IsSteps, c.IsArchive, attrs)
	if err != nil {
		return 0, fmt.Errorf("failed to append case history: %w", err)
	}
	return historyID, nil
}

// OverwriteCaseTip replaces the tip record's snapshot in place, keeping its
// history_id. The caller is responsible for the authorship check.
func (s *Store) OverwriteCaseTip(ctx context.Context, q sqlx.ExtContext, c *model.Case, tipHistoryID int64) error {
	attrs, err := marshalAttrs(c.Attributes)
	if err != nil {
		return err
	}
	query := `
		UPDATE case_history SET
			history_date = now(), history_type = $1,
			suite_id = $2, name = $3, setup = $4, scenario = $5, expected = $6,
			teardown = $7, estimate = $8, description = $9, is_steps = $10,
			is_archive = $11, attributes = $12
		WHERE case_id = $13 AND history_id = $14
	`
	_, err = q.ExecContext(ctx, query,
		string(model.HistoryChanged),
		c.SuiteID, c.Name, c.Setup, c.Scenario, c.Expected, c.Teardown,
		nullInt(c.Estimate), c.Description, c.IsSteps, c.IsArchive, attrs,
		c.ID, tipHistoryID)
	if err != nil {
		return fmt.Errorf("failed to overwrite case tip: %w", err)
	}
	return nil
}

// dbStepVersion is the step_history row shape.
type dbStepVersion struct {
	StepID            int64     `db:"step_id"`
	HistoryID         int64     `db:"history_id"`
	TestCaseHistoryID int64     `db:"test_case_history_id"`
	HistoryUserID     int64     `db:"history_user_id"`
	HistoryDate       time.Time `db:"history_date"`
	HistoryType       string    `db:"history_type"`
	CaseID            int64     `db:"case_id"`
	Name              string    `db:"name"`
	Scenario          string    `db:"scenario"`
	Expected          string    `db:"expected"`
	SortOrder         int       `db:"sort_order"`
}

func (v *dbStepVersion) toModel() *model.StepVersion {
	return &model.StepVersion{
		HistoryID:         v.HistoryID,
		HistoryUser:       v.HistoryUserID,
		HistoryDate:       v.HistoryDate,
		HistoryType:       model.HistoryType(v.HistoryType),
		TestCaseHistoryID: v.TestCaseHistoryID,
		Step: model.Step{
			ID:        v.StepID,
			CaseID:    v.CaseID,
			Name:      v.Name,
			Scenario:  v.Scenario,
			Expected:  v.Expected,
			SortOrder: v.SortOrder,
		},
	}
}

// AppendStep writes a new history record for a step, pinned to the owning
// case version.
func (s *Store) AppendStep(ctx context.Context, q sqlx.ExtContext, step *model.Step, caseHistoryID, userID int64, htype model.HistoryType) error {
	query := `
		INSERT INTO step_history (
			step_id, history_id, test_case_history_id, history_user_id,
			history_date, history_type, case_id, name, scenario, expected, sort_order
		) VALUES (
			$1, nextval('history_id_seq'), $2, $3, now(), $4, $5, $6, $7, $8, $9
		)
	`
	_, err := q.ExecContext(ctx, query,
		step.ID, caseHistoryID, userID, string(htype),
		step.CaseID, step.Name, step.Scenario, step.Expected, step.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to append step history: %w", err)
	}
	return nil
}

// OverwriteStepTip replaces a step's tip record in place.
func (s *Store) OverwriteStepTip(ctx context.Context, q sqlx.ExtContext, step *model.Step) error {
	query := `
		UPDATE step_history SET
			history_date = now(), history_type = $1,
			name = $2, scenario = $3, expected = $4, sort_order = $5
		WHERE step_id = $6
		  AND history_id = (SELECT max(history_id) FROM step_history WHERE step_id = $6)
	`
	_, err := q.ExecContext(ctx, query,
		string(model.HistoryChanged),
		step.Name, step.Scenario, step.Expected, step.SortOrder, step.ID)
	if err != nil {
		return fmt.Errorf("failed to overwrite step tip: %w", err)
	}
	return nil
}

// StepsAtVersion returns the steps that were alive at the given case version:
// for every step of the case, its newest record written at or before the
// version, excluding records whose tip marks deletion.
func (s *Store) StepsAtVersion(ctx context.Context, caseID, caseHistoryID int64) ([]*model.StepVersion, error) {
	var rows []dbStepVersion
	query := `
		SELECT DISTINCT ON (step_id)
			step_id, history_id, test_case_history_id, history_user_id,
			history_date, history_type, case_id, name, scenario, expected, sort_order
		FROM step_history
		WHERE case_id = $1 AND test_case_history_id <= $2
		ORDER BY step_id, history_id DESC
	`
	if err := s.db.SelectContext(ctx, &rows, query, caseID, caseHistoryID); err != nil {
		return nil, fmt.Errorf("failed to load steps at version: %w", err)
	}
	var versions []*model.StepVersion
	for i := range rows {
		if rows[i].HistoryType == string(model.HistoryDeleted) {
			continue
		}
		versions = append(versions, rows[i].toModel())
	}
	return versions, nil
}

// AppendResult writes a result history record used by activity feeds.
func (s *Store) AppendResult(ctx context.Context, q sqlx.ExtContext, r *model.TestResult, htype model.HistoryType) error {
	attrs, err := marshalAttrs(r.Attributes)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO result_history (
			result_id, history_id, history_user_id, history_date, history_type,
			test_id, project_id, status_id, comment, execution_time,
			test_case_version, attributes
		) VALUES (
			$1, nextval('history_id_seq'), $2, now(), $3,
			$4, $5, $6, $7, $8, $9, $10
		)
	`
	_, err = q.ExecContext(ctx, query,
		r.ID, r.UserID, string(htype),
		r.TestID, r.ProjectID, r.StatusID, r.Comment,
		nullInt(r.ExecutionTime), r.TestCaseVersion, attrs)
	if err != nil {
		return fmt.Errorf("failed to append result history: %w", err)
	}
	return nil
}

// ResultActivity is one activity feed entry derived from result history.
type ResultActivity struct {
	ResultID      int64     `json:"result" db:"result_id"`
	HistoryID     int64     `json:"history_id" db:"history_id"`
	HistoryUserID int64     `json:"user" db:"history_user_id"`
	HistoryDate   time.Time `json:"date" db:"history_date"`
	HistoryType   string    `json:"action" db:"history_type"`
	TestID        int64     `json:"test" db:"test_id"`
	StatusID      int64     `json:"status" db:"status_id"`
}

// PlanActivity returns result activity for tests under the given plans,
// newest first.
func (s *Store) PlanActivity(ctx context.Context, planIDs []int64, limit int) ([]*ResultActivity, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*ResultActivity
	query := `
		SELECT rh.result_id, rh.history_id, rh.history_user_id, rh.history_date,
		       rh.history_type, rh.test_id, rh.status_id
		FROM result_history rh
		JOIN tests t ON t.id = rh.test_id
		WHERE t.plan_id = ANY($1)
		ORDER BY rh.history_id DESC
		LIMIT $2
	`
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(planIDs), limit); err != nil {
		return nil, fmt.Errorf("failed to load plan activity: %w", err)
	}
	return rows, nil
}

func marshalAttrs(attrs map[string]interface{}) ([]byte, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return data, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
