package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/events"
	"github.com/yuriguchi/testy/internal/history"
	"github.com/yuriguchi/testy/internal/labels"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// ResultService implements result writing with version pinning and the
// per-project editability window.
type ResultService struct {
	db       *sqlx.DB
	results  *repository.ResultRepository
	tests    *repository.TestRepository
	cases    *repository.CaseRepository
	projects *repository.ProjectRepository
	statuses *repository.StatusRepository
	attrRepo *repository.AttributeRepository
	history  *history.Store
	producer *events.Producer
	logger   *slog.Logger

	// now is swappable for window tests.
	now func() time.Time
}

// NewResultService creates a result service.
func NewResultService(db *sqlx.DB, results *repository.ResultRepository, tests *repository.TestRepository,
	cases *repository.CaseRepository, projects *repository.ProjectRepository,
	statuses *repository.StatusRepository, attrRepo *repository.AttributeRepository,
	hist *history.Store, producer *events.Producer, logger *slog.Logger) *ResultService {
	return &ResultService{
		db:       db,
		results:  results,
		tests:    tests,
		cases:    cases,
		projects: projects,
		statuses: statuses,
		attrRepo: attrRepo,
		history:  hist,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// Create writes a result to a test, pinning the case version current at write
// time and refreshing the test's denormalized latest status.
func (s *ResultService) Create(ctx context.Context, userID int64, req model.CreateResultRequest) (*model.TestResult, error) {
	t, err := s.tests.Get(ctx, req.TestID)
	if err != nil {
		return nil, err
	}
	if t.IsArchive {
		return nil, apperr.ResultNotEditable(apperr.ReasonArchived)
	}
	if err := s.checkStatus(ctx, t.ProjectID, req.StatusID); err != nil {
		return nil, err
	}
	if req.ExecutionTime != nil && *req.ExecutionTime < 0 {
		return nil, apperr.Validation("execution time cannot be negative")
	}

	tip, err := s.history.CaseLatest(ctx, t.CaseID)
	if err != nil {
		return nil, err
	}
	res := &model.TestResult{
		TestID:          t.ID,
		ProjectID:       t.ProjectID,
		StatusID:        req.StatusID,
		UserID:          userID,
		Comment:         req.Comment,
		ExecutionTime:   req.ExecutionTime,
		Attributes:      req.Attributes,
		TestCaseVersion: tip.HistoryID,
	}
	if err := s.validateAttributes(ctx, res); err != nil {
		return nil, err
	}
	stepIDs, err := s.validStepIDs(ctx, t.CaseID, req.StepResults)
	if err != nil {
		return nil, err
	}

	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.results.Create(ctx, tx, res); err != nil {
			return err
		}
		for _, in := range req.StepResults {
			if err := s.checkStatus(ctx, t.ProjectID, in.StatusID); err != nil {
				return err
			}
			if !stepIDs[in.StepID] {
				return apperr.NotFound("step")
			}
			sr := &model.TestStepResult{TestResultID: res.ID, StepID: in.StepID, StatusID: in.StatusID}
			if err := s.results.CreateStepResult(ctx, tx, sr); err != nil {
				return err
			}
			res.StepResults = append(res.StepResults, sr)
		}
		if err := s.history.AppendResult(ctx, tx, res, model.HistoryCreated); err != nil {
			return err
		}
		return s.tests.SetLastStatus(ctx, tx, t.ID, &res.StatusID)
	})
	if err != nil {
		return nil, err
	}

	s.producer.Activity(ctx, events.Event{
		Verb: events.VerbResultAdded, ProjectID: res.ProjectID,
		ActorID: userID, TargetID: res.ID,
		Payload: map[string]interface{}{"test": t.ID, "status": res.StatusID},
	})
	return res, nil
}

// Update edits a result inside the project's editability window. Step
// results with ids update, nil ids create, and ids previously present but
// absent from the payload are removed.
func (s *ResultService) Update(ctx context.Context, userID, id int64, req model.UpdateResultRequest) (*model.TestResult, error) {
	res, err := s.results.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.CheckEditable(ctx, res); err != nil {
		return nil, err
	}
	t, err := s.tests.Get(ctx, res.TestID)
	if err != nil {
		return nil, err
	}

	if req.StatusID != nil {
		if err := s.checkStatus(ctx, res.ProjectID, *req.StatusID); err != nil {
			return nil, err
		}
		res.StatusID = *req.StatusID
	}
	if req.Comment != nil {
		res.Comment = *req.Comment
	}
	if req.ExecutionTime != nil {
		if *req.ExecutionTime < 0 {
			return nil, apperr.Validation("execution time cannot be negative")
		}
		res.ExecutionTime = req.ExecutionTime
	}
	if req.Attributes != nil {
		res.Attributes = req.Attributes
	}
	if err := s.validateAttributes(ctx, res); err != nil {
		return nil, err
	}

	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.results.Update(ctx, tx, res); err != nil {
			return err
		}
		if req.StepResults != nil {
			if err := s.reconcileStepResults(ctx, tx, t.CaseID, res, req.StepResults); err != nil {
				return err
			}
		}
		if err := s.history.AppendResult(ctx, tx, res, model.HistoryChanged); err != nil {
			return err
		}
		// The edited result may or may not be the newest; recompute.
		return s.refreshLastStatus(ctx, tx, t.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetWithSteps(ctx, id)
}

// CheckEditable enforces the editability window: neither the result nor its
// test may be archived, the project must allow edits, the configured time
// limit must not have elapsed, and the pinned case version must still be the
// tip.
func (s *ResultService) CheckEditable(ctx context.Context, res *model.TestResult) error {
	project, err := s.projects.Get(ctx, res.ProjectID)
	if err != nil {
		return err
	}
	t, err := s.tests.Get(ctx, res.TestID)
	if err != nil {
		return err
	}
	tip, err := s.history.CaseLatest(ctx, t.CaseID)
	if err != nil {
		return err
	}
	w := editWindow{
		resultArchived: res.IsArchive,
		testArchived:   t.IsArchive,
		policyAllows:   project.Settings.IsResultEditable,
		createdAt:      res.CreatedAt,
		pinnedVersion:  res.TestCaseVersion,
		tipVersion:     tip.HistoryID,
	}
	w.limitSeconds, w.hasLimit = project.Settings.ResultEditLimitSeconds()
	return checkEditWindow(w, s.now())
}

// editWindow gathers the facts behind the result editability decision.
type editWindow struct {
	resultArchived bool
	testArchived   bool
	policyAllows   bool
	limitSeconds   int64
	hasLimit       bool
	createdAt      time.Time
	pinnedVersion  int64
	tipVersion     int64
}

func checkEditWindow(w editWindow, now time.Time) error {
	if w.resultArchived || w.testArchived {
		return apperr.ResultNotEditable(apperr.ReasonArchived)
	}
	if !w.policyAllows {
		return apperr.ResultNotEditable(apperr.ReasonProjectPolicy)
	}
	if w.hasLimit && now.After(w.createdAt.Add(time.Duration(w.limitSeconds)*time.Second)) {
		return apperr.ResultNotEditable(apperr.ReasonTime)
	}
	if w.pinnedVersion != w.tipVersion {
		return apperr.ResultNotEditable(apperr.ReasonVersion)
	}
	return nil
}

// GetWithSteps retrieves a result with its step results.
func (s *ResultService) GetWithSteps(ctx context.Context, id int64) (*model.TestResult, error) {
	res, err := s.results.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.StepResults, err = s.results.ListStepResults(ctx, id); err != nil {
		return nil, err
	}
	return res, nil
}

// ListByTest retrieves a test's results, newest first, step results attached.
func (s *ResultService) ListByTest(ctx context.Context, testID int64) ([]*model.TestResult, error) {
	if _, err := s.tests.Get(ctx, testID); err != nil {
		return nil, err
	}
	results, err := s.results.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.StepResults, err = s.results.ListStepResults(ctx, res.ID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// DestroyByAttribute soft-deletes every live result under the plan's subtree
// whose attributes carry the named key with the given value, returning the
// number of deleted results. Results missing the key do not match and
// survive. The affected tests' denormalized latest status is recomputed.
func (s *ResultService) DestroyByAttribute(ctx context.Context, planID int64, name, value string) (int64, error) {
	if name == "" {
		return 0, apperr.Validation("attribute name is required")
	}
	var deleted int64
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		byTest, err := s.results.SoftDeleteByAttribute(ctx, tx, planID, name, value)
		if err != nil {
			return err
		}
		var resultIDs []int64
		for _, ids := range byTest {
			resultIDs = append(resultIDs, ids...)
			deleted += int64(len(ids))
		}
		if err := s.results.SoftDeleteStepResultsByResults(ctx, tx, resultIDs); err != nil {
			return err
		}
		for testID := range byTest {
			if err := s.refreshLastStatus(ctx, tx, testID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("results destroyed by attribute",
		"plan_id", planID, "attribute", name, "rows", deleted)
	return deleted, nil
}

func (s *ResultService) reconcileStepResults(ctx context.Context, tx *sqlx.Tx, caseID int64,
	res *model.TestResult, inputs []model.StepResultInput) error {
	stepIDs, err := s.validStepIDs(ctx, caseID, inputs)
	if err != nil {
		return err
	}
	existing, err := s.results.ListStepResults(ctx, res.ID)
	if err != nil {
		return err
	}
	existingByID := make(map[int64]*model.TestStepResult, len(existing))
	for _, sr := range existing {
		existingByID[sr.ID] = sr
	}

	seen := make(map[int64]bool, len(inputs))
	for _, in := range inputs {
		if err := s.checkStatus(ctx, res.ProjectID, in.StatusID); err != nil {
			return err
		}
		if !stepIDs[in.StepID] {
			return apperr.NotFound("step")
		}
		if in.ID != nil {
			sr, ok := existingByID[*in.ID]
			if !ok {
				return apperr.NotFound("step result")
			}
			seen[*in.ID] = true
			sr.StatusID = in.StatusID
			if err := s.results.UpdateStepResult(ctx, tx, sr); err != nil {
				return err
			}
			continue
		}
		sr := &model.TestStepResult{TestResultID: res.ID, StepID: in.StepID, StatusID: in.StatusID}
		if err := s.results.CreateStepResult(ctx, tx, sr); err != nil {
			return err
		}
	}

	var dropped []int64
	for _, sr := range existing {
		if !seen[sr.ID] {
			dropped = append(dropped, sr.ID)
		}
	}
	return s.results.SoftDeleteStepResults(ctx, tx, dropped)
}

// refreshLastStatus recomputes the denormalized latest status of a test.
func (s *ResultService) refreshLastStatus(ctx context.Context, tx *sqlx.Tx, testID int64) error {
	var statusID *int64
	query := `
		SELECT status_id FROM testresults
		WHERE test_id = $1 AND NOT is_deleted
		ORDER BY id DESC LIMIT 1
	`
	var latest int64
	switch err := tx.GetContext(ctx, &latest, query, testID); {
	case err == nil:
		statusID = &latest
	case errors.Is(err, sql.ErrNoRows):
		// No live results left; the test reverts to untested.
	default:
		return fmt.Errorf("failed to resolve latest result: %w", err)
	}
	return s.tests.SetLastStatus(ctx, tx, testID, statusID)
}

// checkStatus requires a storable status from the project's catalog. The
// synthetic Untested status is never stored on a row.
func (s *ResultService) checkStatus(ctx context.Context, projectID, statusID int64) error {
	if statusID == model.UntestedStatusID {
		return apperr.Validation("the untested status cannot be assigned")
	}
	status, err := s.statuses.Get(ctx, statusID)
	if err != nil {
		return err
	}
	if status.ProjectID != nil && *status.ProjectID != projectID {
		return apperr.New(apperr.CodeCrossProject, "status belongs to another project")
	}
	return nil
}

func (s *ResultService) validStepIDs(ctx context.Context, caseID int64, inputs []model.StepResultInput) (map[int64]bool, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.IsSteps {
		return nil, apperr.Validation("step results require a stepped case")
	}
	steps, err := s.cases.ListSteps(ctx, caseID)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]bool, len(steps))
	for _, step := range steps {
		ids[step.ID] = true
	}
	return ids, nil
}

// validateAttributes enforces result attribute policies, honoring
// status-specific requirements.
func (s *ResultService) validateAttributes(ctx context.Context, res *model.TestResult) error {
	attrs, err := s.attrRepo.List(ctx, res.ProjectID)
	if err != nil {
		return err
	}
	statusID := res.StatusID
	target := labels.Target{
		Kind:      model.KindResult,
		ProjectID: res.ProjectID,
		StatusID:  &statusID,
	}
	return labels.Validate(attrs, target, res.Attributes)
}
