package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/estimate"
	"github.com/yuriguchi/testy/internal/events"
	"github.com/yuriguchi/testy/internal/history"
	"github.com/yuriguchi/testy/internal/labels"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// CaseService implements case authoring: versioned create/update, step
// reconciliation, history browsing and version restore.
type CaseService struct {
	db          *sqlx.DB
	cases       *repository.CaseRepository
	suites      *repository.SuiteRepository
	projects    *repository.ProjectRepository
	labelRepo   *repository.LabelRepository
	attrRepo    *repository.AttributeRepository
	attachments *repository.AttachmentRepository
	history     *history.Store
	producer    *events.Producer
	logger      *slog.Logger
}

// NewCaseService creates a case service.
func NewCaseService(db *sqlx.DB, cases *repository.CaseRepository, suites *repository.SuiteRepository,
	projects *repository.ProjectRepository, labelRepo *repository.LabelRepository,
	attrRepo *repository.AttributeRepository, attachments *repository.AttachmentRepository,
	hist *history.Store, producer *events.Producer, logger *slog.Logger) *CaseService {
	return &CaseService{
		db:          db,
		cases:       cases,
		suites:      suites,
		projects:    projects,
		labelRepo:   labelRepo,
		attrRepo:    attrRepo,
		attachments: attachments,
		history:     hist,
		producer:    producer,
		logger:      logger,
	}
}

// Create validates and inserts a case with its steps, writing the initial
// history version and attaching labels pinned to it.
func (s *CaseService) Create(ctx context.Context, userID int64, req model.CreateCaseRequest) (*model.Case, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name is required")
	}
	if req.IsSteps && len(req.Steps) == 0 {
		return nil, apperr.Validation("a stepped case requires at least one step")
	}
	if !req.IsSteps && len(req.Steps) > 0 {
		return nil, apperr.Validation("steps are only allowed on a stepped case")
	}
	suite, err := s.suites.Get(ctx, req.SuiteID)
	if err != nil {
		return nil, err
	}
	if suite.ProjectID != req.ProjectID {
		return nil, apperr.New(apperr.CodeCrossProject, "suite belongs to another project")
	}

	c := &model.Case{
		ProjectID:   req.ProjectID,
		SuiteID:     req.SuiteID,
		Name:        req.Name,
		Setup:       req.Setup,
		Scenario:    req.Scenario,
		Expected:    req.Expected,
		Teardown:    req.Teardown,
		Description: req.Description,
		IsSteps:     req.IsSteps,
		Attributes:  req.Attributes,
	}
	if c.Estimate, err = parseEstimate(req.Estimate); err != nil {
		return nil, err
	}
	if err := s.validateAttributes(ctx, c, nil); err != nil {
		return nil, err
	}

	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.cases.Create(ctx, tx, c); err != nil {
			return err
		}
		historyID, err := s.history.AppendCase(ctx, tx, c, userID, model.HistoryCreated)
		if err != nil {
			return err
		}
		for i := range req.Steps {
			step := &model.Step{
				CaseID:    c.ID,
				Name:      req.Steps[i].Name,
				Scenario:  req.Steps[i].Scenario,
				Expected:  req.Steps[i].Expected,
				SortOrder: req.Steps[i].SortOrder,
			}
			if err := s.cases.CreateStep(ctx, tx, step); err != nil {
				return err
			}
			if err := s.history.AppendStep(ctx, tx, step, historyID, userID, model.HistoryCreated); err != nil {
				return err
			}
			c.Steps = append(c.Steps, step)
		}
		if err := s.attachLabels(ctx, tx, c, req.Labels, userID, &historyID); err != nil {
			return err
		}
		for _, attachmentID := range req.Attachments {
			if err := s.attachments.Bind(ctx, tx, attachmentID, model.KindCase, c.ID); err != nil {
				return err
			}
		}
		return s.projects.Recount(ctx, tx, c.ProjectID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("case created", "case_id", c.ID, "project_id", c.ProjectID)
	return c, nil
}

// Get retrieves a case with steps.
func (s *CaseService) Get(ctx context.Context, id int64) (*model.Case, error) {
	c, err := s.cases.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsSteps {
		if c.Steps, err = s.cases.ListSteps(ctx, id); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Update applies a case edit as a new history version, or overwrites the tip
// when SkipHistory is set and the requester authored it. Steps with ids
// update in place, ids absent from the payload are removed, nil ids create.
func (s *CaseService) Update(ctx context.Context, userID, id int64, req model.UpdateCaseRequest) (*model.Case, error) {
	tip, err := s.history.CaseLatest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.SkipHistory && tip.HistoryUser != userID {
		return nil, apperr.ForbiddenUser()
	}

	var updated *model.Case
	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		c, err := s.cases.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.IsArchive {
			return apperr.New(apperr.CodeArchiveCaseForbidden, "archived case is read-only")
		}
		if err := s.applyCaseUpdate(ctx, c, req); err != nil {
			return err
		}
		if err := s.validateAttributes(ctx, c, nil); err != nil {
			return err
		}
		if err := s.cases.Update(ctx, tx, c); err != nil {
			return err
		}

		versionID := tip.HistoryID
		if req.SkipHistory {
			if err := s.history.OverwriteCaseTip(ctx, tx, c, tip.HistoryID); err != nil {
				return err
			}
		} else {
			if versionID, err = s.history.AppendCase(ctx, tx, c, userID, model.HistoryChanged); err != nil {
				return err
			}
		}

		if req.Steps != nil || req.IsSteps != nil {
			if err := s.reconcileSteps(ctx, tx, c, req.Steps, versionID, userID, req.SkipHistory); err != nil {
				return err
			}
		}
		if req.Labels != nil {
			if err := s.attachLabels(ctx, tx, c, req.Labels, userID, &versionID); err != nil {
				return err
			}
		}
		for _, attachmentID := range req.Attachments {
			if err := s.attachments.Bind(ctx, tx, attachmentID, model.KindCase, c.ID); err != nil {
				return err
			}
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.producer.Notify(ctx, events.Event{
		Verb: events.VerbCaseUpdated, ProjectID: updated.ProjectID,
		ActorID: userID, TargetID: updated.ID,
	})
	return s.Get(ctx, id)
}

func (s *CaseService) applyCaseUpdate(ctx context.Context, c *model.Case, req model.UpdateCaseRequest) error {
	if req.SuiteID != nil && *req.SuiteID != c.SuiteID {
		suite, err := s.suites.Get(ctx, *req.SuiteID)
		if err != nil {
			return err
		}
		if suite.ProjectID != c.ProjectID {
			return apperr.New(apperr.CodeCrossProject, "suite belongs to another project")
		}
		c.SuiteID = *req.SuiteID
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return apperr.Validation("name cannot be blank")
		}
		c.Name = *req.Name
	}
	if req.Setup != nil {
		c.Setup = *req.Setup
	}
	if req.Scenario != nil {
		c.Scenario = *req.Scenario
	}
	if req.Expected != nil {
		c.Expected = *req.Expected
	}
	if req.Teardown != nil {
		c.Teardown = *req.Teardown
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.IsSteps != nil {
		c.IsSteps = *req.IsSteps
	}
	if c.IsSteps && req.Steps != nil && len(req.Steps) == 0 {
		return apperr.Validation("a stepped case requires at least one step")
	}
	if !c.IsSteps && len(req.Steps) > 0 {
		return apperr.Validation("steps are only allowed on a stepped case")
	}
	if req.Estimate != nil {
		est, err := parseEstimate(req.Estimate)
		if err != nil {
			return err
		}
		c.Estimate = est
	}
	if req.Attributes != nil {
		c.Attributes = req.Attributes
	}
	return nil
}

// reconcileSteps aligns the live steps with the incoming list and writes the
// matching history records pinned to versionID.
func (s *CaseService) reconcileSteps(ctx context.Context, tx *sqlx.Tx, c *model.Case,
	inputs []model.StepInput, versionID, userID int64, skipHistory bool) error {
	existing, err := s.cases.ListSteps(ctx, c.ID)
	if err != nil {
		return err
	}
	existingByID := make(map[int64]*model.Step, len(existing))
	for _, step := range existing {
		existingByID[step.ID] = step
	}

	seen := make(map[int64]bool, len(inputs))
	for i := range inputs {
		in := inputs[i]
		if in.ID != nil {
			step, ok := existingByID[*in.ID]
			if !ok {
				return apperr.NotFound("step")
			}
			seen[*in.ID] = true
			step.Name, step.Scenario, step.Expected, step.SortOrder = in.Name, in.Scenario, in.Expected, in.SortOrder
			if err := s.cases.UpdateStep(ctx, tx, step); err != nil {
				return err
			}
			if skipHistory {
				if err := s.history.OverwriteStepTip(ctx, tx, step); err != nil {
					return err
				}
			} else if err := s.history.AppendStep(ctx, tx, step, versionID, userID, model.HistoryChanged); err != nil {
				return err
			}
			continue
		}
		step := &model.Step{
			CaseID: c.ID, Name: in.Name, Scenario: in.Scenario,
			Expected: in.Expected, SortOrder: in.SortOrder,
		}
		if err := s.cases.CreateStep(ctx, tx, step); err != nil {
			return err
		}
		if err := s.history.AppendStep(ctx, tx, step, versionID, userID, model.HistoryCreated); err != nil {
			return err
		}
	}

	var dropped []int64
	for _, step := range existing {
		if !seen[step.ID] {
			dropped = append(dropped, step.ID)
			if err := s.history.AppendStep(ctx, tx, step, versionID, userID, model.HistoryDeleted); err != nil {
				return err
			}
		}
	}
	return s.cases.SoftDeleteSteps(ctx, tx, dropped)
}

// History returns the case's versions, newest first.
func (s *CaseService) History(ctx context.Context, id int64) ([]*model.CaseVersion, error) {
	if _, err := s.cases.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.history.CaseHistory(ctx, id)
}

// GetVersion returns the case snapshot at a version, with the steps that were
// alive at that version.
func (s *CaseService) GetVersion(ctx context.Context, id, version int64) (*model.CaseVersion, error) {
	v, err := s.history.CaseByVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if v.Case.IsSteps {
		stepVersions, err := s.history.StepsAtVersion(ctx, id, version)
		if err != nil {
			return nil, err
		}
		for _, sv := range stepVersions {
			step := sv.Step
			v.Case.Steps = append(v.Case.Steps, &step)
		}
	}
	return v, nil
}

// RestoreVersion rewrites the live case from a historical snapshot and
// appends the restored content as a fresh version.
func (s *CaseService) RestoreVersion(ctx context.Context, userID, id, version int64) (*model.Case, error) {
	snapshot, err := s.history.CaseByVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}
	stepVersions, err := s.history.StepsAtVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}

	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		c, err := s.cases.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		restored := snapshot.Case
		restored.ID = c.ID
		restored.ProjectID = c.ProjectID
		restored.IsArchive = c.IsArchive
		if err := s.cases.Update(ctx, tx, &restored); err != nil {
			return err
		}
		versionID, err := s.history.AppendCase(ctx, tx, &restored, userID, model.HistoryChanged)
		if err != nil {
			return err
		}

		// Align live steps to the snapshot's step set.
		existing, err := s.cases.ListSteps(ctx, id)
		if err != nil {
			return err
		}
		existingByID := make(map[int64]*model.Step, len(existing))
		for _, step := range existing {
			existingByID[step.ID] = step
		}
		restoredIDs := make(map[int64]bool, len(stepVersions))
		for _, sv := range stepVersions {
			restoredIDs[sv.Step.ID] = true
			step := sv.Step
			if live, ok := existingByID[step.ID]; ok {
				live.Name, live.Scenario, live.Expected, live.SortOrder = step.Name, step.Scenario, step.Expected, step.SortOrder
				if err := s.cases.UpdateStep(ctx, tx, live); err != nil {
					return err
				}
				if err := s.history.AppendStep(ctx, tx, live, versionID, userID, model.HistoryChanged); err != nil {
					return err
				}
				continue
			}
			// Deleted since the snapshot: recreate under a new id.
			recreated := &model.Step{
				CaseID: id, Name: step.Name, Scenario: step.Scenario,
				Expected: step.Expected, SortOrder: step.SortOrder,
			}
			if err := s.cases.CreateStep(ctx, tx, recreated); err != nil {
				return err
			}
			if err := s.history.AppendStep(ctx, tx, recreated, versionID, userID, model.HistoryCreated); err != nil {
				return err
			}
		}
		var dropped []int64
		for _, step := range existing {
			if !restoredIDs[step.ID] {
				dropped = append(dropped, step.ID)
				if err := s.history.AppendStep(ctx, tx, step, versionID, userID, model.HistoryDeleted); err != nil {
					return err
				}
			}
		}
		return s.cases.SoftDeleteSteps(ctx, tx, dropped)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("case version restored", "case_id", id, "version", version)
	return s.Get(ctx, id)
}

// List retrieves cases matching the filter. A suite filter expands to the
// whole subtree; label filters evaluate against the attached label sets.
func (s *CaseService) List(ctx context.Context, f model.ListFilter, suiteIDs []int64) ([]*model.Case, error) {
	if len(suiteIDs) > 0 {
		expanded, err := s.suites.DescendantIDs(ctx, suiteIDs)
		if err != nil {
			return nil, err
		}
		suiteIDs = expanded
	} else {
		suiteIDs = nil
	}
	cases, err := s.cases.List(ctx, f, suiteIDs)
	if err != nil {
		return nil, err
	}
	return s.filterByLabels(ctx, cases, f.Labels)
}

func (s *CaseService) filterByLabels(ctx context.Context, cases []*model.Case, f model.LabelFilter) ([]*model.Case, error) {
	if f.Empty() {
		return cases, nil
	}
	ids := make([]int64, len(cases))
	for i, c := range cases {
		ids[i] = c.ID
	}
	attached, err := s.labelRepo.AttachedLabels(ctx, model.KindCase, ids)
	if err != nil {
		return nil, err
	}
	filtered := cases[:0]
	for _, c := range cases {
		if f.Match(attached[c.ID]) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// attachLabels resolves label names (creating missing ones) and replaces the
// case's attachments with the resolved set, pinned to the given version.
func (s *CaseService) attachLabels(ctx context.Context, tx *sqlx.Tx, c *model.Case,
	names []string, userID int64, historyID *int64) error {
	labelIDs := make([]int64, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		label, err := s.labelRepo.GetOrCreate(ctx, tx, c.ProjectID, name, userID)
		if err != nil {
			return err
		}
		labelIDs = append(labelIDs, label.ID)
	}
	return s.labelRepo.Attach(ctx, tx, model.KindCase, c.ID, labelIDs, historyID)
}

// validateAttributes enforces the project's attribute policies on the case.
func (s *CaseService) validateAttributes(ctx context.Context, c *model.Case, statusID *int64) error {
	attrs, err := s.attrRepo.List(ctx, c.ProjectID)
	if err != nil {
		return err
	}
	suiteID := c.SuiteID
	target := labels.Target{
		Kind:      model.KindCase,
		ProjectID: c.ProjectID,
		SuiteID:   &suiteID,
		StatusID:  statusID,
	}
	return labels.Validate(attrs, target, c.Attributes)
}

func parseEstimate(raw *string) (*int64, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	secs, err := estimate.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &secs, nil
}
