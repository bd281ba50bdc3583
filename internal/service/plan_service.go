package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/events"
	"github.com/yuriguchi/testy/internal/history"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
	"github.com/yuriguchi/testy/internal/tree"
)

// PlanService implements plan CRUD, parameterized fan-out and the test
// lifecycle inside plans.
type PlanService struct {
	db       *sqlx.DB
	plans    *repository.PlanRepository
	tests    *repository.TestRepository
	cases    *repository.CaseRepository
	projects *repository.ProjectRepository
	history  *history.Store
	index    *tree.Index
	producer *events.Producer
	logger   *slog.Logger
}

// NewPlanService creates a plan service.
func NewPlanService(db *sqlx.DB, plans *repository.PlanRepository, tests *repository.TestRepository,
	cases *repository.CaseRepository, projects *repository.ProjectRepository,
	hist *history.Store, producer *events.Producer, logger *slog.Logger) *PlanService {
	return &PlanService{
		db:       db,
		plans:    plans,
		tests:    tests,
		cases:    cases,
		projects: projects,
		history:  hist,
		index:    tree.NewIndex(db, "testplans"),
		producer: producer,
		logger:   logger,
	}
}

// Create inserts plans. When the request names parameters from more than one
// group, one plan is created per combination of the groups' Cartesian
// product, each seeded with a test per requested case.
func (s *PlanService) Create(ctx context.Context, userID int64, req model.CreatePlanRequest) ([]*model.Plan, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := validatePlanDates(req.StartedAt, req.DueDate); err != nil {
		return nil, err
	}

	params, err := s.plans.GetParameters(ctx, req.Parameters)
	if err != nil {
		return nil, err
	}
	if len(params) != len(req.Parameters) {
		return nil, apperr.NotFound("parameter")
	}
	for _, p := range params {
		if p.ProjectID != req.ProjectID {
			return nil, apperr.New(apperr.CodeCrossProject, "parameter belongs to another project")
		}
	}
	cases, err := s.cases.ListByIDs(ctx, req.TestCases)
	if err != nil {
		return nil, err
	}
	if len(cases) != len(req.TestCases) {
		return nil, apperr.NotFound("case")
	}
	if err := validatePlanCases(cases, req.ProjectID); err != nil {
		return nil, err
	}

	combos := ParameterCombinations(params)
	plans := make([]*model.Plan, 0, len(combos))
	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, combo := range combos {
			plan := &model.Plan{
				ProjectID:   req.ProjectID,
				ParentID:    req.ParentID,
				Name:        req.Name,
				Description: req.Description,
				StartedAt:   req.StartedAt,
				DueDate:     req.DueDate,
				Attributes:  req.Attributes,
				Parameters:  combo,
			}
			for _, p := range combo {
				plan.ParameterIDs = append(plan.ParameterIDs, p.ID)
			}
			if err := s.plans.Create(ctx, tx, plan); err != nil {
				return err
			}
			tests := make([]*model.Test, len(cases))
			for i, c := range cases {
				tests[i] = &model.Test{ProjectID: req.ProjectID, PlanID: plan.ID, CaseID: c.ID}
			}
			if err := s.tests.CreateBatch(ctx, tx, tests); err != nil {
				return err
			}
			plans = append(plans, plan)
		}
		return s.projects.Recount(ctx, tx, req.ProjectID)
	})
	if err != nil {
		return nil, err
	}

	for _, plan := range plans {
		s.producer.Activity(ctx, events.Event{
			Verb: events.VerbPlanCreated, ProjectID: plan.ProjectID,
			ActorID: userID, TargetID: plan.ID,
		})
	}
	s.logger.Info("plans created", "project_id", req.ProjectID, "count", len(plans))
	return plans, nil
}

// validatePlanDates requires a strictly later due date when one is set.
func validatePlanDates(startedAt, dueDate time.Time) error {
	if !dueDate.IsZero() && !dueDate.After(startedAt) {
		return apperr.New(apperr.CodeDateRange, "due date must come after start date")
	}
	return nil
}

// validatePlanCases requires every planned case to live in the plan's project
// and out of the archive.
func validatePlanCases(cases []*model.Case, projectID int64) error {
	for _, c := range cases {
		if c.ProjectID != projectID {
			return apperr.New(apperr.CodeCrossProject, "case belongs to another project")
		}
		if c.IsArchive {
			return apperr.Validation("archived cases cannot be planned")
		}
	}
	return nil
}

// ParameterCombinations groups parameters by group name and produces the
// Cartesian product across groups, group order alphabetical. No parameters
// yields a single empty combination.
func ParameterCombinations(params []*model.Parameter) [][]*model.Parameter {
	var groupOrder []string
	groups := make(map[string][]*model.Parameter)
	for _, p := range params {
		if _, ok := groups[p.GroupName]; !ok {
			groupOrder = append(groupOrder, p.GroupName)
		}
		groups[p.GroupName] = append(groups[p.GroupName], p)
	}

	combos := [][]*model.Parameter{{}}
	for _, group := range groupOrder {
		var next [][]*model.Parameter
		for _, combo := range combos {
			for _, p := range groups[group] {
				extended := make([]*model.Parameter, len(combo), len(combo)+1)
				copy(extended, combo)
				next = append(next, append(extended, p))
			}
		}
		combos = next
	}
	return combos
}

// Get retrieves a plan with its parameters resolved.
func (s *PlanService) Get(ctx context.Context, id int64) (*model.Plan, error) {
	plan, err := s.plans.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Parameters, err = s.plans.GetParameters(ctx, plan.ParameterIDs); err != nil {
		return nil, err
	}
	return plan, nil
}

// Update applies a partial plan update. A non-nil TestCases list reconciles
// the plan's tests: missing cases get new tests, absent cases lose theirs.
func (s *PlanService) Update(ctx context.Context, userID, id int64, req model.UpdatePlanRequest) (*model.Plan, error) {
	plan, err := s.plans.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, apperr.Validation("name cannot be blank")
		}
		plan.Name = *req.Name
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.StartedAt != nil {
		plan.StartedAt = *req.StartedAt
	}
	if req.DueDate != nil {
		plan.DueDate = *req.DueDate
	}
	if err := validatePlanDates(plan.StartedAt, plan.DueDate); err != nil {
		return nil, err
	}
	finished := req.FinishedAt != nil && plan.FinishedAt == nil
	if req.FinishedAt != nil {
		plan.FinishedAt = req.FinishedAt
	}
	if req.Attributes != nil {
		plan.Attributes = req.Attributes
	}

	moved := req.ParentID != nil && (plan.ParentID == nil || *req.ParentID != *plan.ParentID)
	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.plans.Update(ctx, tx, plan); err != nil {
			return err
		}
		if moved {
			if err := s.index.Reparent(ctx, tx, id, req.ParentID); err != nil {
				return err
			}
			plan.ParentID = req.ParentID
		}
		if req.TestCases != nil {
			if err := s.reconcileTests(ctx, tx, plan, *req.TestCases); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if finished {
		s.producer.Notify(ctx, events.Event{
			Verb: events.VerbPlanFinished, ProjectID: plan.ProjectID,
			ActorID: userID, TargetID: plan.ID,
		})
	}
	return s.Get(ctx, id)
}

// reconcileTests aligns the plan's live tests against the wanted case set.
// Existing tests for kept cases survive untouched, so their results remain.
func (s *PlanService) reconcileTests(ctx context.Context, tx *sqlx.Tx, plan *model.Plan, caseIDs []int64) error {
	wanted := make(map[int64]bool, len(caseIDs))
	for _, id := range caseIDs {
		wanted[id] = true
	}
	cases, err := s.cases.ListByIDs(ctx, caseIDs)
	if err != nil {
		return err
	}
	if len(cases) != len(wanted) {
		return apperr.NotFound("case")
	}
	if err := validatePlanCases(cases, plan.ProjectID); err != nil {
		return err
	}

	existing, err := s.tests.ListByPlanTx(ctx, tx, plan.ID)
	if err != nil {
		return err
	}
	have := make(map[int64]bool, len(existing))
	var dropped []int64
	for _, t := range existing {
		have[t.CaseID] = true
		if !wanted[t.CaseID] {
			dropped = append(dropped, t.CaseID)
		}
	}
	var created []*model.Test
	for _, id := range caseIDs {
		if !have[id] {
			created = append(created, &model.Test{ProjectID: plan.ProjectID, PlanID: plan.ID, CaseID: id})
		}
	}
	if err := s.tests.CreateBatch(ctx, tx, created); err != nil {
		return err
	}
	return s.tests.SoftDeleteByCases(ctx, tx, plan.ID, dropped)
}

// List retrieves plans matching the filter with their parameters resolved.
func (s *PlanService) List(ctx context.Context, f model.ListFilter) ([]*model.Plan, error) {
	plans, err := s.plans.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := s.resolveParameters(ctx, plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *PlanService) resolveParameters(ctx context.Context, plans []*model.Plan) error {
	var ids []int64
	for _, p := range plans {
		ids = append(ids, p.ParameterIDs...)
	}
	params, err := s.plans.GetParameters(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[int64]*model.Parameter, len(params))
	for _, p := range params {
		byID[p.ID] = p
	}
	for _, plan := range plans {
		for _, id := range plan.ParameterIDs {
			if p, ok := byID[id]; ok {
				plan.Parameters = append(plan.Parameters, p)
			}
		}
	}
	return nil
}

// Breadcrumbs returns the root→plan ancestor chain with display titles.
func (s *PlanService) Breadcrumbs(ctx context.Context, id int64) ([]tree.Breadcrumb, error) {
	crumbs, err := s.index.Breadcrumbs(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(crumbs))
	for i, c := range crumbs {
		ids[i] = c.ID
	}
	plans, err := s.plans.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := s.resolveParameters(ctx, plans); err != nil {
		return nil, err
	}
	titles := make(map[int64]string, len(plans))
	for _, p := range plans {
		titles[p.ID] = p.Title()
	}
	for i := range crumbs {
		if title, ok := titles[crumbs[i].ID]; ok {
			crumbs[i].Title = title
		}
	}
	return crumbs, nil
}

// Activity returns the result activity feed for the plan's subtree, newest
// first.
func (s *PlanService) Activity(ctx context.Context, id int64, limit int) ([]*history.ResultActivity, error) {
	planIDs, err := s.plans.DescendantIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.history.PlanActivity(ctx, planIDs, limit)
}

// ListTests retrieves the live tests under a plan, optionally the whole
// subtree.
func (s *PlanService) ListTests(ctx context.Context, planID int64, deep, includeArchived bool) ([]*model.Test, error) {
	planIDs := []int64{planID}
	if deep {
		var err error
		if planIDs, err = s.plans.DescendantIDs(ctx, planID); err != nil {
			return nil, err
		}
	} else if _, err := s.plans.Get(ctx, planID); err != nil {
		return nil, err
	}
	return s.tests.ListByPlans(ctx, planIDs, includeArchived)
}

// ListParameters retrieves a project's parameters.
func (s *PlanService) ListParameters(ctx context.Context, projectID int64) ([]*model.Parameter, error) {
	return s.plans.ListParameters(ctx, projectID)
}

// CreateParameter validates and inserts a parameter.
func (s *PlanService) CreateParameter(ctx context.Context, p *model.Parameter) (*model.Parameter, error) {
	if strings.TrimSpace(p.GroupName) == "" || strings.TrimSpace(p.Data) == "" {
		return nil, apperr.Validation("group_name and data are required")
	}
	if err := s.plans.CreateParameter(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteParameter removes a parameter.
func (s *PlanService) DeleteParameter(ctx context.Context, id int64) error {
	return s.plans.DeleteParameter(ctx, id)
}
