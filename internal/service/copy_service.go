package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/history"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/refs"
	"github.com/yuriguchi/testy/internal/repository"
	"github.com/yuriguchi/testy/internal/storage"
)

// CopyService clones cases, suite subtrees and plan subtrees. Suite copies
// may land in another project; case and plan copies stay inside theirs.
// Attachments referenced from textual fields are cloned in the blob store and
// the references rewritten to the clone ids.
type CopyService struct {
	db          *sqlx.DB
	cases       *repository.CaseRepository
	suites      *repository.SuiteRepository
	plans       *repository.PlanRepository
	tests       *repository.TestRepository
	projects    *repository.ProjectRepository
	labelRepo   *repository.LabelRepository
	attachments *repository.AttachmentRepository
	history     *history.Store
	blobs       storage.BlobStore
	logger      *slog.Logger
}

// NewCopyService creates a copy service. blobs may be nil in metadata-only
// mode; attachment rows are still cloned.
func NewCopyService(db *sqlx.DB, cases *repository.CaseRepository, suites *repository.SuiteRepository,
	plans *repository.PlanRepository, tests *repository.TestRepository,
	projects *repository.ProjectRepository, labelRepo *repository.LabelRepository,
	attachments *repository.AttachmentRepository, hist *history.Store,
	blobs storage.BlobStore, logger *slog.Logger) *CopyService {
	return &CopyService{
		db:          db,
		cases:       cases,
		suites:      suites,
		plans:       plans,
		tests:       tests,
		projects:    projects,
		labelRepo:   labelRepo,
		attachments: attachments,
		history:     hist,
		blobs:       blobs,
		logger:      logger,
	}
}

// CopyCases clones the listed cases, with steps, labels and attachments, into
// the destination suite (defaulting to each source's own suite).
func (s *CopyService) CopyCases(ctx context.Context, userID int64, req model.CopyCasesRequest) ([]*model.Case, error) {
	if len(req.Cases) == 0 {
		return nil, apperr.Validation("cases are required")
	}

	var copies []*model.Case
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, target := range req.Cases {
			copied, err := s.copyCase(ctx, tx, userID, target, req.DstSuiteID, 0)
			if err != nil {
				return err
			}
			copies = append(copies, copied)
		}
		if len(copies) > 0 {
			return s.projects.Recount(ctx, tx, copies[0].ProjectID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("cases copied", "count", len(copies))
	return copies, nil
}

// copyCase clones one case. dstProjectID relocates the copy into another
// project (0 keeps the source project); only suite-tree copies relocate,
// plain case copies reject a destination suite outside the source project.
func (s *CopyService) copyCase(ctx context.Context, tx *sqlx.Tx, userID int64,
	target model.CopyTarget, dstSuiteID *int64, dstProjectID int64) (*model.Case, error) {
	src, err := s.cases.Get(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	projectID := src.ProjectID
	if dstProjectID != 0 {
		projectID = dstProjectID
	}
	suiteID := src.SuiteID
	if dstSuiteID != nil {
		dst, err := s.suites.Get(ctx, *dstSuiteID)
		if err != nil {
			return nil, err
		}
		if dst.ProjectID != projectID {
			return nil, apperr.New(apperr.CodeCrossProjectCopy, "cases can only be copied within their project")
		}
		suiteID = dst.ID
	}

	copied := *src
	copied.ID = 0
	copied.ProjectID = projectID
	copied.SuiteID = suiteID
	copied.IsArchive = false
	if target.NewName != nil {
		copied.Name = *target.NewName
	}
	if err := s.cases.Create(ctx, tx, &copied); err != nil {
		return nil, err
	}

	attachmentMap, err := s.cloneAttachments(ctx, tx, model.KindCase, src.ID, copied.ID, projectID, userID)
	if err != nil {
		return nil, err
	}
	copied.Setup = refs.Rewrite(copied.Setup, attachmentMap)
	copied.Scenario = refs.Rewrite(copied.Scenario, attachmentMap)
	copied.Expected = refs.Rewrite(copied.Expected, attachmentMap)
	copied.Teardown = refs.Rewrite(copied.Teardown, attachmentMap)
	copied.Description = refs.Rewrite(copied.Description, attachmentMap)
	if err := s.cases.Update(ctx, tx, &copied); err != nil {
		return nil, err
	}

	historyID, err := s.history.AppendCase(ctx, tx, &copied, userID, model.HistoryCreated)
	if err != nil {
		return nil, err
	}

	steps, err := s.cases.ListSteps(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		clone := &model.Step{
			CaseID:    copied.ID,
			Name:      step.Name,
			Scenario:  step.Scenario,
			Expected:  step.Expected,
			SortOrder: step.SortOrder,
		}
		if err := s.cases.CreateStep(ctx, tx, clone); err != nil {
			return nil, err
		}
		stepMap, err := s.cloneAttachments(ctx, tx, model.KindStep, step.ID, clone.ID, projectID, userID)
		if err != nil {
			return nil, err
		}
		if len(stepMap) > 0 {
			clone.Scenario = refs.Rewrite(clone.Scenario, stepMap)
			clone.Expected = refs.Rewrite(clone.Expected, stepMap)
			if err := s.cases.UpdateStep(ctx, tx, clone); err != nil {
				return nil, err
			}
		}
		if err := s.history.AppendStep(ctx, tx, clone, historyID, userID, model.HistoryCreated); err != nil {
			return nil, err
		}
		copied.Steps = append(copied.Steps, clone)
	}

	// Labels carry over directly inside the project; a relocated copy gets
	// them re-resolved by name in the destination project, creating missing
	// ones.
	srcLabels, err := s.labelRepo.ListForObject(ctx, model.KindCase, src.ID)
	if err != nil {
		return nil, err
	}
	labelIDs := make([]int64, len(srcLabels))
	for i, label := range srcLabels {
		if projectID != src.ProjectID {
			rehomed, err := s.labelRepo.GetOrCreate(ctx, tx, projectID, label.Name, userID)
			if err != nil {
				return nil, err
			}
			labelIDs[i] = rehomed.ID
			continue
		}
		labelIDs[i] = label.ID
	}
	if err := s.labelRepo.Attach(ctx, tx, model.KindCase, copied.ID, labelIDs, &historyID); err != nil {
		return nil, err
	}
	return &copied, nil
}

// cloneAttachments duplicates the attachments bound to a source row onto its
// copy, copying the blobs server-side, and returns the src→copy id mapping
// for reference rewriting.
func (s *CopyService) cloneAttachments(ctx context.Context, tx *sqlx.Tx, kind model.EntityKind,
	srcID, dstID, projectID, userID int64) (map[int64]int64, error) {
	srcAttachments, err := s.attachments.ListForObject(ctx, kind, srcID)
	if err != nil {
		return nil, err
	}
	mapping := make(map[int64]int64, len(srcAttachments))
	for _, src := range srcAttachments {
		clone := &model.Attachment{
			ProjectID:   projectID,
			ContentType: kind,
			ObjectID:    &dstID,
			FileKey:     src.FileKey,
			Size:        src.Size,
			Filename:    src.Filename,
			MimeType:    src.MimeType,
			Comment:     src.Comment,
			UserID:      userID,
		}
		if err := s.attachments.Create(ctx, tx, clone); err != nil {
			return nil, err
		}
		if store, ok := s.blobs.(*storage.S3Store); ok && store != nil {
			dstKey := store.Key(clone.ID, clone.Filename)
			if err := store.Copy(ctx, src.FileKey, dstKey); err != nil {
				return nil, err
			}
			clone.FileKey = dstKey
			if _, err := tx.ExecContext(ctx,
				`UPDATE attachments SET file_key = $1 WHERE id = $2`, dstKey, clone.ID); err != nil {
				return nil, err
			}
		}
		mapping[src.ID] = clone.ID
	}
	return mapping, nil
}

// CopySuites clones suite subtrees with their cases under the destination
// suite (or as new roots), optionally into another project. Relocated copies
// rehome their attachments and labels into the destination project.
func (s *CopyService) CopySuites(ctx context.Context, userID int64, req model.CopySuitesRequest) ([]*model.Suite, error) {
	if len(req.Suites) == 0 {
		return nil, apperr.Validation("suites are required")
	}

	var roots []*model.Suite
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, target := range req.Suites {
			root, err := s.copySuiteTree(ctx, tx, userID, target, req.DstSuiteID, req.DstProjectID)
			if err != nil {
				return err
			}
			roots = append(roots, root)
		}
		if len(roots) > 0 {
			return s.projects.Recount(ctx, tx, roots[0].ProjectID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("suites copied", "count", len(roots))
	return roots, nil
}

func (s *CopyService) copySuiteTree(ctx context.Context, tx *sqlx.Tx, userID int64,
	target model.CopyTarget, dstSuiteID, dstProjectID *int64) (*model.Suite, error) {
	src, err := s.suites.Get(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	projectID := src.ProjectID
	if dstProjectID != nil {
		projectID = *dstProjectID
		if _, err := s.projects.Get(ctx, projectID); err != nil {
			return nil, err
		}
	}
	if dstSuiteID != nil {
		dst, err := s.suites.Get(ctx, *dstSuiteID)
		if err != nil {
			return nil, err
		}
		if dst.ProjectID != projectID {
			return nil, apperr.Validation("destination suite is outside the destination project")
		}
	}

	subtree, err := s.suites.DescendantIDs(ctx, []int64{src.ID})
	if err != nil {
		return nil, err
	}
	suites, err := s.suites.ListByIDs(ctx, subtree)
	if err != nil {
		return nil, err
	}

	// Depth-first order guarantees parents are copied before children.
	suiteMap := make(map[int64]int64, len(suites))
	var root *model.Suite
	for _, suite := range suites {
		copied := &model.Suite{
			ProjectID:   projectID,
			Name:        suite.Name,
			Description: suite.Description,
		}
		if suite.ID == src.ID {
			copied.ParentID = dstSuiteID
			if target.NewName != nil {
				copied.Name = *target.NewName
			}
		} else if suite.ParentID != nil {
			newParent := suiteMap[*suite.ParentID]
			copied.ParentID = &newParent
		}
		if err := s.suites.Create(ctx, tx, copied); err != nil {
			return nil, err
		}
		suiteMap[suite.ID] = copied.ID
		if suite.ID == src.ID {
			root = copied
		}
	}

	cases, err := s.cases.List(ctx, model.ListFilter{ProjectID: src.ProjectID}, subtree)
	if err != nil {
		return nil, err
	}
	for _, c := range cases {
		newSuiteID := suiteMap[c.SuiteID]
		if _, err := s.copyCase(ctx, tx, userID, model.CopyTarget{ID: c.ID}, &newSuiteID, projectID); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// CopyPlans clones plan subtrees with their live, non-archived tests under
// the destination plan (or as new roots). Test assignees carry over only when
// requested; result history never does.
func (s *CopyService) CopyPlans(ctx context.Context, userID int64, req model.CopyPlansRequest) ([]*model.Plan, error) {
	if len(req.Plans) == 0 {
		return nil, apperr.Validation("plans are required")
	}

	var roots []*model.Plan
	err := repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, target := range req.Plans {
			root, err := s.copyPlanTree(ctx, tx, userID, target, req.DstPlanID, req.KeepAssignee)
			if err != nil {
				return err
			}
			roots = append(roots, root)
		}
		if len(roots) > 0 {
			return s.projects.Recount(ctx, tx, roots[0].ProjectID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("plans copied", "count", len(roots))
	return roots, nil
}

func (s *CopyService) copyPlanTree(ctx context.Context, tx *sqlx.Tx, userID int64,
	target model.PlanCopyTarget, dstPlanID *int64, keepAssignee bool) (*model.Plan, error) {
	src, err := s.plans.Get(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if dstPlanID != nil {
		dst, err := s.plans.Get(ctx, *dstPlanID)
		if err != nil {
			return nil, err
		}
		if dst.ProjectID != src.ProjectID {
			return nil, apperr.New(apperr.CodeCrossProjectCopy, "plans can only be copied within their project")
		}
	}

	subtree, err := s.plans.DescendantIDs(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	plans, err := s.plans.ListByIDs(ctx, subtree)
	if err != nil {
		return nil, err
	}
	// Archived tests stay behind.
	tests, err := s.tests.ListByPlans(ctx, subtree, false)
	if err != nil {
		return nil, err
	}

	planMap := make(map[int64]int64, len(plans))
	var root *model.Plan
	for _, plan := range plans {
		copied := &model.Plan{
			ProjectID:    plan.ProjectID,
			Name:         plan.Name,
			Description:  plan.Description,
			StartedAt:    plan.StartedAt,
			DueDate:      plan.DueDate,
			Attributes:   plan.Attributes,
			ParameterIDs: plan.ParameterIDs,
		}
		if plan.ID == src.ID {
			copied.ParentID = dstPlanID
			if target.NewName != nil {
				copied.Name = *target.NewName
			}
			copied.StartedAt, copied.DueDate = planCopySchedule(plan, target)
		} else if plan.ParentID != nil {
			newParent := planMap[*plan.ParentID]
			copied.ParentID = &newParent
		}
		if err := s.plans.Create(ctx, tx, copied); err != nil {
			return nil, err
		}
		attachmentMap, err := s.cloneAttachments(ctx, tx, model.KindPlan, plan.ID, copied.ID, plan.ProjectID, userID)
		if err != nil {
			return nil, err
		}
		if len(attachmentMap) > 0 {
			copied.Description = refs.Rewrite(copied.Description, attachmentMap)
			if err := s.plans.Update(ctx, tx, copied); err != nil {
				return nil, err
			}
		}
		planMap[plan.ID] = copied.ID
		if plan.ID == src.ID {
			root = copied
		}
	}

	var clones []*model.Test
	for _, t := range tests {
		clone := &model.Test{
			ProjectID: t.ProjectID,
			PlanID:    planMap[t.PlanID],
			CaseID:    t.CaseID,
		}
		if keepAssignee {
			clone.AssigneeID = t.AssigneeID
		}
		clones = append(clones, clone)
	}
	if err := s.tests.CreateBatch(ctx, tx, clones); err != nil {
		return nil, err
	}
	return root, nil
}

// planCopySchedule resolves a plan copy's dates, per-entry overrides winning
// over the source schedule.
func planCopySchedule(src *model.Plan, target model.PlanCopyTarget) (started, due time.Time) {
	started, due = src.StartedAt, src.DueDate
	if target.StartedAt != nil {
		started = *target.StartedAt
	}
	if target.DueDate != nil {
		due = *target.DueDate
	}
	return started, due
}
