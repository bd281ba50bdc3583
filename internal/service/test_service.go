package service

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/events"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// TestService implements the test lifecycle: assignment and plan placement.
// Creation happens exclusively through plan fan-out and reconciliation.
type TestService struct {
	db       *sqlx.DB
	tests    *repository.TestRepository
	plans    *repository.PlanRepository
	users    *repository.UserRepository
	producer *events.Producer
	logger   *slog.Logger
}

// NewTestService creates a test service.
func NewTestService(db *sqlx.DB, tests *repository.TestRepository, plans *repository.PlanRepository,
	users *repository.UserRepository, producer *events.Producer, logger *slog.Logger) *TestService {
	return &TestService{db: db, tests: tests, plans: plans, users: users, producer: producer, logger: logger}
}

// Get retrieves one test.
func (s *TestService) Get(ctx context.Context, id int64) (*model.Test, error) {
	return s.tests.Get(ctx, id)
}

// ListByCase retrieves the tests spawned from one case across all plans.
func (s *TestService) ListByCase(ctx context.Context, caseID int64) ([]*model.Test, error) {
	return s.tests.ListByCase(ctx, caseID)
}

// Update changes a test's assignee or plan placement.
func (s *TestService) Update(ctx context.Context, userID, id int64, req model.UpdateTestRequest) (*model.Test, error) {
	t, err := s.tests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	assigned := false
	if req.AssigneeID != nil {
		if err := s.checkAssignee(ctx, t.ProjectID, *req.AssigneeID); err != nil {
			return nil, err
		}
		assigned = t.AssigneeID == nil || *t.AssigneeID != *req.AssigneeID
		t.AssigneeID = req.AssigneeID
	}
	if req.PlanID != nil && *req.PlanID != t.PlanID {
		plan, err := s.plans.Get(ctx, *req.PlanID)
		if err != nil {
			return nil, err
		}
		if plan.ProjectID != t.ProjectID {
			return nil, apperr.New(apperr.CodeCrossProject, "plan belongs to another project")
		}
		t.PlanID = *req.PlanID
	}
	if err := s.tests.Update(ctx, s.db, t); err != nil {
		return nil, err
	}

	if assigned {
		s.producer.Notify(ctx, events.Event{
			Verb: events.VerbTestAssigned, ProjectID: t.ProjectID,
			ActorID: userID, TargetID: t.ID,
			Payload: map[string]interface{}{"assignee": *t.AssigneeID},
		})
	}
	return t, nil
}

// BulkUpdate applies the same assignee/plan change to many tests.
func (s *TestService) BulkUpdate(ctx context.Context, userID int64, req model.BulkUpdateTestsRequest) error {
	if len(req.IDs) == 0 {
		return apperr.Validation("ids are required")
	}
	first, err := s.tests.Get(ctx, req.IDs[0])
	if err != nil {
		return err
	}
	if req.AssigneeID != nil {
		if err := s.checkAssignee(ctx, first.ProjectID, *req.AssigneeID); err != nil {
			return err
		}
	}
	if req.PlanID != nil {
		plan, err := s.plans.Get(ctx, *req.PlanID)
		if err != nil {
			return err
		}
		if plan.ProjectID != first.ProjectID {
			return apperr.New(apperr.CodeCrossProject, "plan belongs to another project")
		}
	}
	err = repository.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return s.tests.BulkUpdate(ctx, tx, req)
	})
	if err != nil {
		return err
	}
	s.logger.Info("tests bulk updated", "count", len(req.IDs), "actor", userID)
	return nil
}

// checkAssignee requires the assignee to hold a membership in the project or
// be a superuser.
func (s *TestService) checkAssignee(ctx context.Context, projectID, assigneeID int64) error {
	user, err := s.users.Get(ctx, assigneeID)
	if err != nil {
		return err
	}
	if user.IsSuperuser {
		return nil
	}
	role, err := s.users.MembershipRole(ctx, projectID, assigneeID)
	if err != nil {
		return err
	}
	if role == nil {
		return apperr.New(apperr.CodeForeignAssignee, "assignee is not a member of the project")
	}
	return nil
}
