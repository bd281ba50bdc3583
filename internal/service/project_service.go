package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/yuriguchi/testy/internal/access"
	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
)

// ProjectService implements project CRUD, visibility and memberships.
type ProjectService struct {
	db       *sqlx.DB
	projects *repository.ProjectRepository
	users    *repository.UserRepository
	logger   *slog.Logger
}

// NewProjectService creates a project service.
func NewProjectService(db *sqlx.DB, projects *repository.ProjectRepository,
	users *repository.UserRepository, logger *slog.Logger) *ProjectService {
	return &ProjectService{db: db, projects: projects, users: users, logger: logger}
}

// Grant resolves the user's role inside a project.
func (s *ProjectService) Grant(ctx context.Context, projectID, userID int64) (access.Grant, error) {
	role, err := s.users.MembershipRole(ctx, projectID, userID)
	if err != nil {
		return access.Grant{}, err
	}
	return access.Grant{Role: role}, nil
}

// List retrieves the projects visible to the user. Private projects require a
// membership; a user holding an external role anywhere sees memberships only.
func (s *ProjectService) List(ctx context.Context, user *model.User, isArchive *bool) ([]*model.Project, error) {
	memberIDs, err := s.users.MemberProjectIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	external, err := s.hasExternalRole(ctx, user, memberIDs)
	if err != nil {
		return nil, err
	}

	var onlyIDs []int64
	if !user.IsSuperuser && external {
		onlyIDs = memberIDs
		if onlyIDs == nil {
			onlyIDs = []int64{}
		}
	}
	projects, err := s.projects.List(ctx, isArchive, onlyIDs)
	if err != nil {
		return nil, err
	}
	if user.IsSuperuser {
		return projects, nil
	}

	member := make(map[int64]bool, len(memberIDs))
	for _, id := range memberIDs {
		member[id] = true
	}
	visible := projects[:0]
	for _, p := range projects {
		if !p.IsPrivate || member[p.ID] {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

func (s *ProjectService) hasExternalRole(ctx context.Context, user *model.User, memberIDs []int64) (bool, error) {
	for _, projectID := range memberIDs {
		role, err := s.users.MembershipRole(ctx, projectID, user.ID)
		if err != nil {
			return false, err
		}
		if access.IsExternal(role) {
			return true, nil
		}
	}
	return false, nil
}

// Create inserts a project.
func (s *ProjectService) Create(ctx context.Context, user *model.User, req model.CreateProjectRequest) (*model.Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperr.Validation("name is required")
	}
	p := &model.Project{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	}
	if req.Settings != nil {
		p.Settings = *req.Settings
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "project_id", p.ID, "actor", user.ID)
	return p, nil
}

// Get retrieves a project the user may view.
func (s *ProjectService) Get(ctx context.Context, user *model.User, id int64) (*model.Project, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	grant, err := s.Grant(ctx, id, user.ID)
	if err != nil {
		return nil, err
	}
	if !access.CanViewProject(user, p, grant, access.IsExternal(grant.Role)) {
		return nil, apperr.NotFound("project")
	}
	return p, nil
}

// Update applies a partial project update.
func (s *ProjectService) Update(ctx context.Context, user *model.User, id int64, req model.UpdateProjectRequest) (*model.Project, error) {
	p, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	grant, err := s.Grant(ctx, id, user.ID)
	if err != nil {
		return nil, err
	}
	if !access.CanWriteProject(user, p, grant, model.PermChangeProject) {
		if p.IsArchive {
			return nil, apperr.New(apperr.CodeArchivedProject, "archived project is read-only")
		}
		return nil, apperr.Forbidden("missing change_project permission")
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, apperr.Validation("name cannot be blank")
		}
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.IsPrivate != nil {
		p.IsPrivate = *req.IsPrivate
	}
	if req.Settings != nil {
		p.Settings = *req.Settings
	}
	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListMembers retrieves a project's memberships.
func (s *ProjectService) ListMembers(ctx context.Context, user *model.User, projectID int64) ([]*model.Membership, error) {
	if _, err := s.Get(ctx, user, projectID); err != nil {
		return nil, err
	}
	return s.users.ListMemberships(ctx, projectID)
}

// AddMember binds a user and role to the project. Role assignment rules are
// enforced via the access model.
func (s *ProjectService) AddMember(ctx context.Context, user *model.User, m *model.Membership) (*model.Membership, error) {
	if _, err := s.Get(ctx, user, m.ProjectID); err != nil {
		return nil, err
	}
	role, err := s.users.GetRole(ctx, m.RoleID)
	if err != nil {
		return nil, err
	}
	if !access.CanAssignRole(user, role, false) {
		return nil, apperr.Forbidden("cannot assign a restricted role")
	}
	if _, err := s.users.Get(ctx, m.UserID); err != nil {
		return nil, err
	}
	if err := s.users.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("membership created", "project_id", m.ProjectID, "user_id", m.UserID, "role_id", m.RoleID)
	return m, nil
}

// RemoveMember soft-deletes a membership.
func (s *ProjectService) RemoveMember(ctx context.Context, user *model.User, projectID, membershipID int64) error {
	if _, err := s.Get(ctx, user, projectID); err != nil {
		return err
	}
	return s.users.DeleteMembership(ctx, membershipID)
}
