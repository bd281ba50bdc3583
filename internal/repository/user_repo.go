package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
)

// UserRepository handles users, roles, memberships and notifications.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Get retrieves an active user by id.
func (r *UserRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	query := `
		SELECT id, username, email, first_name, last_name, is_superuser, is_active
		FROM users WHERE id = $1 AND is_active AND NOT is_deleted
	`
	err := r.db.GetContext(ctx, &u, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

type dbRole struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Type        string         `db:"type"`
	IsAdmin     bool           `db:"is_admin"`
	Permissions pq.StringArray `db:"permissions"`
}

func (role *dbRole) toModel() *model.Role {
	return &model.Role{
		ID:          role.ID,
		Name:        role.Name,
		Type:        model.RoleType(role.Type),
		IsAdmin:     role.IsAdmin,
		Permissions: role.Permissions,
	}
}

// GetRole retrieves a live role by id.
func (r *UserRepository) GetRole(ctx context.Context, id int64) (*model.Role, error) {
	var role dbRole
	query := `SELECT id, name, type, is_admin, permissions FROM roles WHERE id = $1 AND NOT is_deleted`
	err := r.db.GetContext(ctx, &role, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("role")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role.toModel(), nil
}

// MembershipRole resolves a user's role inside a project, nil when the user
// has no membership there.
func (r *UserRepository) MembershipRole(ctx context.Context, projectID, userID int64) (*model.Role, error) {
	var role dbRole
	query := `
		SELECT r.id, r.name, r.type, r.is_admin, r.permissions
		FROM memberships m
		JOIN roles r ON r.id = m.role_id AND NOT r.is_deleted
		WHERE m.project_id = $1 AND m.user_id = $2 AND NOT m.is_deleted
	`
	err := r.db.GetContext(ctx, &role, query, projectID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership role: %w", err)
	}
	return role.toModel(), nil
}

// MemberProjectIDs returns the ids of projects where the user holds a
// membership, for external-role project list restriction.
func (r *UserRepository) MemberProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	query := `SELECT project_id FROM memberships WHERE user_id = $1 AND NOT is_deleted`
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list member projects: %w", err)
	}
	return ids, nil
}

// CreateMembership binds a user and role inside a project.
func (r *UserRepository) CreateMembership(ctx context.Context, m *model.Membership) error {
	var exists bool
	check := `
		SELECT EXISTS (
			SELECT 1 FROM memberships
			WHERE project_id = $1 AND user_id = $2 AND NOT is_deleted
		)
	`
	if err := r.db.GetContext(ctx, &exists, check, m.ProjectID, m.UserID); err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if exists {
		return apperr.Conflict("user already has a membership in the project")
	}
	query := `
		INSERT INTO memberships (project_id, user_id, role_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	row := r.db.QueryRowxContext(ctx, query, m.ProjectID, m.UserID, m.RoleID)
	if err := row.Scan(&m.ID); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// DeleteMembership soft-deletes a membership.
func (r *UserRepository) DeleteMembership(ctx context.Context, id int64) error {
	query := `UPDATE memberships SET is_deleted = true, deleted_at = now() WHERE id = $1 AND NOT is_deleted`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("membership")
	}
	return nil
}

// ListMemberships retrieves a project's live memberships.
func (r *UserRepository) ListMemberships(ctx context.Context, projectID int64) ([]*model.Membership, error) {
	var ms []*model.Membership
	query := `
		SELECT id, project_id, user_id, role_id FROM memberships
		WHERE project_id = $1 AND NOT is_deleted ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &ms, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return ms, nil
}

// CreateNotification stores a notification unless the user opted the verb
// out.
func (r *UserRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	var muted bool
	check := `
		SELECT EXISTS (
			SELECT 1 FROM notification_settings
			WHERE user_id = $1 AND verb = $2 AND NOT enabled AND NOT is_deleted
		)
	`
	if err := r.db.GetContext(ctx, &muted, check, n.UserID, n.Verb); err != nil {
		return fmt.Errorf("failed to check notification settings: %w", err)
	}
	if muted {
		return nil
	}
	query := `
		INSERT INTO notifications (user_id, verb, message, unread, created_at)
		VALUES ($1, $2, $3, true, now())
		RETURNING id, created_at
	`
	row := r.db.QueryRowxContext(ctx, query, n.UserID, n.Verb, n.Message)
	if err := row.Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	n.Unread = true
	return nil
}
