package model

import "time"

// User is carried for gating and authorship; registration and login are
// handled by the external auth layer.
type User struct {
	ID          int64  `json:"id" db:"id"`
	Username    string `json:"username" db:"username"`
	Email       string `json:"email" db:"email"`
	FirstName   string `json:"first_name" db:"first_name"`
	LastName    string `json:"last_name" db:"last_name"`
	IsSuperuser bool   `json:"is_superuser" db:"is_superuser"`
	IsActive    bool   `json:"is_active" db:"is_active"`
	IsDeleted   bool   `json:"-" db:"is_deleted"`
}

// RoleType distinguishes role scoping behavior.
type RoleType string

const (
	RoleTypeSystem   RoleType = "SYSTEM"
	RoleTypeCustom   RoleType = "CUSTOM"
	RoleTypeExternal RoleType = "EXTERNAL"
)

// Permission codenames consumed by the access model.
const (
	PermViewProject            = "view_project"
	PermChangeProject          = "change_project"
	PermChangeTestResult       = "change_testresult"
	PermViewProjectRestriction = "view_project_restriction"
)

// UserAllowedPermissionCodenames is the full per-project permission catalog
// granted by an admin role.
var UserAllowedPermissionCodenames = []string{
	"view_project", "change_project",
	"add_testsuite", "change_testsuite", "delete_testsuite",
	"add_testcase", "change_testcase", "delete_testcase",
	"add_testplan", "change_testplan", "delete_testplan",
	"add_test", "change_test",
	"add_testresult", "change_testresult", "delete_testresult",
	"add_label", "change_label", "delete_label",
	"add_customattribute", "change_customattribute", "delete_customattribute",
	"add_status", "change_status", "delete_status",
	"add_membership", "delete_membership",
}

// Role groups permissions; a nil ProjectID makes the role globally scoped.
type Role struct {
	ID          int64    `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Type        RoleType `json:"type" db:"type"`
	IsAdmin     bool     `json:"is_admin" db:"is_admin"`
	Permissions []string `json:"permissions"`
	IsDeleted   bool     `json:"-" db:"is_deleted"`
}

// HasPermission reports whether the role carries the codename.
func (r *Role) HasPermission(codename string) bool {
	if r.IsAdmin {
		for _, p := range UserAllowedPermissionCodenames {
			if p == codename {
				return true
			}
		}
	}
	for _, p := range r.Permissions {
		if p == codename {
			return true
		}
	}
	return false
}

// Membership binds a user with a role inside a project.
type Membership struct {
	ID        int64 `json:"id" db:"id"`
	ProjectID int64 `json:"project" db:"project_id"`
	UserID    int64 `json:"user" db:"user_id"`
	RoleID    int64 `json:"role" db:"role_id"`
	IsDeleted bool  `json:"-" db:"is_deleted"`
}

// Notification is a stored user notification; delivery is dispatched to the
// external task runner.
type Notification struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user" db:"user_id"`
	Verb      string    `json:"verb" db:"verb"`
	Message   string    `json:"message" db:"message"`
	Unread    bool      `json:"unread" db:"unread"`
	IsDeleted bool      `json:"-" db:"is_deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NotificationSetting opts a user in or out of a notification verb.
type NotificationSetting struct {
	ID        int64  `json:"id" db:"id"`
	UserID    int64  `json:"user" db:"user_id"`
	Verb      string `json:"verb" db:"verb"`
	Enabled   bool   `json:"enabled" db:"enabled"`
	IsDeleted bool   `json:"-" db:"is_deleted"`
}
