// Package access provides role/membership/project-visibility decisions
// consumed by the domain services.
package access

import (
	"github.com/yuriguchi/testy/internal/model"
)

// Grant is everything the decision functions need about a user inside one
// project: the user's membership role there, if any.
type Grant struct {
	Role *model.Role
}

// Decision input is assembled by the service layer from repositories; the
// functions here are pure so the rules stay testable.

// CanViewProject decides visibility of a project for a user.
// Private projects are invisible without a membership; an external role
// restricts the user's project list to memberships regardless of privacy.
func CanViewProject(user *model.User, project *model.Project, grant Grant, externalRole bool) bool {
	if user.IsSuperuser {
		return true
	}
	if externalRole {
		return grant.Role != nil
	}
	if project.IsPrivate {
		return grant.Role != nil
	}
	return true
}

// CanWriteProject decides whether a mutating action is allowed. Archived
// projects are read-only to non-superusers.
func CanWriteProject(user *model.User, project *model.Project, grant Grant, permission string) bool {
	if user.IsSuperuser {
		return true
	}
	if project.IsArchive {
		return false
	}
	if grant.Role == nil {
		return !project.IsPrivate && permission == ""
	}
	if permission == "" {
		return true
	}
	return grant.Role.HasPermission(permission)
}

// CanEditResults requires change_testresult on top of project write access.
// The per-project editability window is enforced separately by the result
// engine.
func CanEditResults(user *model.User, project *model.Project, grant Grant) bool {
	return CanWriteProject(user, project, grant, model.PermChangeTestResult)
}

// CanAssignRole decides role assignment. Only a superuser may assign
// globally-scoped roles or roles carrying view_project_restriction.
func CanAssignRole(user *model.User, role *model.Role, globalScope bool) bool {
	if user.IsSuperuser {
		return true
	}
	if globalScope {
		return false
	}
	return !role.HasPermission(model.PermViewProjectRestriction)
}

// IsExternal reports whether a role restricts the user's project list.
func IsExternal(role *model.Role) bool {
	return role != nil && (role.Type == model.RoleTypeExternal ||
		role.HasPermission(model.PermViewProjectRestriction))
}
