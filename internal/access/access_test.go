package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yuriguchi/testy/internal/model"
)

var (
	superuser = &model.User{ID: 1, IsSuperuser: true}
	regular   = &model.User{ID: 2}
)

func memberGrant(perms ...string) Grant {
	return Grant{Role: &model.Role{ID: 1, Name: "member", Permissions: perms}}
}

func TestCanViewProject(t *testing.T) {
	private := &model.Project{ID: 1, IsPrivate: true}
	public := &model.Project{ID: 2}

	assert.True(t, CanViewProject(superuser, private, Grant{}, false))
	assert.False(t, CanViewProject(regular, private, Grant{}, false))
	assert.True(t, CanViewProject(regular, private, memberGrant(), false))
	assert.True(t, CanViewProject(regular, public, Grant{}, false))

	// An external role hides even public projects without a membership.
	assert.False(t, CanViewProject(regular, public, Grant{}, true))
	assert.True(t, CanViewProject(regular, public, memberGrant(), true))
}

func TestArchivedProjectReadOnly(t *testing.T) {
	archived := &model.Project{ID: 1, IsArchive: true}

	assert.True(t, CanWriteProject(superuser, archived, Grant{}, ""))
	assert.False(t, CanWriteProject(regular, archived, memberGrant("change_testcase"), "change_testcase"))
}

func TestCanEditResults(t *testing.T) {
	project := &model.Project{ID: 1}

	assert.False(t, CanEditResults(regular, project, memberGrant()))
	assert.True(t, CanEditResults(regular, project, memberGrant(model.PermChangeTestResult)))

	admin := Grant{Role: &model.Role{ID: 2, Name: "admin", IsAdmin: true}}
	assert.True(t, CanEditResults(regular, project, admin))
}

func TestCanAssignRole(t *testing.T) {
	plain := &model.Role{ID: 1, Name: "member"}
	restricted := &model.Role{ID: 2, Name: "external", Permissions: []string{model.PermViewProjectRestriction}}

	assert.True(t, CanAssignRole(superuser, plain, true))
	assert.False(t, CanAssignRole(regular, plain, true))
	assert.True(t, CanAssignRole(regular, plain, false))
	assert.False(t, CanAssignRole(regular, restricted, false))
}

func TestIsExternal(t *testing.T) {
	assert.False(t, IsExternal(nil))
	assert.False(t, IsExternal(&model.Role{Type: model.RoleTypeCustom}))
	assert.True(t, IsExternal(&model.Role{Type: model.RoleTypeExternal}))
	assert.True(t, IsExternal(&model.Role{Permissions: []string{model.PermViewProjectRestriction}}))
}
