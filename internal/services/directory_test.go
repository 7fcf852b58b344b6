package services

import (
	"testing"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_Lookups(t *testing.T) {
	f := newFixture(t)
	u := f.user(authz.ProjectManager, true)

	byName, err := f.dir.FindByUsername(f.ctx, "  "+u.Username+" ")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := f.dir.FindByEmail(f.ctx, "USER1@Example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	missing, err := f.dir.FindByID(f.ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, missing)

	noAt, err := f.dir.ResolveIdentifier(f.ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, noAt)

	p, ok, err := f.dir.Principal(f.ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, authz.ProjectManager, p.Role)
	assert.True(t, p.Active)

	_, ok, err = f.dir.Principal(f.ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectory_Relationships(t *testing.T) {
	f := newFixture(t)
	pm := f.user(authz.ProjectManager, true)
	member := f.user(authz.Member, true)
	former := f.user(authz.Member, true)
	p := f.project(pm)
	f.member(p, member, models.ProjectRoleAdmin, true)
	f.member(p, former, models.ProjectRoleMember, false)
	tk := f.task(p, nil)
	f.collaborator(tk, member)

	m, found, err := f.dir.ProjectMembership(f.ctx, p.ID, member.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, authz.ProjectAdmin, m.Role)
	assert.True(t, m.Active)

	m, found, err = f.dir.ProjectMembership(f.ctx, p.ID, former.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, m.Active)

	_, found, err = f.dir.ProjectMembership(f.ctx, p.ID, pm.ID)
	require.NoError(t, err)
	assert.False(t, found)

	collab, err := f.dir.IsTaskCollaborator(f.ctx, tk.ID, member.ID)
	require.NoError(t, err)
	assert.True(t, collab)
	collab, err = f.dir.IsTaskCollaborator(f.ctx, tk.ID, former.ID)
	require.NoError(t, err)
	assert.False(t, collab)

	manager, err := f.dir.ProjectManager(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, pm.ID, manager)
	manager, err = f.dir.ProjectManager(f.ctx, 999)
	require.NoError(t, err)
	assert.Zero(t, manager)
}
