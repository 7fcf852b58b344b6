package services

import (
	"testing"
	"time"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecordAndList(t *testing.T) {
	f := newFixture(t)
	admin := f.user(authz.Admin, true)

	f.audit.Record(f.ctx, AuditEntry{ActorID: admin.ID, Action: "create", EntityType: EntityProject, EntityID: 1,
		Details: map[string]string{"name": "Apollo"}, IP: "10.0.0.1"})
	f.audit.Record(f.ctx, AuditEntry{ActorID: admin.ID, Action: "deactivate", EntityType: EntityUser, EntityID: 2})
	f.audit.Record(f.ctx, AuditEntry{Action: "login", EntityType: EntityUser, EntityID: 3})

	all, err := f.audit.List(f.ctx, &AuditLogListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.Total)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, 20, all.PageSize)

	projects, err := f.audit.List(f.ctx, &AuditLogListRequest{EntityType: EntityProject})
	require.NoError(t, err)
	require.Len(t, projects.Items, 1)
	entry := projects.Items[0]
	assert.JSONEq(t, `{"name":"Apollo"}`, entry.Details)
	assert.Equal(t, "10.0.0.1", entry.IP)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, admin.ID, *entry.ActorID)

	byActor, err := f.audit.List(f.ctx, &AuditLogListRequest{ActorID: admin.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, byActor.Total)

	anonymous, err := f.audit.List(f.ctx, &AuditLogListRequest{Action: "log"})
	require.NoError(t, err)
	require.Len(t, anonymous.Items, 1)
	assert.Nil(t, anonymous.Items[0].ActorID)
}

func TestAuditCleanupOlderThan(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	for _, age := range []int{1, 10, 45, 90} {
		require.NoError(t, f.db.Create(&models.AuditLog{Action: "login", EntityType: EntityUser, CreatedAt: now.AddDate(0, 0, -age)}).Error)
	}

	disabled, err := f.audit.CleanupOlderThan(f.ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, disabled)

	deleted, err := f.audit.CleanupOlderThan(f.ctx, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
}

func TestAuditRecord_NilService(t *testing.T) {
	var s *AuditService
	assert.NotPanics(t, func() {
		s.Record(t.Context(), AuditEntry{Action: "noop"})
	})
}

func TestAuditEntityTypes(t *testing.T) {
	f := newFixture(t)
	f.audit.Record(f.ctx, AuditEntry{Action: "create", EntityType: EntityTask})
	f.audit.Record(f.ctx, AuditEntry{Action: "update", EntityType: EntityTask})
	f.audit.Record(f.ctx, AuditEntry{Action: "login", EntityType: EntityUser})

	types, err := f.audit.EntityTypes(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{EntityTask, EntityUser}, types)
}
