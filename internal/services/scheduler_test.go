package services

import (
	"testing"
	"time"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/config"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceScheduler_RunOnce(t *testing.T) {
	f := newFixture(t)
	u := f.user(authz.Member, true)

	old := &models.AuditLog{Action: "login", EntityType: EntityUser, CreatedAt: time.Now().UTC().AddDate(0, 0, -40)}
	require.NoError(t, f.db.Create(old).Error)
	f.audit.Record(f.ctx, AuditEntry{ActorID: u.ID, Action: "login", EntityType: EntityUser, EntityID: u.ID})

	require.NoError(t, f.db.Create(&models.RefreshToken{
		UserID:    u.ID,
		TokenHash: hashRefreshToken("stale"),
		ExpiresAt: time.Now().UTC().Add(-48 * time.Hour),
	}).Error)

	fixed := time.Date(2026, 3, 1, 3, 0, 15, 0, time.UTC)
	first := NewMaintenanceScheduler(f.db, f.audit, f.auth, config.AuditConfig{RetentionDays: 30})
	first.now = func() time.Time { return fixed }
	second := NewMaintenanceScheduler(f.db, f.audit, f.auth, config.AuditConfig{RetentionDays: 30})
	second.now = func() time.Time { return fixed.Add(20 * time.Second) }

	assert.True(t, first.RunOnce(f.ctx))
	assert.False(t, second.RunOnce(f.ctx), "same minute is claimed once")

	var audits, tokens int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Count(&audits).Error)
	require.NoError(t, f.db.Model(&models.RefreshToken{}).Count(&tokens).Error)
	assert.EqualValues(t, 1, audits)
	assert.Zero(t, tokens)

	second.now = func() time.Time { return fixed.Add(time.Minute) }
	assert.True(t, second.RunOnce(f.ctx))
}

func TestMaintenanceScheduler_InvalidCron(t *testing.T) {
	f := newFixture(t)
	s := NewMaintenanceScheduler(f.db, f.audit, f.auth, config.AuditConfig{CleanupCron: "not a cron"})
	assert.Error(t, s.Start())
}

func TestMaintenanceScheduler_StartStop(t *testing.T) {
	f := newFixture(t)
	s := NewMaintenanceScheduler(f.db, f.audit, f.auth, config.AuditConfig{})
	require.NoError(t, s.Start())
	s.Stop()
}
