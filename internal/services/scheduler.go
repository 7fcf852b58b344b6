package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/tasksentry/internal/config"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maintenanceLockName = "maintenance"

// MaintenanceScheduler runs periodic housekeeping: audit retention and the
// purge of expired or revoked refresh tokens. When several instances share a
// database, a scheduler lock row makes sure each run happens once.
type MaintenanceScheduler struct {
	db      *gorm.DB
	audit   *AuditService
	auth    *AuthService
	cfg     config.AuditConfig
	holder  string
	cron    *cron.Cron
	entryID cron.EntryID
	now     func() time.Time
}

func NewMaintenanceScheduler(db *gorm.DB, audit *AuditService, auth *AuthService, cfg config.AuditConfig) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		db:     db,
		audit:  audit,
		auth:   auth,
		cfg:    cfg,
		holder: uuid.NewString(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MaintenanceScheduler) Start() error {
	s.cron = cron.New(cron.WithLocation(time.UTC))

	schedule := s.cfg.CleanupCron
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid audit.cleanup_cron %q: %w", schedule, err)
	}
	s.entryID = entryID

	s.cron.Start()
	logger.Info().Str("cron", schedule).Msg("Maintenance scheduler started")
	return nil
}

func (s *MaintenanceScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce performs one maintenance pass if this instance wins the lock for
// the current minute. It reports whether the pass ran.
func (s *MaintenanceScheduler) RunOnce(ctx context.Context) bool {
	key := s.now().Truncate(time.Minute).Format(time.RFC3339)
	acquired, err := s.acquireLock(ctx, key, time.Hour)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to acquire maintenance lock")
		return false
	}
	if !acquired {
		logger.Debug().Str("key", key).Msg("Maintenance run claimed by another instance")
		return false
	}

	if s.cfg.RetentionDays <= 0 {
		logger.Info().Msg("Audit log cleanup disabled (retention_days <= 0)")
	} else if deleted, err := s.audit.CleanupOlderThan(ctx, s.cfg.RetentionDays); err != nil {
		logger.Error().Err(err).Msg("Failed to clean up audit logs")
	} else if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", s.cfg.RetentionDays).Msg("Cleaned up audit logs")
	}

	if purged, err := s.auth.PurgeRefreshTokens(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to purge refresh tokens")
	} else if purged > 0 {
		logger.Info().Int64("purged", purged).Msg("Purged refresh tokens")
	}

	if err := s.db.WithContext(ctx).
		Where("job = ? AND expires_at < ?", maintenanceLockName, s.now()).
		Delete(&models.SchedulerLock{}).Error; err != nil {
		logger.Warn().Err(err).Msg("Failed to clear expired scheduler locks")
	}
	return true
}

func (s *MaintenanceScheduler) acquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now()
	lock := models.SchedulerLock{
		Job:        maintenanceLockName,
		Slot:       key,
		Holder:     s.holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
