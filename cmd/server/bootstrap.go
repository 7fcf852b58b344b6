package main

import (
	"context"
	"fmt"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/config"
	"github.com/huangang/tasksentry/internal/handlers"
	"github.com/huangang/tasksentry/internal/metrics"
	"github.com/huangang/tasksentry/internal/middleware"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/internal/services"
	"github.com/huangang/tasksentry/internal/utils"
	"github.com/huangang/tasksentry/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// app holds the initialized services and handlers.
type app struct {
	cfg         *config.Config
	db          *gorm.DB
	metrics     *metrics.Metrics
	tokens      *utils.TokenManager
	audit       *services.AuditService
	taskQueue   services.TaskQueue
	worker      *services.Worker
	scheduler   *services.MaintenanceScheduler
	redis       *redis.Client
	authLimiter *middleware.RateLimiter

	authHandler         *handlers.AuthHandler
	userHandler         *handlers.UserHandler
	projectHandler      *handlers.ProjectHandler
	memberHandler       *handlers.ProjectMemberHandler
	taskHandler         *handlers.TaskHandler
	notificationHandler *handlers.NotificationHandler
	auditLogHandler     *handlers.AuditLogHandler
	healthHandler       *handlers.HealthHandler
	sseHandler          *handlers.SSEHandler
}

// bootstrap opens the database and wires every service. Background jobs
// stop when ctx is done or shutdown is called.
func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := models.InitDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := models.Ping(db); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	m := metrics.New()
	if sqlDB, err := db.DB(); err == nil {
		m.Registerer().MustRegister(collectors.NewDBStatsCollector(sqlDB, "tasksentry"))
	}

	tokens, err := utils.NewTokenManager(utils.JWTOptions{
		Secret: cfg.JWT.Secret,
		TTL:    cfg.JWT.TTL(),
		Leeway: cfg.JWT.Leeway(),
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}

	dir := services.NewDirectory(db)
	engine := authz.NewEngine(dir, dir, authz.WithRecorder(m))
	audit := services.NewAuditService(db)

	authOpts := []services.AuthOption{
		services.WithAuthAudit(audit),
		services.WithAuthObserver(m),
		services.WithRefreshTTL(cfg.JWT.RefreshTTL()),
	}
	if cfg.LDAP.Enabled {
		authOpts = append(authOpts, services.WithLDAP(services.NewLDAPService(&cfg.LDAP)))
	}
	auth := services.NewAuthService(db, dir, tokens, authOpts...)

	notifications := services.NewNotificationService(db, engine)
	hub := services.NewSSEHub()
	notifications.SetStream(hub)
	taskQueue := services.NewTaskQueue(&cfg.Redis, notifications.Deliver)
	notifications.SetQueue(taskQueue, m)

	a := &app{
		cfg:         cfg,
		db:          db,
		metrics:     m,
		tokens:      tokens,
		audit:       audit,
		taskQueue:   taskQueue,
		authLimiter: middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
	}
	go a.authLimiter.Run(ctx)

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(cfg.RedisOptions())
		if taskQueue.IsAsync() {
			a.worker = services.NewWorker(&cfg.Redis, notifications.Deliver)
			if err := a.worker.Start(); err != nil {
				return nil, err
			}
		}
	}

	a.scheduler = services.NewMaintenanceScheduler(db, audit, auth, cfg.Audit)
	if err := a.scheduler.Start(); err != nil {
		return nil, err
	}

	created, err := auth.CreateAdminIfNotExists(ctx, cfg.Admin)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	} else if created {
		logger.Info().Str("username", cfg.Admin.Username).Msg("Created default admin user")
		if cfg.UsesDefaultAdminPassword() {
			logger.Warn().Msg("Admin user uses the default password; change it immediately")
		}
	}

	users := services.NewUserService(db, dir, engine, auth, audit, cfg.Registration.Enabled)
	a.authHandler = handlers.NewAuthHandler(auth, users, cfg.LDAP.Enabled, cfg.Registration.Enabled)
	a.userHandler = handlers.NewUserHandler(users)
	a.projectHandler = handlers.NewProjectHandler(services.NewProjectService(db, dir, engine, audit))
	a.memberHandler = handlers.NewProjectMemberHandler(services.NewProjectMemberService(db, dir, engine, audit))
	a.taskHandler = handlers.NewTaskHandler(services.NewTaskService(db, dir, engine, audit, notifications))
	a.notificationHandler = handlers.NewNotificationHandler(notifications)
	a.auditLogHandler = handlers.NewAuditLogHandler(audit, engine)
	a.healthHandler = handlers.NewHealthHandler(db, taskQueue, a.redis)
	a.sseHandler = handlers.NewSSEHandler(hub, tokens, engine)

	return a, nil
}

// shutdown stops background work and releases connections.
func (a *app) shutdown() {
	a.scheduler.Stop()
	logger.Info().Msg("Maintenance scheduler stopped")

	if a.worker != nil {
		a.worker.Stop()
	}
	if a.taskQueue != nil {
		if err := a.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
