package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/internal/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testPassword = "correct-horse-battery"

var (
	testHash     string
	testHashOnce sync.Once
)

// passwordHash returns a bcrypt hash of testPassword, computed once per run.
func passwordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		h, err := utils.HashPassword(testPassword)
		if err != nil {
			panic(err)
		}
		testHash = h
	})
	return testHash
}

type fixture struct {
	t             *testing.T
	ctx           context.Context
	db            *gorm.DB
	dir           *Directory
	engine        *authz.Engine
	tokens        *utils.TokenManager
	audit         *AuditService
	auth          *AuthService
	users         *UserService
	projects      *ProjectService
	members       *ProjectMemberService
	tasks         *TaskService
	notifications *NotificationService
	writes        int64
	seq           int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	tokens, err := utils.NewTokenManager(utils.JWTOptions{Secret: "test-secret"})
	require.NoError(t, err)

	f := &fixture{t: t, ctx: context.Background(), db: db, tokens: tokens}
	f.dir = NewDirectory(db)
	f.engine = authz.NewEngine(f.dir, f.dir)
	f.audit = NewAuditService(db)
	f.auth = NewAuthService(db, f.dir, tokens, WithAuthAudit(f.audit))
	f.users = NewUserService(db, f.dir, f.engine, f.auth, f.audit, true)
	f.projects = NewProjectService(db, f.dir, f.engine, f.audit)
	f.members = NewProjectMemberService(db, f.dir, f.engine, f.audit)
	f.notifications = NewNotificationService(db, f.engine)
	f.tasks = NewTaskService(db, f.dir, f.engine, f.audit, f.notifications)

	f.countWrites()
	return f
}

// countWrites registers gorm callbacks that count every create, update and
// delete statement.
func (f *fixture) countWrites() {
	inc := func(*gorm.DB) { atomic.AddInt64(&f.writes, 1) }
	cb := f.db.Callback()
	require.NoError(f.t, cb.Create().Before("gorm:create").Register("test:count_create", inc))
	require.NoError(f.t, cb.Update().Before("gorm:update").Register("test:count_update", inc))
	require.NoError(f.t, cb.Delete().Before("gorm:delete").Register("test:count_delete", inc))
}

func (f *fixture) resetWrites() { atomic.StoreInt64(&f.writes, 0) }

func (f *fixture) writeCount() int64 { return atomic.LoadInt64(&f.writes) }

func (f *fixture) user(role authz.Role, active bool) *models.User {
	f.t.Helper()
	f.seq++
	u := &models.User{
		Username:    fmt.Sprintf("user%d", f.seq),
		Email:       fmt.Sprintf("user%d@example.com", f.seq),
		Password:    passwordHash(f.t),
		DisplayName: fmt.Sprintf("User %d", f.seq),
		Role:        role.String(),
		AuthType:    models.AuthTypeLocal,
		IsActive:    true,
	}
	require.NoError(f.t, f.db.Create(u).Error)
	if !active {
		// is_active has a database default, so false must be written explicitly.
		require.NoError(f.t, f.db.Model(u).Update("is_active", false).Error)
	}
	return u
}

func (f *fixture) project(manager *models.User) *models.Project {
	f.t.Helper()
	f.seq++
	p := &models.Project{
		Name:      fmt.Sprintf("Project %d", f.seq),
		ManagerID: manager.ID,
		IsActive:  true,
		CreatedBy: manager.ID,
	}
	require.NoError(f.t, f.db.Create(p).Error)
	return p
}

func (f *fixture) member(p *models.Project, u *models.User, role string, active bool) {
	f.t.Helper()
	m := &models.ProjectMember{ProjectID: p.ID, UserID: u.ID, Role: role, IsActive: true}
	require.NoError(f.t, f.db.Create(m).Error)
	if !active {
		require.NoError(f.t, f.db.Model(m).Update("is_active", false).Error)
	}
}

func (f *fixture) task(p *models.Project, assignee *models.User) *models.Task {
	f.t.Helper()
	f.seq++
	tk := &models.Task{
		ProjectID:  p.ID,
		Title:      fmt.Sprintf("Task %d", f.seq),
		Status:     models.TaskStatusPending,
		Priority:   models.PriorityMedium,
		Visibility: models.VisibilityProject,
		CreatedBy:  p.ManagerID,
		IsActive:   true,
	}
	if assignee != nil {
		id := assignee.ID
		tk.AssigneeID = &id
	}
	require.NoError(f.t, f.db.Create(tk).Error)
	return tk
}

func (f *fixture) collaborator(tk *models.Task, u *models.User) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&models.TaskCollaborator{TaskID: tk.ID, UserID: u.ID, IsActive: true}).Error)
}

func (f *fixture) reload(u *models.User) *models.User {
	f.t.Helper()
	var fresh models.User
	require.NoError(f.t, f.db.First(&fresh, u.ID).Error)
	return &fresh
}

func (f *fixture) auditCount(action, entity string) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.AuditLog{}).Where("action = ? AND entity_type = ?", action, entity).Count(&n).Error)
	return n
}
