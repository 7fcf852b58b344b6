package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/pkg/outcome"
	"gorm.io/gorm"
)

type ProjectService struct {
	db     *gorm.DB
	dir    *Directory
	engine *authz.Engine
	audit  *AuditService
}

func NewProjectService(db *gorm.DB, dir *Directory, engine *authz.Engine, audit *AuditService) *ProjectService {
	return &ProjectService{db: db, dir: dir, engine: engine, audit: audit}
}

type ProjectListRequest struct {
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name            string `form:"name"`
	IncludeInactive bool   `form:"include_inactive"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description"`
	// ManagerID defaults to the caller. Only admins may name someone else.
	ManagerID uint `json:"manager_id"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	ManagerID   *uint   `json:"manager_id"`
}

// Create adds a project. Its manager is also enrolled as a project admin.
func (s *ProjectService) Create(ctx context.Context, actorID uint, req *CreateProjectRequest) (outcome.Outcome[*models.Project], error) {
	g := s.engine.CanCreateProject(ctx, actorID)
	if !g.IsSuccess() {
		return outcome.Chain[*models.Project](g, "cannot create project"), nil
	}

	managerID := actorID
	if req.ManagerID != 0 && req.ManagerID != actorID {
		if g.Data().Rule != authz.RuleAdmin {
			return outcome.Failure[*models.Project](MsgForbidden), nil
		}
		managerID = req.ManagerID
	}
	ok, err := s.eligibleManager(ctx, managerID)
	if err != nil {
		return outcome.Outcome[*models.Project]{}, err
	}
	if !ok {
		return outcome.Failure[*models.Project](MsgInvalidManager), nil
	}

	project := &models.Project{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ManagerID:   managerID,
		IsActive:    true,
		CreatedBy:   actorID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		return enrollProjectAdmin(tx, project.ID, managerID, actorID)
	})
	if err != nil {
		return outcome.Outcome[*models.Project]{}, fmt.Errorf("create project: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "create", EntityType: EntityProject, EntityID: project.ID,
		Details: map[string]interface{}{"name": project.Name, "manager_id": managerID}})
	return outcome.Success(project, "project created"), nil
}

func (s *ProjectService) eligibleManager(ctx context.Context, userID uint) (bool, error) {
	p, found, err := s.dir.Principal(ctx, userID)
	if err != nil {
		return false, err
	}
	return found && p.Active && p.Role.AtLeast(authz.ProjectManager), nil
}

// enrollProjectAdmin makes userID an active project admin, reusing an
// existing membership row.
func enrollProjectAdmin(tx *gorm.DB, projectID, userID, assignedBy uint) error {
	var member models.ProjectMember
	err := tx.Where(models.ProjectMember{ProjectID: projectID, UserID: userID}).
		Attrs(models.ProjectMember{AssignedByID: assignedBy}).
		FirstOrCreate(&member).Error
	if err != nil {
		return err
	}
	return tx.Model(&member).Updates(map[string]interface{}{
		"role":      models.ProjectRoleAdmin,
		"is_active": true,
	}).Error
}

// List returns the projects the actor can see: every project for admins,
// otherwise the ones it manages or belongs to.
func (s *ProjectService) List(ctx context.Context, actorID uint, req *ProjectListRequest) (outcome.Outcome[*ProjectListResponse], error) {
	actor, found, err := s.dir.Principal(ctx, actorID)
	if err != nil {
		return outcome.Outcome[*ProjectListResponse]{}, err
	}
	if !found || !actor.Active {
		return outcome.Failure[*ProjectListResponse](authz.ReasonUnknownActor), nil
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Project{})
	if actor.Role != authz.Admin {
		memberOf := s.db.Model(&models.ProjectMember{}).
			Select("project_id").
			Where("user_id = ? AND is_active = ?", actor.ID, true)
		visible := s.db.Where("id IN (?)", memberOf)
		// Managing a project only counts while holding the manager role.
		if actor.Role == authz.ProjectManager {
			visible = visible.Or("manager_id = ?", actor.ID)
		}
		query = query.Where(visible)
	}
	if !req.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return outcome.Outcome[*ProjectListResponse]{}, fmt.Errorf("count projects: %w", err)
	}

	var projects []models.Project
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Manager").Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&projects).Error; err != nil {
		return outcome.Outcome[*ProjectListResponse]{}, fmt.Errorf("list projects: %w", err)
	}

	return outcome.Success(&ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}), nil
}

// Get returns a project the actor may view.
func (s *ProjectService) Get(ctx context.Context, actorID, projectID uint) (outcome.Outcome[*models.Project], error) {
	if g := s.engine.CanViewProject(ctx, actorID, projectID); !g.IsSuccess() {
		return outcome.Failure[*models.Project](MsgNotFound), nil
	}
	project, err := findProject(s.db.WithContext(ctx).Preload("Manager"), projectID)
	if err != nil || project == nil {
		return notFound[*models.Project](err)
	}
	return outcome.Success(project), nil
}

func findProject(db *gorm.DB, projectID uint) (*models.Project, error) {
	var project models.Project
	result := db.Limit(1).Find(&project, projectID)
	if result.Error != nil {
		return nil, fmt.Errorf("find project: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &project, nil
}

// Update changes project fields. Replacing the manager is reserved for
// admins; the new manager is enrolled as a project admin.
func (s *ProjectService) Update(ctx context.Context, actorID, projectID uint, req *UpdateProjectRequest) (outcome.Outcome[*models.Project], error) {
	g := s.engine.CanModifyProject(ctx, actorID, projectID)
	if !g.IsSuccess() {
		return outcome.Chain[*models.Project](g, "cannot update project"), nil
	}
	project, err := findProject(s.db.WithContext(ctx), projectID)
	if err != nil || project == nil {
		return notFound[*models.Project](err)
	}
	if !project.IsActive {
		return outcome.Failure[*models.Project](MsgInactiveProject), nil
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	newManager := uint(0)
	if req.ManagerID != nil && *req.ManagerID != project.ManagerID {
		if g.Data().Rule != authz.RuleAdmin {
			return outcome.Failure[*models.Project](MsgForbidden), nil
		}
		ok, err := s.eligibleManager(ctx, *req.ManagerID)
		if err != nil {
			return outcome.Outcome[*models.Project]{}, err
		}
		if !ok {
			return outcome.Failure[*models.Project](MsgInvalidManager), nil
		}
		newManager = *req.ManagerID
		updates["manager_id"] = newManager
	}
	if len(updates) == 0 {
		return outcome.Failure[*models.Project](MsgNoChanges), nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(project).Updates(updates).Error; err != nil {
			return err
		}
		if newManager != 0 {
			return enrollProjectAdmin(tx, project.ID, newManager, actorID)
		}
		return nil
	})
	if err != nil {
		return outcome.Outcome[*models.Project]{}, fmt.Errorf("update project: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "update", EntityType: EntityProject, EntityID: project.ID, Details: updates})
	return outcome.Success(project), nil
}

// Deactivate hides a project from default listings. Its tasks and
// memberships are kept.
func (s *ProjectService) Deactivate(ctx context.Context, actorID, projectID uint) (outcome.Outcome[*models.Project], error) {
	if g := s.engine.CanModifyProject(ctx, actorID, projectID); !g.IsSuccess() {
		return outcome.Chain[*models.Project](g, "cannot deactivate project"), nil
	}
	project, err := findProject(s.db.WithContext(ctx), projectID)
	if err != nil || project == nil {
		return notFound[*models.Project](err)
	}
	if !project.IsActive {
		return outcome.Success(project, "project already inactive"), nil
	}

	if err := s.db.WithContext(ctx).Model(project).Update("is_active", false).Error; err != nil {
		return outcome.Outcome[*models.Project]{}, fmt.Errorf("deactivate project: %w", err)
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "deactivate", EntityType: EntityProject, EntityID: project.ID})
	return outcome.Success(project), nil
}

// notFound turns a missing row, or the error that hid it, into the service
// return pair.
func notFound[T any](err error) (outcome.Outcome[T], error) {
	if err != nil {
		return outcome.Outcome[T]{}, err
	}
	return outcome.Failure[T](MsgNotFound), nil
}
