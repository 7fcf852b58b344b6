package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/pkg/outcome"
	"gorm.io/gorm"
)

// ProjectMemberService manages project memberships. Memberships are
// deactivated instead of deleted so assignment history stays readable.
type ProjectMemberService struct {
	db     *gorm.DB
	dir    *Directory
	engine *authz.Engine
	audit  *AuditService
}

func NewProjectMemberService(db *gorm.DB, dir *Directory, engine *authz.Engine, audit *AuditService) *ProjectMemberService {
	return &ProjectMemberService{db: db, dir: dir, engine: engine, audit: audit}
}

type AddMemberRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"omitempty,project_role"`
}

type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required,project_role"`
}

type MemberListRequest struct {
	IncludeInactive bool `form:"include_inactive"`
}

func (s *ProjectMemberService) List(ctx context.Context, actorID, projectID uint, req *MemberListRequest) (outcome.Outcome[[]models.ProjectMember], error) {
	if g := s.engine.CanViewProject(ctx, actorID, projectID); !g.IsSuccess() {
		return outcome.Failure[[]models.ProjectMember](MsgNotFound), nil
	}

	query := s.db.WithContext(ctx).Where("project_id = ?", projectID)
	if !req.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	members := []models.ProjectMember{}
	if err := query.Preload("User").Order("id ASC").Find(&members).Error; err != nil {
		return outcome.Outcome[[]models.ProjectMember]{}, fmt.Errorf("list members: %w", err)
	}
	return outcome.Success(members), nil
}

// Add enrolls a user, or reactivates its previous membership with the new
// role. The default role is viewer.
func (s *ProjectMemberService) Add(ctx context.Context, actorID, projectID uint, req *AddMemberRequest) (outcome.Outcome[*models.ProjectMember], error) {
	if g := s.engine.CanModifyProject(ctx, actorID, projectID); !g.IsSuccess() {
		return outcome.Chain[*models.ProjectMember](g, "cannot add member"), nil
	}
	project, err := findProject(s.db.WithContext(ctx), projectID)
	if err != nil || project == nil {
		return notFound[*models.ProjectMember](err)
	}
	if !project.IsActive {
		return outcome.Failure[*models.ProjectMember](MsgInactiveProject), nil
	}
	user, err := s.dir.FindByID(ctx, req.UserID)
	if err != nil {
		return outcome.Outcome[*models.ProjectMember]{}, err
	}
	if user == nil || !user.IsActive {
		return outcome.Failure[*models.ProjectMember](MsgInactiveTarget), nil
	}

	role := authz.ParseProjectRole(req.Role).String()
	var member models.ProjectMember
	err = s.db.WithContext(ctx).Where("project_id = ? AND user_id = ?", projectID, req.UserID).First(&member).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		member = models.ProjectMember{
			ProjectID:    projectID,
			UserID:       req.UserID,
			Role:         role,
			IsActive:     true,
			AssignedByID: actorID,
		}
		if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
			return outcome.Outcome[*models.ProjectMember]{}, fmt.Errorf("add member: %w", err)
		}
	case err != nil:
		return outcome.Outcome[*models.ProjectMember]{}, fmt.Errorf("find member: %w", err)
	default:
		if err := s.db.WithContext(ctx).Model(&member).Updates(map[string]interface{}{
			"role":           role,
			"is_active":      true,
			"assigned_by_id": actorID,
		}).Error; err != nil {
			return outcome.Outcome[*models.ProjectMember]{}, fmt.Errorf("reactivate member: %w", err)
		}
		member.Role, member.IsActive, member.AssignedByID = role, true, actorID
	}
	member.User = user

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "add", EntityType: EntityProjectMember, EntityID: member.ID,
		Details: map[string]interface{}{"project_id": projectID, "user_id": req.UserID, "role": role}})
	return outcome.Success(&member), nil
}

// ChangeRole updates an active membership's project role.
func (s *ProjectMemberService) ChangeRole(ctx context.Context, actorID, projectID, userID uint, req *UpdateMemberRequest) (outcome.Outcome[*models.ProjectMember], error) {
	if g := s.engine.CanModifyProject(ctx, actorID, projectID); !g.IsSuccess() {
		return outcome.Chain[*models.ProjectMember](g, "cannot change member role"), nil
	}
	member, err := s.activeMember(ctx, projectID, userID)
	if err != nil || member == nil {
		return notFound[*models.ProjectMember](err)
	}
	if managerID, err := s.dir.ProjectManager(ctx, projectID); err != nil {
		return outcome.Outcome[*models.ProjectMember]{}, err
	} else if managerID == userID {
		return outcome.Failure[*models.ProjectMember](MsgManagerMembership), nil
	}

	role := authz.ParseProjectRole(req.Role).String()
	previous := member.Role
	if err := s.db.WithContext(ctx).Model(member).Update("role", role).Error; err != nil {
		return outcome.Outcome[*models.ProjectMember]{}, fmt.Errorf("update member role: %w", err)
	}
	member.Role = role

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "change_role", EntityType: EntityProjectMember, EntityID: member.ID,
		Details: map[string]interface{}{"project_id": projectID, "user_id": userID, "from": previous, "to": role}})
	return outcome.Success(member), nil
}

// Deactivate ends a membership. The project manager's membership cannot be
// removed while it manages the project.
func (s *ProjectMemberService) Deactivate(ctx context.Context, actorID, projectID, userID uint) (outcome.Outcome[*models.ProjectMember], error) {
	if g := s.engine.CanModifyProject(ctx, actorID, projectID); !g.IsSuccess() {
		return outcome.Chain[*models.ProjectMember](g, "cannot remove member"), nil
	}
	member, err := s.activeMember(ctx, projectID, userID)
	if err != nil || member == nil {
		return notFound[*models.ProjectMember](err)
	}
	if managerID, err := s.dir.ProjectManager(ctx, projectID); err != nil {
		return outcome.Outcome[*models.ProjectMember]{}, err
	} else if managerID == userID {
		return outcome.Failure[*models.ProjectMember](MsgManagerMembership), nil
	}

	if err := s.db.WithContext(ctx).Model(member).Update("is_active", false).Error; err != nil {
		return outcome.Outcome[*models.ProjectMember]{}, fmt.Errorf("deactivate member: %w", err)
	}
	member.IsActive = false

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "deactivate", EntityType: EntityProjectMember, EntityID: member.ID,
		Details: map[string]interface{}{"project_id": projectID, "user_id": userID}})
	return outcome.Success(member), nil
}

func (s *ProjectMemberService) activeMember(ctx context.Context, projectID, userID uint) (*models.ProjectMember, error) {
	var member models.ProjectMember
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND is_active = ?", projectID, userID, true).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}
	return &member, nil
}
