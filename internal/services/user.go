package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/internal/utils"
	"github.com/huangang/tasksentry/pkg/outcome"
	"gorm.io/gorm"
)

type UserService struct {
	db                  *gorm.DB
	dir                 *Directory
	engine              *authz.Engine
	auth                *AuthService
	audit               *AuditService
	registrationEnabled bool
}

func NewUserService(db *gorm.DB, dir *Directory, engine *authz.Engine, auth *AuthService, audit *AuditService, registrationEnabled bool) *UserService {
	return &UserService{
		db:                  db,
		dir:                 dir,
		engine:              engine,
		auth:                auth,
		audit:               audit,
		registrationEnabled: registrationEnabled,
	}
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=100"`
	Email       string `json:"email" binding:"required,email,max=255"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	DisplayName string `json:"display_name" binding:"max=100"`
	// Role is parsed leniently: unknown names register a guest.
	Role string `json:"role"`
}

// Register creates a local account. actorID is zero for anonymous sign-up,
// which is limited to guest and member roles and may be switched off.
func (s *UserService) Register(ctx context.Context, actorID uint, req *RegisterRequest) (outcome.Outcome[*models.User], error) {
	if actorID == 0 && !s.registrationEnabled {
		return outcome.Failure[*models.User](MsgRegistrationClosed), nil
	}
	role := authz.ParseRole(req.Role)
	if !s.engine.CanRegisterAs(ctx, actorID, role) {
		return outcome.Failure[*models.User](MsgForbidden), nil
	}
	return s.createAccount(ctx, actorID, req, role)
}

// Create is the admin path for adding accounts of any role.
func (s *UserService) Create(ctx context.Context, actorID uint, req *RegisterRequest) (outcome.Outcome[*models.User], error) {
	if !s.engine.CanCreateUser(ctx, actorID) {
		return outcome.Failure[*models.User](MsgForbidden), nil
	}
	return s.createAccount(ctx, actorID, req, authz.ParseRole(req.Role))
}

func (s *UserService) createAccount(ctx context.Context, actorID uint, req *RegisterRequest, role authz.Role) (outcome.Outcome[*models.User], error) {
	if len(req.Password) > utils.MaxPasswordBytes {
		return outcome.Failure[*models.User](MsgPasswordTooLong), nil
	}
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	taken, err := s.identityTaken(ctx, username, email, 0)
	if err != nil {
		return outcome.Outcome[*models.User]{}, err
	}
	if taken {
		return outcome.Failure[*models.User](MsgUserExists), nil
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return outcome.Outcome[*models.User]{}, err
	}

	user := &models.User{
		Username:    username,
		Email:       email,
		Password:    hashed,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        role.String(),
		AuthType:    models.AuthTypeLocal,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return outcome.Outcome[*models.User]{}, fmt.Errorf("create user: %w", err)
	}

	creator := actorID
	if creator == 0 {
		creator = user.ID
	}
	s.audit.Record(ctx, AuditEntry{
		ActorID:    creator,
		Action:     "register",
		EntityType: EntityUser,
		EntityID:   user.ID,
		Details:    map[string]string{"role": user.Role},
	})
	return outcome.Success(user, "user created"), nil
}

// identityTaken reports whether username or email belongs to a user other
// than exceptID. Empty values are skipped.
func (s *UserService) identityTaken(ctx context.Context, username, email string, exceptID uint) (bool, error) {
	if username != "" {
		u, err := s.dir.FindByUsername(ctx, username)
		if err != nil {
			return false, err
		}
		if u != nil && u.ID != exceptID {
			return true, nil
		}
	}
	if email != "" {
		u, err := s.dir.FindByEmail(ctx, email)
		if err != nil {
			return false, err
		}
		if u != nil && u.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

type UserListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Username string `form:"username"`
	Role     string `form:"role" binding:"omitempty,user_role"`
	AuthType string `form:"auth_type" binding:"omitempty,oneof=local ldap"`
	IsActive *bool  `form:"is_active"`
}

type UserListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Items    []models.User `json:"items"`
}

// List returns users for administrators.
func (s *UserService) List(ctx context.Context, actorID uint, req *UserListRequest) (outcome.Outcome[*UserListResponse], error) {
	if g := s.engine.CanManageUsers(ctx, actorID); !g.IsSuccess() {
		return outcome.Chain[*UserListResponse](g, "cannot list users"), nil
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if req.Username != "" {
		query = query.Where("username LIKE ?", "%"+req.Username+"%")
	}
	if req.Role != "" {
		query = query.Where("role = ?", authz.ParseRole(req.Role).String())
	}
	if req.AuthType != "" {
		query = query.Where("auth_type = ?", req.AuthType)
	}
	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return outcome.Outcome[*UserListResponse]{}, fmt.Errorf("count users: %w", err)
	}

	var users []models.User
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("id ASC").Offset(offset).Limit(req.PageSize).Find(&users).Error; err != nil {
		return outcome.Outcome[*UserListResponse]{}, fmt.Errorf("list users: %w", err)
	}

	return outcome.Success(&UserListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    users,
	}), nil
}

// Get returns a user the actor may see. Denials and missing users look the
// same to the caller.
func (s *UserService) Get(ctx context.Context, actorID, targetID uint) (outcome.Outcome[*models.User], error) {
	if g := s.engine.CanViewUser(ctx, actorID, targetID); !g.IsSuccess() {
		return outcome.Failure[*models.User](MsgNotFound), nil
	}
	user, err := s.dir.FindByID(ctx, targetID)
	if err != nil {
		return outcome.Outcome[*models.User]{}, err
	}
	if user == nil {
		return outcome.Failure[*models.User](MsgNotFound), nil
	}
	return outcome.Success(user), nil
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	Email       *string `json:"email" binding:"omitempty,email,max=255"`
}

func (s *UserService) UpdateProfile(ctx context.Context, actorID, targetID uint, req *UpdateProfileRequest) (outcome.Outcome[*models.User], error) {
	if g := s.engine.CanUpdateProfile(ctx, actorID, targetID); !g.IsSuccess() {
		return outcome.Chain[*models.User](g, "cannot update profile"), nil
	}
	user, err := s.dir.FindByID(ctx, targetID)
	if err != nil {
		return outcome.Outcome[*models.User]{}, err
	}
	if user == nil {
		return outcome.Failure[*models.User](MsgNotFound), nil
	}

	updates := make(map[string]interface{})
	if req.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if user.AuthType == models.AuthTypeLDAP {
			return outcome.Failure[*models.User](MsgExternalAccount), nil
		}
		taken, err := s.identityTaken(ctx, "", email, user.ID)
		if err != nil {
			return outcome.Outcome[*models.User]{}, err
		}
		if taken {
			return outcome.Failure[*models.User](MsgUserExists), nil
		}
		updates["email"] = email
	}
	if len(updates) == 0 {
		return outcome.Failure[*models.User](MsgNoChanges), nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return outcome.Outcome[*models.User]{}, fmt.Errorf("update profile: %w", err)
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "update_profile", EntityType: EntityUser, EntityID: user.ID, Details: updates})
	return outcome.Success(user), nil
}

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,user_role"`
}

// ChangeRole stores the role the engine resolves for the request, which may
// be lower than the one asked for. The outcome message says so.
func (s *UserService) ChangeRole(ctx context.Context, actorID, targetID uint, req *ChangeRoleRequest) (outcome.Outcome[*models.User], error) {
	requested := authz.ParseRole(req.Role)
	resolved := s.engine.ResolveRoleChange(ctx, actorID, targetID, requested)
	if !resolved.IsSuccess() {
		return outcome.Chain[*models.User](resolved, "cannot change role"), nil
	}

	user, err := s.dir.FindByID(ctx, targetID)
	if err != nil {
		return outcome.Outcome[*models.User]{}, err
	}
	if user == nil {
		return outcome.Failure[*models.User](MsgNotFound), nil
	}

	previous := user.Role
	role := resolved.Data().String()
	if previous != role {
		if err := s.db.WithContext(ctx).Model(user).Update("role", role).Error; err != nil {
			return outcome.Outcome[*models.User]{}, fmt.Errorf("update role: %w", err)
		}
		s.audit.Record(ctx, AuditEntry{
			ActorID:    actorID,
			Action:     "change_role",
			EntityType: EntityUser,
			EntityID:   user.ID,
			Details:    map[string]string{"from": previous, "to": role, "requested": requested.String()},
		})
	}
	return outcome.Success(user, resolved.Message()), nil
}

// Activate re-enables an inactive account.
func (s *UserService) Activate(ctx context.Context, actorID, targetID uint) (outcome.Outcome[*models.User], error) {
	if !s.engine.CanActivate(ctx, actorID, targetID) {
		return outcome.Failure[*models.User](MsgForbidden), nil
	}
	return s.setActive(ctx, actorID, targetID, true)
}

// Deactivate disables an account and revokes its refresh tokens. Access
// tokens already issued stop working at the next authorization check.
func (s *UserService) Deactivate(ctx context.Context, actorID, targetID uint) (outcome.Outcome[*models.User], error) {
	if !s.engine.CanDeactivate(ctx, actorID, targetID) {
		return outcome.Failure[*models.User](MsgForbidden), nil
	}
	out, err := s.setActive(ctx, actorID, targetID, false)
	if err != nil || !out.IsSuccess() {
		return out, err
	}
	if err := s.auth.RevokeAllForUser(ctx, targetID); err != nil {
		return outcome.Outcome[*models.User]{}, err
	}
	return out, nil
}

func (s *UserService) setActive(ctx context.Context, actorID, targetID uint, active bool) (outcome.Outcome[*models.User], error) {
	user, err := s.dir.FindByID(ctx, targetID)
	if err != nil {
		return outcome.Outcome[*models.User]{}, err
	}
	if user == nil {
		return outcome.Failure[*models.User](MsgNotFound), nil
	}
	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return outcome.Outcome[*models.User]{}, fmt.Errorf("update user status: %w", err)
	}

	action := "activate"
	if !active {
		action = "deactivate"
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: action, EntityType: EntityUser, EntityID: user.ID})
	return outcome.Success(user), nil
}

// HardDelete removes an account together with its memberships,
// collaborations, notifications and refresh tokens. Tasks it was assigned
// become unassigned. Users who still manage a project cannot be deleted.
func (s *UserService) HardDelete(ctx context.Context, actorID, targetID uint) (outcome.Outcome[outcome.Empty], error) {
	if !s.engine.CanHardDelete(ctx, actorID, targetID) {
		return outcome.Failure[outcome.Empty](MsgForbidden), nil
	}

	var managed int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("manager_id = ?", targetID).Count(&managed).Error; err != nil {
		return outcome.Outcome[outcome.Empty]{}, fmt.Errorf("count managed projects: %w", err)
	}
	if managed > 0 {
		return outcome.Failure[outcome.Empty](MsgManagesProjects), nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", targetID).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", targetID).Delete(&models.TaskCollaborator{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Task{}).Where("assignee_id = ?", targetID).Update("assignee_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", targetID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", targetID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, targetID).Error
	})
	if err != nil {
		return outcome.Outcome[outcome.Empty]{}, fmt.Errorf("delete user: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: "delete", EntityType: EntityUser, EntityID: targetID})
	return outcome.Success(outcome.Empty{}, "user deleted"), nil
}

type UserTasksRequest struct {
	Status string `form:"status" binding:"omitempty,task_status"`
}

// ListTasks returns the active tasks a user is assigned to or collaborates
// on, optionally filtered by status.
func (s *UserService) ListTasks(ctx context.Context, actorID, targetID uint, req *UserTasksRequest) (outcome.Outcome[[]models.Task], error) {
	if g := s.engine.CanViewUser(ctx, actorID, targetID); !g.IsSuccess() {
		return outcome.Failure[[]models.Task](MsgNotFound), nil
	}

	collaborating := s.db.Model(&models.TaskCollaborator{}).
		Select("task_id").
		Where("user_id = ? AND is_active = ?", targetID, true)

	query := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where(s.db.Where("assignee_id = ?", targetID).Or("id IN (?)", collaborating))
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	tasks := []models.Task{}
	if err := query.Order("due_date IS NULL, due_date ASC, id ASC").Find(&tasks).Error; err != nil {
		return outcome.Outcome[[]models.Task]{}, fmt.Errorf("list user tasks: %w", err)
	}
	return outcome.Success(tasks), nil
}
