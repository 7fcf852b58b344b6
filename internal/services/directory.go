package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"gorm.io/gorm"
)

// Directory is the gorm-backed store the authorization engine and the
// authentication flow read users and relationships from.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// FindByUsername returns nil without error when no user matches.
func (d *Directory) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return d.findOne(ctx, "username = ?", strings.TrimSpace(username))
}

// FindByEmail matches case-insensitively. It returns nil without error when
// no user matches.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.findOne(ctx, "LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

// FindByID returns nil without error when no user matches.
func (d *Directory) FindByID(ctx context.Context, id uint) (*models.User, error) {
	if id == 0 {
		return nil, nil
	}
	return d.findOne(ctx, "id = ?", id)
}

// ResolveIdentifier looks an identifier up as a username first and then as
// an email address.
func (d *Directory) ResolveIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	user, err := d.FindByUsername(ctx, identifier)
	if err != nil || user != nil {
		return user, err
	}
	if !strings.Contains(identifier, "@") {
		return nil, nil
	}
	return d.FindByEmail(ctx, identifier)
}

func (d *Directory) findOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// Principal implements authz.PrincipalLookup.
func (d *Directory) Principal(ctx context.Context, id uint) (authz.Principal, bool, error) {
	user, err := d.FindByID(ctx, id)
	if err != nil || user == nil {
		return authz.Principal{}, false, err
	}
	return toPrincipal(user), true, nil
}

func toPrincipal(u *models.User) authz.Principal {
	return authz.Principal{
		ID:          u.ID,
		DisplayName: u.Name(),
		Role:        authz.ParseRole(u.Role),
		Active:      u.IsActive,
	}
}

// ProjectMembership implements authz.RelationshipLookup.
func (d *Directory) ProjectMembership(ctx context.Context, projectID, userID uint) (authz.Membership, bool, error) {
	var member models.ProjectMember
	err := d.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authz.Membership{}, false, nil
	}
	if err != nil {
		return authz.Membership{}, false, fmt.Errorf("find membership: %w", err)
	}
	return authz.Membership{
		Role:   authz.ParseProjectRole(member.Role),
		Active: member.IsActive,
	}, true, nil
}

// IsTaskCollaborator implements authz.RelationshipLookup.
func (d *Directory) IsTaskCollaborator(ctx context.Context, taskID, userID uint) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.TaskCollaborator{}).
		Where("task_id = ? AND user_id = ? AND is_active = ?", taskID, userID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count collaborators: %w", err)
	}
	return count > 0, nil
}

// ProjectManager implements authz.RelationshipLookup. Unknown projects
// report manager 0.
func (d *Directory) ProjectManager(ctx context.Context, projectID uint) (uint, error) {
	var project models.Project
	err := d.db.WithContext(ctx).Select("id", "manager_id").First(&project, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find project manager: %w", err)
	}
	return project.ManagerID, nil
}
