package models

import "time"

const (
	ProjectRoleAdmin  = "project_admin"
	ProjectRoleMember = "project_member"
	ProjectRoleViewer = "project_viewer"
)

// ProjectMember represents a user's membership and role within a project.
// Memberships are deactivated, never removed.
type ProjectMember struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProjectID    uint      `gorm:"uniqueIndex:idx_project_user;not null" json:"project_id"`
	Project      *Project  `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	UserID       uint      `gorm:"uniqueIndex:idx_project_user;not null" json:"user_id"`
	User         *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role         string    `gorm:"size:50;default:project_viewer" json:"role"` // project_admin, project_member, project_viewer
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	AssignedByID uint      `json:"assigned_by_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (ProjectMember) TableName() string { return "project_members" }
