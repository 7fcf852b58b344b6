package models

import "time"

// TaskCollaborator links a secondary participant to a task.
type TaskCollaborator struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    uint      `gorm:"uniqueIndex:idx_task_user;not null" json:"task_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_task_user;not null" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	AddedByID uint      `json:"added_by_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TaskCollaborator) TableName() string { return "task_collaborators" }
