package models

import "time"

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusArchived   = "archived"
)

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Visibility classifies who a task is meant for. It is informational and is
// not consulted by authorization.
const (
	VisibilityProject  = "project"
	VisibilityInternal = "internal"
	VisibilityClient   = "client"
)

var (
	TaskStatuses   = []string{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusArchived}
	TaskPriorities = []string{PriorityHigh, PriorityMedium, PriorityLow}
	Visibilities   = []string{VisibilityProject, VisibilityInternal, VisibilityClient}
)

// Task is a unit of work inside a project with at most one assignee.
type Task struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	ProjectID     uint               `gorm:"index;not null" json:"project_id"`
	Project       *Project           `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Title         string             `gorm:"size:200;not null" json:"title"`
	Description   string             `gorm:"type:text" json:"description"`
	Status        string             `gorm:"size:20;default:pending;index" json:"status"`
	Priority      string             `gorm:"size:20;default:medium" json:"priority"`
	Visibility    string             `gorm:"size:20;default:project" json:"visibility"`
	DueDate       *time.Time         `json:"due_date"`
	AssigneeID    *uint              `gorm:"index" json:"assignee_id"`
	Assignee      *User              `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	CreatedBy     uint               `json:"created_by"`
	IsActive      bool               `gorm:"default:true;index" json:"is_active"`
	Collaborators []TaskCollaborator `gorm:"foreignKey:TaskID" json:"collaborators,omitempty"`
	Comments      []TaskComment      `gorm:"foreignKey:TaskID" json:"comments,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }
