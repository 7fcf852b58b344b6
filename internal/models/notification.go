package models

import "time"

const (
	NotificationTaskAssigned   = "task_assigned"
	NotificationTaskUnassigned = "task_unassigned"
)

// Notification is a message delivered to a single user.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	Kind      string     `gorm:"size:50;index" json:"kind"`
	TaskID    *uint      `gorm:"index" json:"task_id,omitempty"`
	Message   string     `gorm:"size:500" json:"message"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
