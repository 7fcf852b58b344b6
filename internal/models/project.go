package models

import "time"

// Project groups tasks and carries a single manager plus a set of members.
type Project struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	ManagerID   uint            `gorm:"index;not null" json:"manager_id"`
	Manager     *User           `gorm:"foreignKey:ManagerID" json:"manager,omitempty"`
	IsActive    bool            `gorm:"default:true;index" json:"is_active"`
	CreatedBy   uint            `json:"created_by"`
	Members     []ProjectMember `gorm:"foreignKey:ProjectID" json:"members,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }
