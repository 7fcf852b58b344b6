package models

import "time"

const (
	AuthTypeLocal = "local"
	AuthTypeLDAP  = "ldap"
)

// User is an account that can authenticate and act on projects and tasks.
// Role holds the canonical global role name; it is parsed with authz.ParseRole
// wherever it is read, so unknown values behave as guest.
type User struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Username    string     `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password    string     `gorm:"size:255" json:"-"` // bcrypt hash, empty for LDAP users
	Email       string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	DisplayName string     `gorm:"size:100" json:"display_name"`
	Role        string     `gorm:"size:50;default:guest;index" json:"role"` // admin, project_manager, member, guest
	AuthType    string     `gorm:"size:20;default:local" json:"auth_type"`  // local, ldap
	IsActive    bool       `gorm:"default:true;index" json:"is_active"`
	LastLogin   *time.Time `json:"last_login"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
