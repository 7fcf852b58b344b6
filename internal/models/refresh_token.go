package models

import "time"

// RefreshToken is one long-lived session credential. Only the SHA-256 of
// the token is stored. A rotated token keeps a link to its successor so
// that replaying it can be detected.
type RefreshToken struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	TokenHash   string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt   time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt   *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	SuccessorID *uint      `json:"successor_id,omitempty"`
	ClientIP    string     `gorm:"size:64" json:"client_ip,omitempty"`
	UserAgent   string     `gorm:"size:255" json:"user_agent,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

// Rotated reports whether the token was revoked by a rotation rather than
// a logout.
func (t *RefreshToken) Rotated() bool {
	return t.RevokedAt != nil && t.SuccessorID != nil
}

// Usable reports whether the token may still open a session at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
