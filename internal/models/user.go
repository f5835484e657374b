package models

import "time"

// UserRole is the access level of a laboratory user.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleAnalyst    UserRole = "ANALYST"
)

// CanReview reports whether the role may approve or reject reports.
func (r UserRole) CanReview() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// User is a laboratory staff member.
type User struct {
	Base
	Email               string     `gorm:"uniqueIndex;not null" json:"email"`
	Password            string     `gorm:"not null" json:"-"`
	Name                string     `json:"name"`
	Role                UserRole   `gorm:"not null;default:ANALYST" json:"role"`
	IsActive            bool       `gorm:"default:true" json:"is_active"`
	RefreshTokenHash    string     `gorm:"size:64" json:"-"`
	FailedLoginAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}
