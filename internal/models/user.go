package models

import "time"

// UserRole doubles as the audience tag used to target announcements.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleAgent  UserRole = "AGENT"
	RoleDealer UserRole = "DEALER"
)

// AudienceTag maps a role onto the lowercase audience vocabulary used by
// announcement targeting.
func (r UserRole) AudienceTag() string {
	switch r {
	case RoleAdmin:
		return AudienceAdmin
	case RoleAgent:
		return AudienceAgent
	case RoleDealer:
		return AudienceDealer
	default:
		return ""
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
