package models

import "time"

// UserRole is the marketplace side a user acts on.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleClient     UserRole = "CLIENT"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleDoer       UserRole = "DOER"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleSupervisor, RoleDoer:
		return true
	}
	return false
}

// User is a row of the users table. Inactive doers cannot be assigned.
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

func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}

// Pagination is attached to list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
