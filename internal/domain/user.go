// Package domain contains core domain types for the agentdesk application.
package domain

import (
	"time"
)

// Role controls which agents a user may bind to.
type Role string

const (
	// RoleAdmin can chat with any agent.
	RoleAdmin Role = "admin"
	// RoleUser can chat only with agents they own.
	RoleUser Role = "user"
)

// User represents an account that owns agents and chat history.
type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin returns true if the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
