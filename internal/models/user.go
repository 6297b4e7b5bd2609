package models

import "github.com/google/uuid"

// Role represents a caller's platform role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  Role
}

// IsAdmin reports whether the caller has the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanManage reports whether the caller owns the resource or is an admin.
func (c Caller) CanManage(owner uuid.UUID) bool {
	return c.IsAdmin() || c.ID == owner
}
