package domain

import "time"

// Role enumerates what a user may do with tickets.
type Role string

const (
	RoleStudent    Role = "student"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	// RoleSystem marks changes made by background jobs. It is never stored.
	RoleSystem Role = "system"
)

// Valid reports whether r is a role a stored user may hold.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the role acts on behalf of the support desk.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User is the internal account mirrored from the identity provider.
type User struct {
	ID         string
	ExternalID string
	Name       string
	Email      string
	Role       Role
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
