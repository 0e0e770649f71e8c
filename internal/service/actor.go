package service

import "github.com/campusdesk/ticket-sla/internal/domain"

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID string
	Role   domain.Role
}

// IsAdmin reports whether the actor works the support desk.
func (a Actor) IsAdmin() bool {
	return a.Role.IsAdmin()
}

// IsSuperAdmin reports whether the actor bypasses ownership checks.
func (a Actor) IsSuperAdmin() bool {
	return a.Role == domain.RoleSuperAdmin
}
