package domain

import "time"

// GlobalDomain is the domain value that matches every ticket.
const GlobalDomain = "Global"

// Category groups tickets and carries their SLA and routing defaults.
type Category struct {
	ID             string
	Name           string
	Domain         string
	ParentID       *string
	DefaultAdminID *string
	SLAHours       float64
	AckHours       float64
	IsActive       bool
	CreatedAt      time.Time
}

// AdminAssignment grants an admin responsibility over a domain/scope region.
// A nil Domain means the admin has no domain restriction.
type AdminAssignment struct {
	UserID string
	Domain *string
	Scope  *string
}

// CategoryAssignment binds an admin directly to a category.
type CategoryAssignment struct {
	CategoryID string
	UserID     string
	CreatedAt  time.Time
}

// NotifyChannel names the sender used for escalation notifications.
type NotifyChannel string

const (
	ChannelEmail NotifyChannel = "email"
	ChannelSlack NotifyChannel = "slack"
)

// EscalationRule is keyed by (domain, scope, level).
type EscalationRule struct {
	ID               string
	Domain           string
	Scope            *string
	Level            int
	TatHours         float64
	EscalateToUserID string
	NotifyChannel    NotifyChannel
	CreatedAt        time.Time
}
