package domain

import "time"

// Status values seeded into ticket_statuses. The registry table is the source of
// truth; these constants name the values the lifecycle table refers to.
const (
	StatusOpen                    = "open"
	StatusAcknowledged            = "acknowledged"
	StatusInProgress              = "in_progress"
	StatusAwaitingStudentResponse = "awaiting_student_response"
	StatusReopened                = "reopened"
	StatusResolved                = "resolved"
	StatusClosed                  = "closed"
	StatusCancelled               = "cancelled"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                   string
	Title                string
	Description          string
	CategoryID           string
	SubcategoryID        *string
	Location             *string
	CreatedBy            string
	AssignedTo           *string
	Status               string
	EscalationLevel      int
	ReopenCount          int
	AcknowledgementDueAt *time.Time
	ResolutionDueAt      *time.Time
	Metadata             TicketMetadata
	AcknowledgedAt       *time.Time
	ResolvedAt           *time.Time
	ClosedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsAssignedTo reports whether the ticket is explicitly assigned to userID.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// TicketStatus is a registry entry describing one status value.
type TicketStatus struct {
	Value     string `json:"value"`
	Label     string `json:"label"`
	Progress  int    `json:"progress"`
	IsFinal   bool   `json:"is_final"`
	PausesTAT bool   `json:"pauses_tat"`
	SortOrder int    `json:"sort_order"`
}
