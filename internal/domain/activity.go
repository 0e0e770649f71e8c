package domain

import "time"

// ActivityAction captures what happened in a timeline entry.
type ActivityAction string

const (
	ActionCreated            ActivityAction = "created"
	ActionComment            ActivityAction = "comment"
	ActionInternalNote       ActivityAction = "internal_note"
	ActionStatusChanged      ActivityAction = "status_changed"
	ActionEscalated          ActivityAction = "escalated"
	ActionAssigned           ActivityAction = "assigned"
	ActionDescriptionUpdated ActivityAction = "description_updated"
	ActionDeadlineExtended   ActivityAction = "deadline_extended"
	ActionReopened           ActivityAction = "reopened"
	ActionRated              ActivityAction = "rated"
)

// Visibility controls who may read an activity entry.
type Visibility string

const (
	VisibilityPublic         Visibility = "public"
	VisibilityStudentVisible Visibility = "student_visible"
	VisibilityAdminOnly      Visibility = "admin_only"
)

// VisibleToStudents reports whether ticket creators may see entries of this visibility.
func (v Visibility) VisibleToStudents() bool {
	return v == VisibilityPublic || v == VisibilityStudentVisible
}

// Activity is an immutable audit trail entry.
type Activity struct {
	ID         string
	TicketID   string
	Action     ActivityAction
	Details    map[string]any
	Visibility Visibility
	AuthorID   *string
	CreatedAt  time.Time
}
