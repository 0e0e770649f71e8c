package dto

import (
	"time"

	"github.com/campusdesk/ticket-sla/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title         string         `json:"title" validate:"required,max=200"`
	Description   string         `json:"description" validate:"required,max=10000"`
	CategoryID    string         `json:"category_id" validate:"required"`
	SubcategoryID *string        `json:"subcategory_id"`
	Location      *string        `json:"location" validate:"omitempty,max=200"`
	Fields        map[string]any `json:"fields"`
}

// AskQuestionRequest payload.
type AskQuestionRequest struct {
	Question string `json:"question" validate:"required,max=5000"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// CommentRequest payload.
type CommentRequest struct {
	Comment     string              `json:"comment" validate:"required,max=10000"`
	IsInternal  bool                `json:"is_internal"`
	Attachments []AttachmentRequest `json:"attachments" validate:"max=10,dive"`
}

// AttachmentRequest describes an uploaded file reference.
type AttachmentRequest struct {
	URL      string `json:"url" validate:"required,url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// ReassignRequest payload.
type ReassignRequest struct {
	AssignedTo string `json:"assignedTo" validate:"required"`
}

// StatusRequest payload.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=2000"`
}

// ReopenRequest payload.
type ReopenRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// ExtendRequest payload. Exactly one of Hours and Deadline is expected.
type ExtendRequest struct {
	Hours    float64    `json:"hours" validate:"omitempty,gt=0,lte=720"`
	Deadline *time.Time `json:"deadline"`
	Reason   string     `json:"reason" validate:"required,max=1000"`
}

// RatingRequest payload.
type RatingRequest struct {
	Score    int    `json:"score" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

// DescriptionRequest payload.
type DescriptionRequest struct {
	Description string `json:"description" validate:"required,max=10000"`
}

// TicketResponse is the API view of a ticket.
type TicketResponse struct {
	ID                   string                   `json:"id"`
	Title                string                   `json:"title"`
	Description          string                   `json:"description"`
	CategoryID           string                   `json:"category_id"`
	SubcategoryID        *string                  `json:"subcategory_id"`
	Location             *string                  `json:"location"`
	CreatedBy            string                   `json:"created_by"`
	AssignedTo           *string                  `json:"assigned_to"`
	Status               string                   `json:"status"`
	StatusLabel          string                   `json:"status_label"`
	Progress             int                      `json:"progress"`
	EscalationLevel      int                      `json:"escalation_level"`
	ReopenCount          int                      `json:"reopen_count"`
	AcknowledgementDueAt *time.Time               `json:"acknowledgement_due_at"`
	ResolutionDueAt      *time.Time               `json:"resolution_due_at"`
	IsOverdue            bool                     `json:"is_overdue"`
	IsPaused             bool                     `json:"is_paused"`
	RemainingHours       *float64                 `json:"remaining_hours"`
	Rating               *domain.TicketRating     `json:"rating,omitempty"`
	Extensions           []domain.ExtensionRecord `json:"extensions,omitempty"`
	AcknowledgedAt       *time.Time               `json:"acknowledged_at"`
	ResolvedAt           *time.Time               `json:"resolved_at"`
	ClosedAt             *time.Time               `json:"closed_at"`
	CreatedAt            time.Time                `json:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at"`
}

// ActivityResponse is one timeline entry.
type ActivityResponse struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Visibility string         `json:"visibility"`
	AuthorID   *string        `json:"author_id"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

// EscalationResponse reports the outcome of a manual escalation.
type EscalationResponse struct {
	Ticket      TicketResponse `json:"ticket"`
	Level       int            `json:"level"`
	EscalatedAt *time.Time     `json:"escalated_at"`
	RuleID      *string        `json:"rule_id,omitempty"`
	RecipientID string         `json:"recipient_id,omitempty"`
}

// CommentResponse returns the new entry and the ticket after the comment.
type CommentResponse struct {
	Activity *ActivityResponse `json:"activity,omitempty"`
	Ticket   TicketResponse    `json:"ticket"`
}

// OutboxEventResponse is an admin view of a dead-lettered event.
type OutboxEventResponse struct {
	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   *string   `json:"last_error"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`
}
