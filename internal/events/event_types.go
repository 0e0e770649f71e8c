package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusdesk/ticket-sla/internal/domain"
)

// EventType enumerates supported event identifiers. The value is stored in
// outbox.event_type.
type EventType string

const (
	EventTicketCreated          EventType = "ticket.created"
	EventTicketStatusChanged    EventType = "ticket.status_changed"
	EventTicketCommentAdded     EventType = "ticket.comment_added"
	EventTicketEscalated        EventType = "ticket.escalated"
	EventTicketAssigned         EventType = "ticket.assigned"
	EventTicketReopened         EventType = "ticket.reopened"
	EventTicketDeadlineExtended EventType = "ticket.deadline_extended"
)

// AggregateTicket is the outbox aggregate type of every ticket event.
const AggregateTicket = "ticket"

// Actor encapsulates actor metadata for an event. A nil UserID means the
// system acted, for example the escalation sweep.
type Actor struct {
	UserID *string     `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// TicketRef is the ticket snapshot every notification needs to pick recipients.
type TicketRef struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	CreatedBy       string  `json:"created_by"`
	AssignedTo      *string `json:"assigned_to,omitempty"`
	CategoryID      string  `json:"category_id"`
	EscalationLevel int     `json:"escalation_level"`
}

// RefOf snapshots ticket.
func RefOf(ticket *domain.Ticket) TicketRef {
	return TicketRef{
		ID:              ticket.ID,
		Title:           ticket.Title,
		Status:          ticket.Status,
		CreatedBy:       ticket.CreatedBy,
		AssignedTo:      ticket.AssignedTo,
		CategoryID:      ticket.CategoryID,
		EscalationLevel: ticket.EscalationLevel,
	}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Ticket    TicketRef       `json:"ticket"`
	Actor     Actor           `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	// Key deduplicates enqueues of the same logical event.
	Key string `json:"-"`
	// Priority orders dispatch; lower runs first.
	Priority int `json:"-"`
}

// New builds an event with payload marshalled into the envelope.
func New(id string, eventType EventType, ticket *domain.Ticket, actor Actor, at time.Time, payload any) (Event, error) {
	event := Event{
		ID:        id,
		Type:      eventType,
		Ticket:    RefOf(ticket),
		Actor:     actor,
		Timestamp: at,
		Priority:  DefaultPriority(eventType),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
		}
		event.Payload = raw
	}
	return event, nil
}

// DefaultPriority puts escalations ahead of routine updates.
func DefaultPriority(eventType EventType) int {
	switch eventType {
	case EventTicketEscalated:
		return 10
	case EventTicketCreated, EventTicketAssigned:
		return 50
	default:
		return 100
	}
}

// Decode parses an outbox payload back into an event.
func Decode(raw []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

// DecodePayload unmarshals the typed payload of event into out.
func (e Event) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, out)
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ResolutionDueAt *time.Time `json:"resolution_due_at,omitempty"`
	AutoAssigned    bool       `json:"auto_assigned"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Note      string `json:"note,omitempty"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	ActivityID  string `json:"activity_id"`
	AuthorRole  string `json:"author_role"`
	BodyPreview string `json:"body_preview"`
	IsQuestion  bool   `json:"is_question,omitempty"`
}

// TicketEscalatedPayload payload. Recipient is empty when no rule or default
// admin could be found.
type TicketEscalatedPayload struct {
	Level       int                  `json:"level"`
	Reason      string               `json:"reason"`
	Automatic   bool                 `json:"automatic"`
	RuleID      *string              `json:"rule_id,omitempty"`
	RecipientID string               `json:"recipient_id,omitempty"`
	Channel     domain.NotifyChannel `json:"channel,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousAssignee *string `json:"previous_assignee,omitempty"`
	NewAssignee      string  `json:"new_assignee"`
}

// TicketReopenedPayload payload.
type TicketReopenedPayload struct {
	Reason      string `json:"reason"`
	ReopenCount int    `json:"reopen_count"`
}

// TicketDeadlineExtendedPayload payload.
type TicketDeadlineExtendedPayload struct {
	PreviousDeadline *time.Time `json:"previous_deadline,omitempty"`
	NewDeadline      time.Time  `json:"new_deadline"`
	Reason           string     `json:"reason,omitempty"`
}

// Preview truncates body to a notification-friendly length.
func Preview(body string) string {
	const max = 140
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "…"
}
