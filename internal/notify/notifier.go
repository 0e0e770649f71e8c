package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/events"
)

// UserLookup resolves internal user ids to contact details.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// ChannelSender is satisfied by *Mux.
type ChannelSender interface {
	Send(ctx context.Context, channel domain.NotifyChannel, to Recipient, data TemplateData) (DeliveryResult, error)
}

// NotifierDependencies groups notifier collaborators.
type NotifierDependencies struct {
	Users         UserLookup
	Senders       ChannelSender
	PortalBaseURL string
	Logger        *zap.Logger
}

// Notifier turns ticket events into messages for the people involved.
type Notifier struct {
	users   UserLookup
	senders ChannelSender
	portal  string
	logger  *zap.Logger
}

// NewNotifier constructs a notifier.
func NewNotifier(deps NotifierDependencies) *Notifier {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		users:   deps.Users,
		senders: deps.Senders,
		portal:  strings.TrimRight(deps.PortalBaseURL, "/"),
		logger:  logger,
	}
}

// RegisterHandlers subscribes the notifier to every ticket event type.
func (n *Notifier) RegisterHandlers(dispatcher events.Dispatcher) {
	for _, eventType := range events.AllTypes() {
		dispatcher.Subscribe(eventType, n.Handle)
	}
}

// Handle delivers one event. Events without a recipient are dropped with a log line.
func (n *Notifier) Handle(ctx context.Context, event events.Event) error {
	recipientID, channel, data, err := n.render(event)
	if err != nil {
		return err
	}
	if recipientID == "" {
		n.logger.Info("notification has no recipient",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.Ticket.ID))
		return nil
	}
	if event.Actor.UserID != nil && *event.Actor.UserID == recipientID {
		return nil
	}

	user, err := n.users.GetByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("load recipient %s: %w", recipientID, err)
	}
	result, err := n.senders.Send(ctx, channel, Recipient{UserID: user.ID, Name: user.Name, Email: user.Email}, data)
	if err != nil {
		return err
	}
	n.logger.Info("notification delivered",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.Ticket.ID),
		zap.String("channel", string(result.Channel)),
		zap.String("message_id", result.MessageID))
	return nil
}

func (n *Notifier) render(event events.Event) (string, domain.NotifyChannel, TemplateData, error) {
	ticket := event.Ticket
	data := TemplateData{TicketID: ticket.ID, Link: n.link(ticket.ID)}
	channel := domain.ChannelEmail
	assignee := ""
	if ticket.AssignedTo != nil {
		assignee = *ticket.AssignedTo
	}

	switch event.Type {
	case events.EventTicketCreated:
		data.Subject = fmt.Sprintf("New ticket: %s", ticket.Title)
		data.Body = "A new ticket was assigned to you."
		return assignee, channel, data, nil

	case events.EventTicketStatusChanged:
		var p events.TicketStatusChangedPayload
		if err := event.DecodePayload(&p); err != nil {
			return "", "", data, err
		}
		data.Subject = fmt.Sprintf("Ticket %q is now %s", ticket.Title, humanize(p.NewStatus))
		data.Body = fmt.Sprintf("Status changed from %s to %s.", humanize(p.OldStatus), humanize(p.NewStatus))
		if p.Note != "" {
			data.Body += "\n\n" + p.Note
		}
		return ticket.CreatedBy, channel, data, nil

	case events.EventTicketCommentAdded:
		var p events.TicketCommentAddedPayload
		if err := event.DecodePayload(&p); err != nil {
			return "", "", data, err
		}
		data.Subject = fmt.Sprintf("New reply on %q", ticket.Title)
		if p.IsQuestion {
			data.Subject = fmt.Sprintf("Question about your ticket %q", ticket.Title)
		}
		data.Body = p.BodyPreview
		if p.AuthorRole == string(domain.RoleStudent) {
			return assignee, channel, data, nil
		}
		return ticket.CreatedBy, channel, data, nil

	case events.EventTicketEscalated:
		var p events.TicketEscalatedPayload
		if err := event.DecodePayload(&p); err != nil {
			return "", "", data, err
		}
		if p.Channel != "" {
			channel = p.Channel
		}
		data.Subject = fmt.Sprintf("Escalation level %d: %s", p.Level, ticket.Title)
		data.Body = fmt.Sprintf("Ticket escalated to level %d.", p.Level)
		if p.Reason != "" {
			data.Body += "\nReason: " + p.Reason
		}
		return p.RecipientID, channel, data, nil

	case events.EventTicketAssigned:
		var p events.TicketAssignedPayload
		if err := event.DecodePayload(&p); err != nil {
			return "", "", data, err
		}
		data.Subject = fmt.Sprintf("Ticket assigned to you: %s", ticket.Title)
		data.Body = "You are now responsible for this ticket."
		return p.NewAssignee, channel, data, nil

	case events.EventTicketReopened:
		var p events.TicketReopenedPayload
		if err := event.DecodePayload(&p); err != nil {
			return "", "", data, err
		}
		data.Subject = fmt.Sprintf("Ticket reopened: %s", ticket.Title)
		data.Body = fmt.Sprintf("The ticket was reopened (%d time(s)).", p.ReopenCount)
		if p.Reason != "" {
			data.Body += "\nReason: " + p.Reason
		}
		return assignee, channel, data, nil

	case events.EventTicketDeadlineExtended:
		var p events.TicketDeadlineExtendedPayload
		if err := event.DecodePayload(&p); err != nil {
			return "", "", data, err
		}
		data.Subject = fmt.Sprintf("New resolution date for %q", ticket.Title)
		data.Body = fmt.Sprintf("Expected resolution by %s.", p.NewDeadline.Format("Mon 02 Jan 2006 15:04 MST"))
		if p.Reason != "" {
			data.Body += "\nReason: " + p.Reason
		}
		return ticket.CreatedBy, channel, data, nil
	}
	return "", "", data, fmt.Errorf("%w: %s", events.ErrNoHandler, event.Type)
}

func (n *Notifier) link(ticketID string) string {
	if n.portal == "" {
		return ""
	}
	return n.portal + "/tickets/" + ticketID
}

func humanize(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}
