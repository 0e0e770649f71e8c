// Package notify delivers outbox events to people through Slack and email and
// mirrors them onto Kafka.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusdesk/ticket-sla/internal/domain"
)

// Recipient is the person a notification is addressed to.
type Recipient struct {
	UserID string
	Name   string
	Email  string
}

// TemplateData is the rendered content of a notification.
type TemplateData struct {
	Subject  string
	Body     string
	TicketID string
	Link     string
}

// DeliveryResult describes an accepted delivery.
type DeliveryResult struct {
	Channel   domain.NotifyChannel
	Recipient string
	MessageID string
}

// Sender delivers one message over one channel.
type Sender interface {
	Send(ctx context.Context, to Recipient, data TemplateData) (DeliveryResult, error)
}

// ErrChannelUnavailable is returned when no sender is configured for a channel.
var ErrChannelUnavailable = errors.New("notification channel not configured")

// Mux routes a send to the sender registered for a channel.
type Mux struct {
	senders map[domain.NotifyChannel]Sender
}

// NewMux builds a mux from the non-nil senders.
func NewMux(senders map[domain.NotifyChannel]Sender) *Mux {
	m := &Mux{senders: map[domain.NotifyChannel]Sender{}}
	for channel, sender := range senders {
		if sender != nil {
			m.senders[channel] = sender
		}
	}
	return m
}

// Send delivers data to recipient over channel.
func (m *Mux) Send(ctx context.Context, channel domain.NotifyChannel, to Recipient, data TemplateData) (DeliveryResult, error) {
	sender, ok := m.senders[channel]
	if !ok {
		return DeliveryResult{}, fmt.Errorf("%w: %s", ErrChannelUnavailable, channel)
	}
	return sender.Send(ctx, to, data)
}

// Has reports whether channel has a sender.
func (m *Mux) Has(channel domain.NotifyChannel) bool {
	_, ok := m.senders[channel]
	return ok
}
