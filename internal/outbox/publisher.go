// Package outbox implements the transactional outbox: durable enqueue of
// ticket events and an at-least-once dispatcher.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/events"
	"github.com/campusdesk/ticket-sla/internal/observability"
	"github.com/campusdesk/ticket-sla/internal/repository"
	"github.com/campusdesk/ticket-sla/internal/tat"
)

// PublisherDependencies groups publisher collaborators.
type PublisherDependencies struct {
	Repo        repository.OutboxRepository
	Clock       tat.Clock
	MaxAttempts int
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Publisher writes events to the outbox table.
type Publisher struct {
	repo        repository.OutboxRepository
	clock       tat.Clock
	maxAttempts int
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewPublisher constructs a publisher.
func NewPublisher(deps PublisherDependencies) *Publisher {
	clock := deps.Clock
	if clock == nil {
		clock = tat.SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Publisher{
		repo:        deps.Repo,
		clock:       clock,
		maxAttempts: maxAttempts,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// Publish enqueues event. A duplicate idempotency key is not an error: the
// existing row is returned with created set to false.
func (p *Publisher) Publish(ctx context.Context, event events.Event) (*domain.OutboxEvent, bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, false, fmt.Errorf("encode outbox payload: %w", err)
	}
	row := &domain.OutboxEvent{
		EventType:     string(event.Type),
		AggregateType: events.AggregateTicket,
		AggregateID:   event.Ticket.ID,
		Payload:       payload,
		MaxAttempts:   p.maxAttempts,
		ScheduledAt:   p.clock.Now(),
		Priority:      event.Priority,
	}
	if event.Key != "" {
		key := event.Key
		row.IdempotencyKey = &key
	}

	created, err := p.repo.Enqueue(ctx, row)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", event.Type, err)
	}
	p.metrics.RecordEnqueue(row.EventType, created)
	if !created {
		p.logger.Debug("outbox event already enqueued",
			zap.String("event_type", row.EventType),
			zap.String("outbox_id", row.ID))
	}
	return row, created, nil
}
