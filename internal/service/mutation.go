package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/events"
	"github.com/campusdesk/ticket-sla/internal/repository"
	"github.com/campusdesk/ticket-sla/internal/tat"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

// EventPublisher enqueues events into the outbox.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) (*domain.OutboxEvent, bool, error)
}

type pendingEvent struct {
	eventType events.EventType
	payload   any
	key       string
}

// mutationScope carries one transaction's ticket, activity writes and the
// events to enqueue once it commits.
type mutationScope struct {
	ctx     context.Context
	store   repository.TxStore
	ticket  *domain.Ticket
	actor   Actor
	now     time.Time
	pending []pendingEvent
}

func (m *mutationScope) record(action domain.ActivityAction, visibility domain.Visibility, details map[string]any) (*domain.Activity, error) {
	activity := &domain.Activity{
		TicketID:   m.ticket.ID,
		Action:     action,
		Details:    details,
		Visibility: visibility,
	}
	if m.actor.UserID != "" {
		author := m.actor.UserID
		activity.AuthorID = &author
	}
	if err := m.store.Activities.Append(m.ctx, activity); err != nil {
		return nil, fmt.Errorf("append %s activity: %w", action, err)
	}
	return activity, nil
}

func (m *mutationScope) emit(eventType events.EventType, payload any, activity *domain.Activity) {
	key := fmt.Sprintf("%s:%s", eventType, m.ticket.ID)
	if activity != nil {
		key = fmt.Sprintf("%s:%s", eventType, activity.ID)
	}
	m.pending = append(m.pending, pendingEvent{eventType: eventType, payload: payload, key: key})
}

// mutator holds what every ticket-writing service shares.
type mutator struct {
	tx        repository.Transactor
	calc      *tat.Calculator
	statuses  *StatusRegistry
	life      lifecycle
	publisher EventPublisher
	logger    *zap.Logger
}

func newMutator(tx repository.Transactor, calc *tat.Calculator, statuses *StatusRegistry, publisher EventPublisher, logger *zap.Logger) *mutator {
	return &mutator{
		tx:        tx,
		calc:      calc,
		statuses:  statuses,
		life:      lifecycle{calc: calc},
		publisher: publisher,
		logger:    logger,
	}
}

// run executes fn in one transaction and enqueues the collected events after
// commit. Enqueue failures are logged and never returned.
func (x *mutator) run(ctx context.Context, actor Actor, fn func(m *mutationScope) error) (*mutationScope, error) {
	scope := &mutationScope{ctx: ctx, actor: actor, now: x.calc.Now()}
	err := x.tx.WithinTx(ctx, func(store repository.TxStore) error {
		scope.store = store
		scope.pending = nil
		return fn(scope)
	})
	if err != nil {
		return nil, err
	}
	x.publishPending(ctx, scope)
	return scope, nil
}

// mutate locks ticketID, lets fn change it and writes it back. Unusable pause
// state is rebuilt before fn sees the ticket.
func (x *mutator) mutate(ctx context.Context, actor Actor, ticketID string, fn func(m *mutationScope) error) (*domain.Ticket, error) {
	scope, err := x.run(ctx, actor, func(m *mutationScope) error {
		ticket, err := m.store.Tickets.GetForUpdate(m.ctx, ticketID)
		if err != nil {
			return apperrors.MapError(err, "ticket", map[string]any{"id": ticketID})
		}
		if x.life.repair(ticket, x.statuses.PausingStatuses(m.ctx), m.now) {
			x.logger.Warn("rebuilt unusable pause state",
				zap.String("ticket_id", ticket.ID),
				zap.String("status", ticket.Status))
		}
		m.ticket = ticket
		if err := fn(m); err != nil {
			return err
		}
		return m.store.Tickets.Update(m.ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	return scope.ticket, nil
}

func (x *mutator) publishPending(ctx context.Context, scope *mutationScope) {
	if x.publisher == nil || scope.ticket == nil || len(scope.pending) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	actor := events.Actor{Role: scope.actor.Role}
	if scope.actor.UserID != "" {
		id := scope.actor.UserID
		actor.UserID = &id
	}
	for _, p := range scope.pending {
		event, err := events.New(uuid.NewString(), p.eventType, scope.ticket, actor, scope.now, p.payload)
		if err != nil {
			x.logger.Warn("build event", zap.String("event_type", string(p.eventType)), zap.Error(err))
			continue
		}
		event.Key = p.key
		if _, _, err := x.publisher.Publish(ctx, event); err != nil {
			x.logger.Warn("outbox enqueue failed; notification dropped",
				zap.String("event_type", string(p.eventType)),
				zap.String("ticket_id", scope.ticket.ID),
				zap.Error(err))
		}
	}
}
