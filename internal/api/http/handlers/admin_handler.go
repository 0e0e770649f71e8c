package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/ticket-sla/internal/api/dto"
	"github.com/campusdesk/ticket-sla/internal/auth"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/service"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

// OutboxAdmin is implemented by *outbox.Dispatcher.
type OutboxAdmin interface {
	DeadLetters(ctx context.Context, limit, offset int) ([]domain.OutboxEvent, error)
	Requeue(ctx context.Context, id string) error
}

// AdminHandler serves the resolver queue and outbox maintenance endpoints.
type AdminHandler struct {
	tickets     TicketOperations
	outbox      OutboxAdmin
	idempotency IdempotencyGuard
}

// NewAdminHandler constructs handler.
func NewAdminHandler(tickets TicketOperations, outbox OutboxAdmin, idempotency IdempotencyGuard) *AdminHandler {
	return &AdminHandler{tickets: tickets, outbox: outbox, idempotency: idempotency}
}

// ListTickets GET /admin/tickets.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	limit, offset := parsePage(c)
	views, err := h.tickets.ListAdminTickets(c.UserContext(), actor, service.AdminTicketFilter{
		Statuses:    parseList(c.Query("status")),
		Mine:        c.QueryBool("mine", false),
		OverdueOnly: c.QueryBool("overdue", false),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(views)})
}

// DeadLetters GET /admin/outbox/dead-letters.
func (h *AdminHandler) DeadLetters(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	rows, err := h.outbox.DeadLetters(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.OutboxEventResponse, 0, len(rows))
	for i := range rows {
		items = append(items, outboxResponse(&rows[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Requeue POST /admin/outbox/:id/requeue.
func (h *AdminHandler) Requeue(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	_, _, err = runOnce(c, h.idempotency, actor, "outbox.requeue", func(ctx context.Context) (string, error) {
		if err := h.outbox.Requeue(ctx, id); err != nil {
			return "", apperrors.MapError(err, "dead-lettered event", map[string]any{"id": id})
		}
		return id, nil
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "status": domain.OutboxPending}})
}
