package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/ticket-sla/internal/domain"
)

// StatusLister is implemented by *service.StatusRegistry.
type StatusLister interface {
	List(ctx context.Context) ([]domain.TicketStatus, error)
}

// StatusesHandler exposes the status registry.
type StatusesHandler struct {
	statuses StatusLister
}

// NewStatusesHandler constructs handler.
func NewStatusesHandler(statuses StatusLister) *StatusesHandler {
	return &StatusesHandler{statuses: statuses}
}

// List GET /statuses.
func (h *StatusesHandler) List(c *fiber.Ctx) error {
	statuses, err := h.statuses.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": statuses})
}
