package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/ticket-sla/internal/api/dto"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/service"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(req)
}

// runOnce executes fn under the caller's Idempotency-Key, scoped to the actor.
func runOnce(c *fiber.Ctx, guard IdempotencyGuard, actor service.Actor, resourceType string, fn func(ctx context.Context) (string, error)) (string, bool, error) {
	id, replayed, err := guard.Do(c.UserContext(), service.IdempotentRequest{
		Key:          c.Get(idempotencyHeader),
		Scope:        actor.UserID,
		ResourceType: resourceType,
		Fingerprint:  service.Fingerprint([]byte(c.Method()), []byte(c.Path()), c.Body()),
	}, fn)
	if err == nil && replayed {
		c.Set(replayedHeader, "true")
	}
	return id, replayed, err
}

func parseList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePage(c *fiber.Ctx) (int, int) {
	limit := parseInt(c.Query("limit"), defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, parseInt(c.Query("offset"), 0)
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(view *service.TicketView) dto.TicketResponse {
	ticket := view.Ticket
	return dto.TicketResponse{
		ID:                   ticket.ID,
		Title:                ticket.Title,
		Description:          ticket.Description,
		CategoryID:           ticket.CategoryID,
		SubcategoryID:        ticket.SubcategoryID,
		Location:             ticket.Location,
		CreatedBy:            ticket.CreatedBy,
		AssignedTo:           ticket.AssignedTo,
		Status:               ticket.Status,
		StatusLabel:          view.Status.Label,
		Progress:             view.Status.Progress,
		EscalationLevel:      ticket.EscalationLevel,
		ReopenCount:          ticket.ReopenCount,
		AcknowledgementDueAt: ticket.AcknowledgementDueAt,
		ResolutionDueAt:      ticket.ResolutionDueAt,
		IsOverdue:            view.IsOverdue,
		IsPaused:             view.IsPaused,
		RemainingHours:       view.RemainingHours,
		Rating:               ticket.Metadata.Rating,
		Extensions:           ticket.Metadata.Extensions,
		AcknowledgedAt:       ticket.AcknowledgedAt,
		ResolvedAt:           ticket.ResolvedAt,
		ClosedAt:             ticket.ClosedAt,
		CreatedAt:            ticket.CreatedAt,
		UpdatedAt:            ticket.UpdatedAt,
	}
}

func ticketResponses(views []service.TicketView) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(views))
	for i := range views {
		items = append(items, ticketResponse(&views[i]))
	}
	return items
}

func activityResponse(activity *domain.Activity) dto.ActivityResponse {
	return dto.ActivityResponse{
		ID:         activity.ID,
		Action:     string(activity.Action),
		Visibility: string(activity.Visibility),
		AuthorID:   activity.AuthorID,
		Details:    activity.Details,
		CreatedAt:  activity.CreatedAt,
	}
}

func outboxResponse(event *domain.OutboxEvent) dto.OutboxEventResponse {
	return dto.OutboxEventResponse{
		ID:          event.ID,
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		Status:      string(event.Status),
		Attempts:    event.Attempts,
		MaxAttempts: event.MaxAttempts,
		LastError:   event.LastError,
		ScheduledAt: event.ScheduledAt,
		CreatedAt:   event.CreatedAt,
	}
}
