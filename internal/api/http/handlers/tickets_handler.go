package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/ticket-sla/internal/api/dto"
	"github.com/campusdesk/ticket-sla/internal/auth"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/service"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// TicketOperations is implemented by *service.TicketService.
type TicketOperations interface {
	CreateTicket(ctx context.Context, actor service.Actor, input service.TicketCreateInput) (*domain.Ticket, error)
	AskQuestion(ctx context.Context, actor service.Actor, ticketID, question string) (*domain.Ticket, error)
	AddComment(ctx context.Context, actor service.Actor, ticketID string, input service.CommentInput) (*service.CommentResult, error)
	ChangeStatus(ctx context.Context, actor service.Actor, ticketID, to, note string) (*domain.Ticket, error)
	Reopen(ctx context.Context, actor service.Actor, ticketID, reason string) (*domain.Ticket, error)
	Reassign(ctx context.Context, actor service.Actor, ticketID, assigneeID string) (*domain.Ticket, error)
	ExtendDeadline(ctx context.Context, actor service.Actor, ticketID string, input service.ExtendInput) (*domain.Ticket, error)
	UpdateDescription(ctx context.Context, actor service.Actor, ticketID, description string) (*domain.Ticket, error)
	Rate(ctx context.Context, actor service.Actor, ticketID string, score int, feedback string) (*domain.Ticket, error)
	GetTicket(ctx context.Context, actor service.Actor, ticketID string) (*service.TicketView, error)
	View(ctx context.Context, ticket *domain.Ticket) service.TicketView
	ListActivity(ctx context.Context, actor service.Actor, ticketID string) ([]domain.Activity, error)
	ListCreatedTickets(ctx context.Context, actor service.Actor, statuses []string, limit, offset int) ([]service.TicketView, error)
	ListAdminTickets(ctx context.Context, actor service.Actor, filter service.AdminTicketFilter) ([]service.TicketView, error)
}

// Escalator is implemented by *service.EscalationService.
type Escalator interface {
	Escalate(ctx context.Context, actor service.Actor, ticketID, reason string) (*service.EscalationResult, error)
}

// IdempotencyGuard is implemented by *service.IdempotencyService.
type IdempotencyGuard interface {
	Do(ctx context.Context, req service.IdempotentRequest, fn func(ctx context.Context) (string, error)) (string, bool, error)
}

// TicketsHandler serves ticket lifecycle endpoints.
type TicketsHandler struct {
	tickets     TicketOperations
	escalations Escalator
	idempotency IdempotencyGuard
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets TicketOperations, escalations Escalator, idempotency IdempotencyGuard) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, escalations: escalations, idempotency: idempotency}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.ticketMutation(c, "ticket.create", fiber.StatusCreated, func(ctx context.Context, actor service.Actor) (*domain.Ticket, error) {
		return h.tickets.CreateTicket(ctx, actor, service.TicketCreateInput{
			Title:         req.Title,
			Description:   req.Description,
			CategoryID:    req.CategoryID,
			SubcategoryID: req.SubcategoryID,
			Location:      req.Location,
			Fields:        req.Fields,
		})
	})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	limit, offset := parsePage(c)
	views, err := h.tickets.ListCreatedTickets(c.UserContext(), actor, parseList(c.Query("status")), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(views)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	return h.respondTicket(c, actor, c.Params("id"), fiber.StatusOK)
}

// ListActivity GET /tickets/:id/activity.
func (h *TicketsHandler) ListActivity(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	activities, err := h.tickets.ListActivity(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ActivityResponse, 0, len(activities))
	for i := range activities {
		items = append(items, activityResponse(&activities[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AskQuestion POST /tickets/:id/ask-question.
func (h *TicketsHandler) AskQuestion(c *fiber.Ctx) error {
	var req dto.AskQuestionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.ticketMutation(c, "ticket.ask_question", fiber.StatusOK, func(ctx context.Context, actor service.Actor) (*domain.Ticket, error) {
		return h.tickets.AskQuestion(ctx, actor, c.Params("id"), req.Question)
	})
}

// Escalate POST /tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	var req dto.EscalateRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}

	var result *service.EscalationResult
	id, replayed, err := h.once(c, actor, "ticket.escalate", func(ctx context.Context) (string, error) {
		res, err := h.escalations.Escalate(ctx, actor, c.Params("id"), req.Reason)
		if err != nil {
			return "", err
		}
		result = res
		return res.Ticket.ID, nil
	})
	if err != nil {
		return err
	}

	var resp dto.EscalationResponse
	if replayed {
		view, err := h.tickets.GetTicket(c.UserContext(), actor, id)
		if err != nil {
			return err
		}
		resp = dto.EscalationResponse{
			Ticket:      ticketResponse(view),
			Level:       view.Ticket.EscalationLevel,
			EscalatedAt: view.Ticket.Metadata.LastEscalationAt,
		}
	} else {
		view := h.tickets.View(c.UserContext(), result.Ticket)
		resp = dto.EscalationResponse{
			Ticket:      ticketResponse(&view),
			Level:       result.Level,
			EscalatedAt: result.Ticket.Metadata.LastEscalationAt,
			RuleID:      result.RuleID,
			RecipientID: result.RecipientID,
		}
	}
	return c.JSON(fiber.Map{"data": resp})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	var req dto.CommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}

	attachments := make([]service.Attachment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, service.Attachment{URL: att.URL, Name: att.Name, MimeType: att.MimeType})
	}
	var result *service.CommentResult
	id, replayed, err := h.once(c, actor, "ticket.comment", func(ctx context.Context) (string, error) {
		res, err := h.tickets.AddComment(ctx, actor, c.Params("id"), service.CommentInput{
			Comment:     req.Comment,
			IsInternal:  req.IsInternal,
			Attachments: attachments,
		})
		if err != nil {
			return "", err
		}
		result = res
		return res.Ticket.ID, nil
	})
	if err != nil {
		return err
	}

	if replayed {
		view, err := h.tickets.GetTicket(c.UserContext(), actor, id)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.CommentResponse{Ticket: ticketResponse(view)}})
	}
	view := h.tickets.View(c.UserContext(), result.Ticket)
	activity := activityResponse(result.Activity)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.CommentResponse{
		Activity: &activity,
		Ticket:   ticketResponse(&view),
	}})
}

// Reassign POST /tickets/:id/reassign.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	var req dto.ReassignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.ticketMutation(c, "ticket.reassign", fiber.StatusOK, func(ctx context.Context, actor service.Actor) (*domain.Ticket, error) {
		return h.tickets.Reassign(ctx, actor, c.Params("id"), req.AssignedTo)
	})
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.StatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.ticketMutation(c, "ticket.status", fiber.StatusOK, func(ctx context.Context, actor service.Actor) (*domain.Ticket, error) {
		return h.tickets.ChangeStatus(ctx, actor, c.Params("id"), req.Status, req.Note)
	})
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	var req dto.ReopenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.ticketMutation(c, "ticket.reopen", fiber.StatusOK, func(ctx context.Context, actor service.Actor) (*domain.Ticket, error) {
		return h.tickets.Reopen(ctx, actor, c.Params("id"), req.Reason)
	})
}

// ExtendDeadline POST /tickets/:id/extend.
func (h *TicketsHandler) ExtendDeadline(c *fiber.Ctx) error {
	var req dto.ExtendRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.ticketMutation(c, "ticket.extend", fiber.StatusOK, func(ctx context.Context, actor service.Actor) (*domain.Ticket, error) {
		return h.tickets.ExtendDeadline(ctx, actor, c.Params("id"), service.ExtendInput{
			Hours:    req.Hours,
			Deadline: req.Deadline,
			Reason:   req.Reason,
		})
	})
}

// Rate POST /tickets/:id/rating.
func (h *TicketsHandler) Rate(c *fiber.Ctx) error {
	var req dto.RatingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.ticketMutation(c, "ticket.rate", fiber.StatusOK, func(ctx context.Context, actor service.Actor) (*domain.Ticket, error) {
		return h.tickets.Rate(ctx, actor, c.Params("id"), req.Score, req.Feedback)
	})
}

// UpdateDescription PATCH /tickets/:id/description.
func (h *TicketsHandler) UpdateDescription(c *fiber.Ctx) error {
	var req dto.DescriptionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return h.ticketMutation(c, "ticket.description", fiber.StatusOK, func(ctx context.Context, actor service.Actor) (*domain.Ticket, error) {
		return h.tickets.UpdateDescription(ctx, actor, c.Params("id"), req.Description)
	})
}

// ticketMutation runs fn once per idempotency key and renders the ticket it
// returns. A replay renders the ticket's current state.
func (h *TicketsHandler) ticketMutation(c *fiber.Ctx, resourceType string, status int, fn func(ctx context.Context, actor service.Actor) (*domain.Ticket, error)) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var ticket *domain.Ticket
	id, replayed, err := h.once(c, actor, resourceType, func(ctx context.Context) (string, error) {
		t, err := fn(ctx, actor)
		if err != nil {
			return "", err
		}
		ticket = t
		return t.ID, nil
	})
	if err != nil {
		return err
	}
	if replayed {
		return h.respondTicket(c, actor, id, status)
	}
	view := h.tickets.View(c.UserContext(), ticket)
	return c.Status(status).JSON(fiber.Map{"data": ticketResponse(&view)})
}

func (h *TicketsHandler) once(c *fiber.Ctx, actor service.Actor, resourceType string, fn func(ctx context.Context) (string, error)) (string, bool, error) {
	return runOnce(c, h.idempotency, actor, resourceType, fn)
}

func (h *TicketsHandler) respondTicket(c *fiber.Ctx, actor service.Actor, ticketID string, status int) error {
	view, err := h.tickets.GetTicket(c.UserContext(), actor, ticketID)
	if err != nil {
		return err
	}
	return c.Status(status).JSON(fiber.Map{"data": ticketResponse(view)})
}
