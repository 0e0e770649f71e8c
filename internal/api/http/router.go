package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/campusdesk/ticket-sla/internal/api/http/handlers"
	"github.com/campusdesk/ticket-sla/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Admin          *handlers.AdminHandler
	Statuses       *handlers.StatusesHandler
	AuthMiddleware *auth.AuthMiddleware
	Policy         *auth.Policy
	Metrics        nethttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	allow := cfg.Policy.Require

	api.Get("/statuses", allow(auth.ResourceStatuses, auth.ActionRead), cfg.Statuses.List)

	tickets := api.Group("/tickets")
	tickets.Post("/", allow(auth.ResourceTicket, auth.ActionCreate), cfg.Tickets.CreateTicket)
	tickets.Get("/", allow(auth.ResourceTicket, auth.ActionRead), cfg.Tickets.ListTickets)
	tickets.Get("/:id", allow(auth.ResourceTicket, auth.ActionRead), cfg.Tickets.GetTicket)
	tickets.Get("/:id/activity", allow(auth.ResourceTicket, auth.ActionRead), cfg.Tickets.ListActivity)
	tickets.Post("/:id/comments", allow(auth.ResourceTicket, auth.ActionComment), cfg.Tickets.AddComment)
	tickets.Post("/:id/escalate", allow(auth.ResourceTicket, auth.ActionEscalate), cfg.Tickets.Escalate)
	tickets.Post("/:id/reopen", allow(auth.ResourceTicket, auth.ActionReopen), cfg.Tickets.Reopen)
	tickets.Post("/:id/rating", allow(auth.ResourceTicket, auth.ActionRate), cfg.Tickets.Rate)
	tickets.Patch("/:id/description", allow(auth.ResourceTicket, auth.ActionEdit), cfg.Tickets.UpdateDescription)

	manage := allow(auth.ResourceTicket, auth.ActionManage)
	tickets.Post("/:id/ask-question", manage, cfg.Tickets.AskQuestion)
	tickets.Post("/:id/reassign", manage, cfg.Tickets.Reassign)
	tickets.Post("/:id/status", manage, cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/extend", manage, cfg.Tickets.ExtendDeadline)

	admin := api.Group("/admin")
	admin.Get("/tickets", allow(auth.ResourceAdminTickets, auth.ActionRead), cfg.Admin.ListTickets)
	admin.Get("/outbox/dead-letters", allow(auth.ResourceOutbox, auth.ActionRead), cfg.Admin.DeadLetters)
	admin.Post("/outbox/:id/requeue", allow(auth.ResourceOutbox, auth.ActionManage), cfg.Admin.Requeue)
}
