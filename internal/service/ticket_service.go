package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/assignment"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/events"
	"github.com/campusdesk/ticket-sla/internal/repository"
	"github.com/campusdesk/ticket-sla/internal/tat"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

// TicketSettings are the SLA budgets used when a category has none.
type TicketSettings struct {
	DefaultSLAHours float64
	DefaultAckHours float64
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Tx           repository.Transactor
	TicketRepo   repository.TicketRepository
	ActivityRepo repository.ActivityRepository
	CategoryRepo repository.CategoryRepository
	UserRepo     repository.UserRepository
	Statuses     *StatusRegistry
	Assignment   *AssignmentService
	Calculator   *tat.Calculator
	Publisher    EventPublisher
	Settings     TicketSettings
	Logger       *zap.Logger
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	*mutator
	tickets    repository.TicketRepository
	activities repository.ActivityRepository
	categories repository.CategoryRepository
	users      repository.UserRepository
	assignment *AssignmentService
	settings   TicketSettings
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title         string
	Description   string
	CategoryID    string
	SubcategoryID *string
	Location      *string
	Fields        map[string]any
}

// Attachment references a file stored outside this service.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// CommentInput describes a comment or internal note.
type CommentInput struct {
	Comment     string
	IsInternal  bool
	Attachments []Attachment
}

// ExtendInput moves the resolution deadline either by business hours or to
// an explicit time. Exactly one of Hours and Deadline is set.
type ExtendInput struct {
	Hours    float64
	Deadline *time.Time
	Reason   string
}

// AdminTicketFilter describes admin listing filters.
type AdminTicketFilter struct {
	Statuses    []string
	Mine        bool
	OverdueOnly bool
	Limit       int
	Offset      int
}

// TicketView is a ticket with its derived SLA state.
type TicketView struct {
	Ticket         *domain.Ticket
	Status         domain.TicketStatus
	IsOverdue      bool
	IsPaused       bool
	RemainingHours *float64
}

// CommentResult carries the stored activity and the ticket after the comment.
type CommentResult struct {
	Activity *domain.Activity
	Ticket   *domain.Ticket
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := deps.Settings
	if settings.DefaultSLAHours <= 0 {
		settings.DefaultSLAHours = 48
	}
	if settings.DefaultAckHours <= 0 {
		settings.DefaultAckHours = 4
	}
	return &TicketService{
		mutator:    newMutator(deps.Tx, deps.Calculator, deps.Statuses, deps.Publisher, logger),
		tickets:    deps.TicketRepo,
		activities: deps.ActivityRepo,
		categories: deps.CategoryRepo,
		users:      deps.UserRepo,
		assignment: deps.Assignment,
		settings:   settings,
	}
}

// CreateTicket opens a ticket, computes its deadlines and routes it to the
// best matching admin.
func (s *TicketService) CreateTicket(ctx context.Context, actor Actor, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description are required", nil)
	}

	category, err := s.categories.GetByID(ctx, input.CategoryID)
	if err != nil {
		return nil, apperrors.MapError(err, "category", map[string]any{"id": input.CategoryID})
	}
	if !category.IsActive {
		return nil, apperrors.NewValidationError("category is inactive", map[string]any{"category_id": category.ID})
	}
	if input.SubcategoryID != nil {
		sub, err := s.categories.GetByID(ctx, *input.SubcategoryID)
		if err != nil {
			return nil, apperrors.MapError(err, "subcategory", map[string]any{"id": *input.SubcategoryID})
		}
		if sub.ParentID == nil || *sub.ParentID != category.ID {
			return nil, apperrors.NewValidationError("subcategory does not belong to category", map[string]any{
				"category_id":    category.ID,
				"subcategory_id": sub.ID,
			})
		}
	}

	now := s.calc.Now()
	slaHours, ackHours := s.budgets(category)
	resolutionDue := s.calc.Deadline(now, slaHours)
	ackDue := s.calc.Deadline(now, ackHours)

	ticket := &domain.Ticket{
		Title:                title,
		Description:          description,
		CategoryID:           category.ID,
		SubcategoryID:        input.SubcategoryID,
		Location:             trimmedOrNil(input.Location),
		CreatedBy:            actor.UserID,
		Status:               domain.StatusOpen,
		AcknowledgementDueAt: &ackDue,
		ResolutionDueAt:      &resolutionDue,
		Metadata:             domain.TicketMetadata{Fields: input.Fields},
	}

	candidate, err := s.assignment.CandidateFor(ctx, ticket, category)
	if err != nil {
		s.logger.Warn("auto assignment failed; ticket left unassigned",
			zap.String("category_id", category.ID), zap.Error(err))
	}
	ticket.AssignedTo = candidate

	_, err = s.run(ctx, actor, func(m *mutationScope) error {
		if err := m.store.Tickets.Create(m.ctx, ticket); err != nil {
			return err
		}
		m.ticket = ticket
		details := map[string]any{
			"category_id":       category.ID,
			"resolution_due_at": resolutionDue,
		}
		if candidate != nil {
			details["assigned_to"] = *candidate
		}
		if _, err := m.record(domain.ActionCreated, domain.VisibilityPublic, details); err != nil {
			return err
		}
		m.emit(events.EventTicketCreated, events.TicketCreatedPayload{
			ResolutionDueAt: &resolutionDue,
			AutoAssigned:    candidate != nil,
		}, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("category_id", category.ID),
		zap.Bool("auto_assigned", candidate != nil))
	return ticket, nil
}

func (s *TicketService) budgets(category *domain.Category) (float64, float64) {
	sla, ack := category.SLAHours, category.AckHours
	if sla <= 0 {
		sla = s.settings.DefaultSLAHours
	}
	if ack <= 0 {
		ack = s.settings.DefaultAckHours
	}
	return sla, ack
}

// AskQuestion posts a question to the student and parks the ticket in
// awaiting_student_response, pausing its countdown.
func (s *TicketService) AskQuestion(ctx context.Context, actor Actor, ticketID, question string) (*domain.Ticket, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewValidationError("question is required", nil)
	}
	if _, err := s.loadManaged(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	pausing := s.statuses.PausingStatuses(ctx)

	return s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		t := m.ticket
		if t.Status != domain.StatusAwaitingStudentResponse {
			if err := s.changeStatus(m, domain.StatusAwaitingStudentResponse, pausing, "question asked"); err != nil {
				return err
			}
		}
		activity, err := m.record(domain.ActionComment, domain.VisibilityStudentVisible, map[string]any{
			"comment":     question,
			"is_question": true,
		})
		if err != nil {
			return err
		}
		m.emit(events.EventTicketCommentAdded, events.TicketCommentAddedPayload{
			ActivityID:  activity.ID,
			AuthorRole:  string(m.actor.Role),
			BodyPreview: events.Preview(question),
			IsQuestion:  true,
		}, activity)
		return nil
	})
}

// AddComment appends a comment. A reply from the creator to an awaiting
// ticket resumes work on it.
func (s *TicketService) AddComment(ctx context.Context, actor Actor, ticketID string, input CommentInput) (*CommentResult, error) {
	body := strings.TrimSpace(input.Comment)
	if body == "" {
		return nil, apperrors.NewValidationError("comment is required", nil)
	}
	if input.IsInternal && !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("only admins may add internal notes")
	}
	for _, a := range input.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return nil, apperrors.NewValidationError("attachment url is required", nil)
		}
	}
	if _, err := s.loadForActor(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	pausing := s.statuses.PausingStatuses(ctx)

	var stored *domain.Activity
	ticket, err := s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		t := m.ticket
		if !input.IsInternal && s.statuses.IsFinal(m.ctx, t.Status) {
			return apperrors.NewValidationError("ticket is "+t.Status+"; reopen it to continue the conversation", map[string]any{"status": t.Status})
		}

		details := map[string]any{"comment": body}
		if len(input.Attachments) > 0 {
			details["attachments"] = input.Attachments
		}
		action, visibility := domain.ActionComment, domain.VisibilityPublic
		if input.IsInternal {
			action, visibility = domain.ActionInternalNote, domain.VisibilityAdminOnly
		}
		activity, err := m.record(action, visibility, details)
		if err != nil {
			return err
		}
		stored = activity
		if input.IsInternal {
			return nil
		}

		m.emit(events.EventTicketCommentAdded, events.TicketCommentAddedPayload{
			ActivityID:  activity.ID,
			AuthorRole:  string(m.actor.Role),
			BodyPreview: events.Preview(body),
		}, activity)

		if t.CreatedBy == m.actor.UserID && t.Status == domain.StatusAwaitingStudentResponse {
			return s.changeStatus(m, domain.StatusInProgress, pausing, "student replied")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CommentResult{Activity: stored, Ticket: ticket}, nil
}

// ChangeStatus moves a ticket along the lifecycle table.
func (s *TicketService) ChangeStatus(ctx context.Context, actor Actor, ticketID, to, note string) (*domain.Ticket, error) {
	to = strings.TrimSpace(to)
	if to == domain.StatusReopened {
		return nil, apperrors.NewValidationError("use the reopen operation to reopen a ticket", nil)
	}
	if _, ok := s.statuses.Lookup(ctx, to); !ok {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": to})
	}
	if _, err := s.loadManaged(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	pausing := s.statuses.PausingStatuses(ctx)

	return s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		return s.changeStatus(m, to, pausing, strings.TrimSpace(note))
	})
}

func (s *TicketService) changeStatus(m *mutationScope, to string, pausing map[string]bool, note string) error {
	from := m.ticket.Status
	if err := s.life.apply(m.ticket, to, pausing, m.now); err != nil {
		return err
	}
	details := map[string]any{"from": from, "to": to}
	if note != "" {
		details["note"] = note
	}
	activity, err := m.record(domain.ActionStatusChanged, domain.VisibilityPublic, details)
	if err != nil {
		return err
	}
	m.emit(events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
		OldStatus: from,
		NewStatus: to,
		Note:      note,
	}, activity)
	return nil
}

// Reopen returns a resolved or closed ticket to work with a fresh SLA budget.
func (s *TicketService) Reopen(ctx context.Context, actor Actor, ticketID, reason string) (*domain.Ticket, error) {
	current, err := s.loadForActor(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	category, err := s.categories.GetByID(ctx, current.CategoryID)
	if err != nil {
		return nil, apperrors.MapError(err, "category", map[string]any{"id": current.CategoryID})
	}
	slaHours, _ := s.budgets(category)
	pausing := s.statuses.PausingStatuses(ctx)
	reason = strings.TrimSpace(reason)

	return s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		t := m.ticket
		from := t.Status
		if err := s.life.apply(t, domain.StatusReopened, pausing, m.now); err != nil {
			return err
		}
		due := s.calc.Deadline(m.now, slaHours)
		t.ResolutionDueAt = &due

		activity, err := m.record(domain.ActionReopened, domain.VisibilityPublic, map[string]any{
			"from":              from,
			"reason":            reason,
			"reopen_count":      t.ReopenCount,
			"resolution_due_at": due,
		})
		if err != nil {
			return err
		}
		m.emit(events.EventTicketReopened, events.TicketReopenedPayload{
			Reason:      reason,
			ReopenCount: t.ReopenCount,
		}, activity)
		return nil
	})
}

// Reassign explicitly assigns the ticket to another admin.
func (s *TicketService) Reassign(ctx context.Context, actor Actor, ticketID, assigneeID string) (*domain.Ticket, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, apperrors.NewValidationError("assignee is required", nil)
	}
	if _, err := s.loadManaged(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, apperrors.MapError(err, "user", map[string]any{"id": assigneeID})
	}
	if !assignee.Role.IsAdmin() {
		return nil, apperrors.NewValidationError("assignee must be an admin", map[string]any{"assignee_id": assigneeID})
	}

	return s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		t := m.ticket
		if s.statuses.IsFinal(m.ctx, t.Status) {
			return apperrors.NewValidationError("cannot reassign a "+t.Status+" ticket", nil)
		}
		if t.IsAssignedTo(assigneeID) {
			return apperrors.NewValidationError("ticket is already assigned to this admin", nil)
		}
		previous := t.AssignedTo
		t.AssignedTo = &assignee.ID

		details := map[string]any{"to": assignee.ID}
		if previous != nil {
			details["from"] = *previous
		}
		activity, err := m.record(domain.ActionAssigned, domain.VisibilityPublic, details)
		if err != nil {
			return err
		}
		m.emit(events.EventTicketAssigned, events.TicketAssignedPayload{
			PreviousAssignee: previous,
			NewAssignee:      assignee.ID,
		}, activity)
		return nil
	})
}

// ExtendDeadline moves the resolution deadline later and records the history.
func (s *TicketService) ExtendDeadline(ctx context.Context, actor Actor, ticketID string, input ExtendInput) (*domain.Ticket, error) {
	if (input.Hours > 0) == (input.Deadline != nil) {
		return nil, apperrors.NewValidationError("provide either hours or deadline", nil)
	}
	if input.Hours < 0 {
		return nil, apperrors.NewValidationError("hours must be positive", nil)
	}
	if _, err := s.loadManaged(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)

	return s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		t := m.ticket
		if s.statuses.IsFinal(m.ctx, t.Status) {
			return apperrors.NewValidationError("cannot extend a "+t.Status+" ticket", nil)
		}
		previous := t.ResolutionDueAt
		var next time.Time
		if input.Deadline != nil {
			next = *input.Deadline
		} else {
			base := m.now
			if previous != nil {
				base = *previous
			}
			next = s.calc.Deadline(base, input.Hours)
		}
		if previous != nil && !next.After(*previous) {
			return apperrors.NewValidationError("new deadline must be later than the current one", map[string]any{
				"current_deadline": *previous,
			})
		}

		due := s.calc.Extend(&t.Metadata, previous, next, m.actor.UserID, reason, m.now)
		t.ResolutionDueAt = &due

		details := map[string]any{"new_deadline": due}
		if previous != nil {
			details["previous_deadline"] = *previous
		}
		if reason != "" {
			details["reason"] = reason
		}
		activity, err := m.record(domain.ActionDeadlineExtended, domain.VisibilityStudentVisible, details)
		if err != nil {
			return err
		}
		m.emit(events.EventTicketDeadlineExtended, events.TicketDeadlineExtendedPayload{
			PreviousDeadline: previous,
			NewDeadline:      due,
			Reason:           reason,
		}, activity)
		return nil
	})
}

// UpdateDescription lets the creator correct the ticket description.
func (s *TicketService) UpdateDescription(ctx context.Context, actor Actor, ticketID, description string) (*domain.Ticket, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.NewValidationError("description is required", nil)
	}
	current, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.CreatedBy != actor.UserID {
		return nil, apperrors.NewForbidden("only the creator may edit the description")
	}

	return s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		t := m.ticket
		if s.statuses.IsFinal(m.ctx, t.Status) {
			return apperrors.NewValidationError("cannot edit a "+t.Status+" ticket", nil)
		}
		if t.Description == description {
			return apperrors.NewValidationError("description is unchanged", nil)
		}
		previous := t.Description
		t.Description = description
		_, err := m.record(domain.ActionDescriptionUpdated, domain.VisibilityPublic, map[string]any{
			"previous": previous,
		})
		return err
	})
}

// Rate stores the creator's rating of a resolved or closed ticket.
func (s *TicketService) Rate(ctx context.Context, actor Actor, ticketID string, score int, feedback string) (*domain.Ticket, error) {
	if score < 1 || score > 5 {
		return nil, apperrors.NewValidationError("score must be between 1 and 5", map[string]any{"score": score})
	}
	current, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.CreatedBy != actor.UserID {
		return nil, apperrors.NewForbidden("only the creator may rate a ticket")
	}
	feedback = strings.TrimSpace(feedback)

	return s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		t := m.ticket
		if t.Status != domain.StatusResolved && t.Status != domain.StatusClosed {
			return apperrors.NewValidationError("only resolved or closed tickets can be rated", map[string]any{"status": t.Status})
		}
		if t.Metadata.Rating != nil {
			return apperrors.NewConflict("ticket already rated", nil)
		}
		t.Metadata.Rating = &domain.TicketRating{Score: score, Feedback: feedback, RatedAt: m.now}
		details := map[string]any{"score": score}
		if feedback != "" {
			details["feedback"] = feedback
		}
		_, err := m.record(domain.ActionRated, domain.VisibilityPublic, details)
		return err
	})
}

// GetTicket returns a ticket the actor may see together with its SLA state.
func (s *TicketService) GetTicket(ctx context.Context, actor Actor, ticketID string) (*TicketView, error) {
	ticket, err := s.loadForActor(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	view := s.view(ctx, ticket, s.calc.Now())
	return &view, nil
}

// View decorates a ticket the caller already holds with its SLA state.
func (s *TicketService) View(ctx context.Context, ticket *domain.Ticket) TicketView {
	return s.view(ctx, ticket, s.calc.Now())
}

// ListActivity returns the timeline, hiding admin-only entries from non-admins.
func (s *TicketService) ListActivity(ctx context.Context, actor Actor, ticketID string) ([]domain.Activity, error) {
	if _, err := s.loadForActor(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	return s.activities.ListByTicket(ctx, ticketID, !actor.IsAdmin())
}

// ListCreatedTickets returns the actor's own tickets.
func (s *TicketService) ListCreatedTickets(ctx context.Context, actor Actor, statuses []string, limit, offset int) ([]TicketView, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		CreatedBy: &actor.UserID,
		Statuses:  statuses,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}
	now := s.calc.Now()
	out := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		out = append(out, s.view(ctx, &tickets[i], now))
	}
	return out, nil
}

// ListAdminTickets returns tickets the admin owns, paged in the store. With
// Mine set only explicitly assigned tickets inside the admin's regions are
// returned.
func (s *TicketService) ListAdminTickets(ctx context.Context, actor Actor, filter AdminTicketFilter) ([]TicketView, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	now := s.calc.Now()

	repoFilter := repository.TicketFilter{Statuses: filter.Statuses, Limit: limit, Offset: offset}
	if filter.OverdueOnly {
		repoFilter.OverdueAt = &now
	}
	if filter.Mine {
		repoFilter.AssignedTo = &actor.UserID
	}
	if !actor.IsSuperAdmin() {
		view, err := s.assignment.ViewFor(ctx, actor)
		if err != nil {
			return nil, err
		}
		grants := view.Grants()
		switch {
		case assignment.CoversAll(grants):
			// a Global grant owns every ticket
		case filter.Mine:
			repoFilter.InGrants = grants
		default:
			repoFilter.OwnedBy = &repository.Ownership{UserID: actor.UserID, Grants: grants}
		}
	}

	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	out := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		v := s.view(ctx, &tickets[i], now)
		if filter.OverdueOnly && !v.IsOverdue {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *TicketService) view(ctx context.Context, ticket *domain.Ticket, now time.Time) TicketView {
	status, ok := s.statuses.Lookup(ctx, ticket.Status)
	if !ok {
		status = domain.TicketStatus{Value: ticket.Status, Label: ticket.Status}
	}
	held := countdownHeld(ticket, s.statuses.PausingStatuses(ctx))
	v := TicketView{
		Ticket:   ticket,
		Status:   status,
		IsPaused: held,
	}
	if status.IsFinal {
		return v
	}
	if !held {
		v.IsOverdue = s.calc.IsOverdue(ticket.ResolutionDueAt, ticket.Metadata, now)
	}
	if !held || ticket.Metadata.IsPaused() {
		v.RemainingHours = s.calc.RemainingHours(ticket.ResolutionDueAt, ticket.Metadata, now)
	}
	return v
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err, "ticket", map[string]any{"id": ticketID})
	}
	return ticket, nil
}

// loadForActor returns the ticket when the actor created it or manages it.
func (s *TicketService) loadForActor(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.CreatedBy == actor.UserID {
		return ticket, nil
	}
	ok, err := s.assignment.CanManage(ctx, actor, ticket)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// loadManaged returns the ticket when the actor is an admin who owns it.
func (s *TicketService) loadManaged(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	ok, err := s.assignment.CanManage(ctx, actor, ticket)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewForbidden("ticket is outside your assignments")
	}
	return ticket, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
