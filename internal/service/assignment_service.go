package service

import (
	"context"

	"github.com/campusdesk/ticket-sla/internal/assignment"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/repository"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

// AssignmentDependencies groups assignment collaborators.
type AssignmentDependencies struct {
	CategoryRepo repository.CategoryRepository
	AdminRepo    repository.AdminAssignmentRepository
}

// AssignmentService loads routing inputs and delegates to the pure resolver.
type AssignmentService struct {
	categories repository.CategoryRepository
	admins     repository.AdminAssignmentRepository
}

// NewAssignmentService constructs the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		categories: deps.CategoryRepo,
		admins:     deps.AdminRepo,
	}
}

// CandidateFor returns the admin a new ticket in category should go to, or nil.
func (s *AssignmentService) CandidateFor(ctx context.Context, ticket *domain.Ticket, category *domain.Category) (*string, error) {
	bindings, err := s.categories.ListAssignments(ctx, category.ID)
	if err != nil {
		return nil, err
	}
	grants, err := s.admins.ListByDomain(ctx, category.Domain)
	if err != nil {
		return nil, err
	}
	return assignment.ResolveCandidate(
		assignment.RoutingFor(ticket, category),
		assignment.BindingFor(category, bindings),
		grants,
	), nil
}

// AdminView caches the per-admin inputs so list endpoints resolve many
// tickets without reloading grants.
type AdminView struct {
	actor      Actor
	grants     []domain.AdminAssignment
	categories map[string]*domain.Category
	bindings   map[string][]domain.CategoryAssignment
	svc        *AssignmentService
}

// ViewFor loads the grants held by actor.
func (s *AssignmentService) ViewFor(ctx context.Context, actor Actor) (*AdminView, error) {
	view := &AdminView{
		actor:      actor,
		categories: map[string]*domain.Category{},
		bindings:   map[string][]domain.CategoryAssignment{},
		svc:        s,
	}
	if !actor.IsAdmin() || actor.IsSuperAdmin() {
		return view, nil
	}
	grants, err := s.admins.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	view.grants = grants
	return view, nil
}

func (v *AdminView) routing(ctx context.Context, ticket *domain.Ticket) (assignment.Routing, assignment.CategoryBinding, error) {
	category, ok := v.categories[ticket.CategoryID]
	if !ok {
		loaded, err := v.svc.categories.GetByID(ctx, ticket.CategoryID)
		if err != nil {
			return assignment.Routing{}, assignment.CategoryBinding{}, apperrors.MapError(err, "category", map[string]any{"id": ticket.CategoryID})
		}
		bindings, err := v.svc.categories.ListAssignments(ctx, ticket.CategoryID)
		if err != nil {
			return assignment.Routing{}, assignment.CategoryBinding{}, err
		}
		category = loaded
		v.categories[ticket.CategoryID] = loaded
		v.bindings[ticket.CategoryID] = bindings
	}
	return assignment.RoutingFor(ticket, category), assignment.BindingFor(category, v.bindings[ticket.CategoryID]), nil
}

// CanManage reports whether the actor owns ticket. Super admins own everything
// and students own nothing.
func (v *AdminView) CanManage(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	if v.actor.IsSuperAdmin() {
		return true, nil
	}
	if !v.actor.IsAdmin() {
		return false, nil
	}
	routing, binding, err := v.routing(ctx, ticket)
	if err != nil {
		return false, err
	}
	return assignment.Owns(routing, v.actor.UserID, v.grants, binding), nil
}

// Grants returns the region grants held by the actor.
func (v *AdminView) Grants() []domain.AdminAssignment {
	return v.grants
}

// CanManage is the single-ticket form of AdminView.CanManage.
func (s *AssignmentService) CanManage(ctx context.Context, actor Actor, ticket *domain.Ticket) (bool, error) {
	view, err := s.ViewFor(ctx, actor)
	if err != nil {
		return false, err
	}
	return view.CanManage(ctx, ticket)
}
