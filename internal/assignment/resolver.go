// Package assignment decides which admins own a ticket. Every function here is
// a pure function of its arguments.
package assignment

import (
	"sort"
	"strings"

	"github.com/campusdesk/ticket-sla/internal/domain"
)

// Routing is the part of a ticket that ownership depends on.
type Routing struct {
	AssignedTo *string
	CategoryID string
	Domain     string
	Location   *string
}

// CategoryBinding lists the admins bound directly to the ticket's category.
type CategoryBinding struct {
	DefaultAdminID *string
	Assignments    []domain.CategoryAssignment
}

// RoutingFor builds the routing view of ticket within category.
func RoutingFor(ticket *domain.Ticket, category *domain.Category) Routing {
	r := Routing{
		AssignedTo: ticket.AssignedTo,
		CategoryID: ticket.CategoryID,
		Location:   ticket.Location,
	}
	if category != nil {
		r.Domain = category.Domain
	}
	return r
}

// BindingFor collects the direct bindings of category.
func BindingFor(category *domain.Category, assignments []domain.CategoryAssignment) CategoryBinding {
	b := CategoryBinding{Assignments: assignments}
	if category != nil {
		b.DefaultAdminID = category.DefaultAdminID
	}
	return b
}

func (b CategoryBinding) binds(userID string) bool {
	if b.DefaultAdminID != nil && *b.DefaultAdminID == userID {
		return true
	}
	for _, a := range b.Assignments {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// Resolve reports whether the admin holding grant owns the ticket.
//
// An explicit assignee always owns the ticket, whatever its grant says. Global
// grants and admins bound to the category come next. Domain grants only cover
// unassigned tickets.
func Resolve(r Routing, grant domain.AdminAssignment, binding CategoryBinding) bool {
	if r.AssignedTo != nil && *r.AssignedTo == grant.UserID {
		return true
	}
	if isGlobal(grant) || binding.binds(grant.UserID) {
		return true
	}
	if r.AssignedTo != nil {
		return false
	}
	return matchesRegion(r, grant)
}

// Owns evaluates Resolve over every grant held by userID. Explicit and
// category ownership apply even when the admin has no grants at all.
func Owns(r Routing, userID string, grants []domain.AdminAssignment, binding CategoryBinding) bool {
	if r.AssignedTo != nil && *r.AssignedTo == userID {
		return true
	}
	if binding.binds(userID) {
		return true
	}
	for _, g := range grants {
		if g.UserID == userID && Resolve(r, g, binding) {
			return true
		}
	}
	return false
}

// InScope reports whether the ticket falls inside any of the admin's regions.
// It filters "my tickets" views: an explicit assignment outside every region
// still resolves through Owns but is left out here. No grants means no filter.
func InScope(r Routing, grants []domain.AdminAssignment) bool {
	if len(grants) == 0 {
		return true
	}
	for _, g := range grants {
		if matchesRegion(r, g) {
			return true
		}
	}
	return false
}

// ResolveCandidate picks the admin who should receive a new ticket, in order:
// explicit assignee, direct category assignment, category default admin,
// domain with matching scope, domain without scope, then Global. Ties break on
// the lowest user id so the choice is stable.
func ResolveCandidate(r Routing, binding CategoryBinding, grants []domain.AdminAssignment) *string {
	if r.AssignedTo != nil {
		return r.AssignedTo
	}
	if len(binding.Assignments) > 0 {
		ids := make([]string, 0, len(binding.Assignments))
		for _, a := range binding.Assignments {
			ids = append(ids, a.UserID)
		}
		return lowest(ids)
	}
	if binding.DefaultAdminID != nil {
		return binding.DefaultAdminID
	}

	var scoped, domainOnly, global []string
	for _, g := range grants {
		switch {
		case isGlobal(g):
			global = append(global, g.UserID)
		case *g.Domain != r.Domain:
			continue
		case g.Scope == nil:
			domainOnly = append(domainOnly, g.UserID)
		case scopeMatches(*g.Scope, r.Location):
			scoped = append(scoped, g.UserID)
		}
	}
	for _, tier := range [][]string{scoped, domainOnly, global} {
		if len(tier) > 0 {
			return lowest(tier)
		}
	}
	return nil
}

// CoversAll reports whether any grant is Global, which owns every ticket.
func CoversAll(grants []domain.AdminAssignment) bool {
	for _, g := range grants {
		if isGlobal(g) {
			return true
		}
	}
	return false
}

func matchesRegion(r Routing, g domain.AdminAssignment) bool {
	if isGlobal(g) {
		return true
	}
	if *g.Domain != r.Domain {
		return false
	}
	if g.Scope == nil {
		return true
	}
	return scopeMatches(*g.Scope, r.Location)
}

func isGlobal(g domain.AdminAssignment) bool {
	return g.Domain == nil || *g.Domain == domain.GlobalDomain
}

func scopeMatches(scope string, location *string) bool {
	if location == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scope), strings.TrimSpace(*location))
}

func lowest(ids []string) *string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return &sorted[0]
}
