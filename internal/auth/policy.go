package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gofiber/fiber/v2"

	"github.com/campusdesk/ticket-sla/internal/domain"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

// Resources and actions checked by the role policy.
const (
	ResourceTicket       = "ticket"
	ResourceAdminTickets = "admin_tickets"
	ResourceOutbox       = "outbox"
	ResourceStatuses     = "statuses"

	ActionCreate   = "create"
	ActionRead     = "read"
	ActionComment  = "comment"
	ActionEscalate = "escalate"
	ActionReopen   = "reopen"
	ActionRate     = "rate"
	ActionEdit     = "edit"
	ActionManage   = "manage"
)

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

var rolePolicies = [][]string{
	{string(domain.RoleStudent), ResourceTicket, ActionCreate},
	{string(domain.RoleStudent), ResourceTicket, ActionRead},
	{string(domain.RoleStudent), ResourceTicket, ActionComment},
	{string(domain.RoleStudent), ResourceTicket, ActionEscalate},
	{string(domain.RoleStudent), ResourceTicket, ActionReopen},
	{string(domain.RoleStudent), ResourceTicket, ActionRate},
	{string(domain.RoleStudent), ResourceTicket, ActionEdit},
	{string(domain.RoleStudent), ResourceStatuses, ActionRead},
	{string(domain.RoleAdmin), ResourceTicket, ActionManage},
	{string(domain.RoleAdmin), ResourceAdminTickets, ActionRead},
	{string(domain.RoleSuperAdmin), ResourceOutbox, "*"},
}

var roleInheritance = [][]string{
	{string(domain.RoleAdmin), string(domain.RoleStudent)},
	{string(domain.RoleSuperAdmin), string(domain.RoleAdmin)},
}

// Policy decides which role may perform which action. Ticket ownership is
// checked separately by the services.
type Policy struct {
	enforcer *casbin.Enforcer
}

// NewPolicy builds the in-memory role policy.
func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("load policy model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if _, err := enforcer.AddPolicies(rolePolicies); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(roleInheritance); err != nil {
		return nil, fmt.Errorf("add role inheritance: %w", err)
	}
	return &Policy{enforcer: enforcer}, nil
}

// Allowed reports whether role may perform action on resource.
func (p *Policy) Allowed(role domain.Role, resource, action string) bool {
	ok, err := p.enforcer.Enforce(string(role), resource, action)
	return err == nil && ok
}

// Require rejects callers whose role lacks the permission.
func (p *Policy) Require(resource, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !p.Allowed(principal.User.Role, resource, action) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
