package assignment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusdesk/ticket-sla/internal/domain"
)

func ptr(s string) *string { return &s }

func grant(user string, dom, scope *string) domain.AdminAssignment {
	return domain.AdminAssignment{UserID: user, Domain: dom, Scope: scope}
}

func hostelRouting() Routing {
	return Routing{CategoryID: "cat-hostel", Domain: "Hostel", Location: ptr("Block A")}
}

func TestExplicitAssigneeOwnsRegardlessOfRegion(t *testing.T) {
	r := hostelRouting()
	r.AssignedTo = ptr("admin-a")
	academics := grant("admin-a", ptr("Academics"), ptr("Library"))

	require.True(t, Resolve(r, academics, CategoryBinding{}))
	require.True(t, Owns(r, "admin-a", []domain.AdminAssignment{academics}, CategoryBinding{}))
	require.False(t, InScope(r, []domain.AdminAssignment{academics}))
}

func TestExplicitAssignmentHidesTicketFromRegionAdmins(t *testing.T) {
	r := hostelRouting()
	r.AssignedTo = ptr("admin-a")

	require.False(t, Resolve(r, grant("admin-b", ptr("Hostel"), nil), CategoryBinding{}))
	require.True(t, Resolve(r, grant("admin-b", ptr("Hostel"), nil), CategoryBinding{DefaultAdminID: ptr("admin-b")}))
}

func TestGlobalGrantCoversAssignedTickets(t *testing.T) {
	r := hostelRouting()
	r.AssignedTo = ptr("admin-a")
	global := grant("admin-g", ptr(domain.GlobalDomain), nil)

	require.True(t, Resolve(r, global, CategoryBinding{}))
	require.True(t, Resolve(r, grant("admin-g", nil, nil), CategoryBinding{}))
	require.True(t, Owns(r, "admin-g", []domain.AdminAssignment{global}, CategoryBinding{}))
	require.True(t, CoversAll([]domain.AdminAssignment{grant("admin-g", ptr("Hostel"), nil), global}))
	require.False(t, CoversAll([]domain.AdminAssignment{grant("admin-g", ptr("Hostel"), nil)}))
	require.False(t, CoversAll(nil))
}

func TestRegionMatching(t *testing.T) {
	r := hostelRouting()
	binding := CategoryBinding{}

	require.True(t, Resolve(r, grant("x", ptr("Hostel"), nil), binding))
	require.True(t, Resolve(r, grant("x", ptr("Hostel"), ptr("block a")), binding))
	require.False(t, Resolve(r, grant("x", ptr("Hostel"), ptr("Block B")), binding))
	require.False(t, Resolve(r, grant("x", ptr("Academics"), nil), binding))
	require.True(t, Resolve(r, grant("x", ptr(domain.GlobalDomain), nil), binding))
	require.True(t, Resolve(r, grant("x", nil, nil), binding))

	noLocation := r
	noLocation.Location = nil
	require.False(t, Resolve(noLocation, grant("x", ptr("Hostel"), ptr("Block A")), binding))
}

func TestOwnsWithoutGrantsUsesCategoryBinding(t *testing.T) {
	r := hostelRouting()
	binding := CategoryBinding{Assignments: []domain.CategoryAssignment{{CategoryID: "cat-hostel", UserID: "admin-c"}}}

	require.True(t, Owns(r, "admin-c", nil, binding))
	require.False(t, Owns(r, "admin-d", nil, binding))
}

func TestResolveCandidatePriority(t *testing.T) {
	r := hostelRouting()
	grants := []domain.AdminAssignment{
		grant("global-1", ptr(domain.GlobalDomain), nil),
		grant("domain-2", ptr("Hostel"), nil),
		grant("scoped-9", ptr("Hostel"), ptr("Block A")),
		grant("scoped-3", ptr("Hostel"), ptr("Block A")),
		grant("other-0", ptr("Academics"), nil),
	}

	explicit := r
	explicit.AssignedTo = ptr("chosen")
	require.Equal(t, "chosen", *ResolveCandidate(explicit, CategoryBinding{DefaultAdminID: ptr("def")}, grants))

	direct := CategoryBinding{
		DefaultAdminID: ptr("def"),
		Assignments: []domain.CategoryAssignment{
			{CategoryID: "cat-hostel", UserID: "direct-7"},
			{CategoryID: "cat-hostel", UserID: "direct-5"},
		},
	}
	require.Equal(t, "direct-5", *ResolveCandidate(r, direct, grants))
	require.Equal(t, "def", *ResolveCandidate(r, CategoryBinding{DefaultAdminID: ptr("def")}, grants))
	require.Equal(t, "scoped-3", *ResolveCandidate(r, CategoryBinding{}, grants))
	require.Equal(t, "domain-2", *ResolveCandidate(r, CategoryBinding{}, grants[:2]))
	require.Equal(t, "global-1", *ResolveCandidate(r, CategoryBinding{}, grants[:1]))
	require.Nil(t, ResolveCandidate(r, CategoryBinding{}, grants[4:]))
}

func TestRoutingFor(t *testing.T) {
	ticket := &domain.Ticket{CategoryID: "c1", Location: ptr("Lab 2"), AssignedTo: ptr("u1")}
	r := RoutingFor(ticket, &domain.Category{ID: "c1", Domain: "Academics"})

	require.Equal(t, "Academics", r.Domain)
	require.Equal(t, "Lab 2", *r.Location)
	require.Equal(t, "u1", *r.AssignedTo)
}
