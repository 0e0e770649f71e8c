package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/assignment"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/events"
	"github.com/campusdesk/ticket-sla/internal/repository"
	"github.com/campusdesk/ticket-sla/internal/tat"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func at(day, hour int) time.Time {
	return time.Date(2026, time.October, day, hour, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

// memStore keeps tickets and activities and supports rollback through memTransactor.
type memStore struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	clock      tat.Clock
	seq        int
	tickets    map[string]domain.Ticket
	activities []domain.Activity
	failAppend error
	categories *memCategories
}

func newMemStore(clock tat.Clock) *memStore {
	return &memStore{clock: clock, tickets: map[string]domain.Ticket{}}
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	raw, _ := t.Metadata.Encode()
	t.Metadata, _ = domain.DecodeMetadata(raw)
	return t
}

// put overwrites a stored ticket as is, bypassing the services.
func (s *memStore) put(t domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
}

func (s *memStore) get(id string) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTicket(s.tickets[id])
}

func (s *memStore) activitiesOf(ticketID string, action domain.ActivityAction) []domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Activity
	for _, a := range s.activities {
		if a.TicketID == ticketID && a.Action == action {
			out = append(out, a)
		}
	}
	return out
}

type memTickets struct{ s *memStore }

func (r memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.seq++
	ticket.ID = "ticket-" + strconv.Itoa(r.s.seq)
	ticket.CreatedAt = r.s.clock.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r memTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.s.clock.Now()
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := cloneTicket(t)
	return &out, nil
}

func (r memTickets) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r memTickets) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	statuses := map[string]bool{}
	for _, st := range filter.Statuses {
		statuses[st] = true
	}
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssignedTo != nil && !t.IsAssignedTo(*filter.AssignedTo) {
			continue
		}
		if len(statuses) > 0 && !statuses[t.Status] {
			continue
		}
		if !r.s.owned(&t, filter) {
			continue
		}
		if filter.OverdueAt != nil && !running(&t, *filter.OverdueAt) {
			continue
		}
		out = append(out, cloneTicket(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

// owned applies the ownership filters with the resolver the SQL mirrors.
func (s *memStore) owned(t *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.OwnedBy == nil && len(filter.InGrants) == 0 {
		return true
	}
	category := s.categories.categories[t.CategoryID]
	routing := assignment.RoutingFor(t, category)
	if filter.OwnedBy != nil {
		bindings, _ := s.categories.ListAssignments(context.Background(), t.CategoryID)
		binding := assignment.BindingFor(category, bindings)
		if !assignment.Owns(routing, filter.OwnedBy.UserID, filter.OwnedBy.Grants, binding) {
			return false
		}
	}
	return len(filter.InGrants) == 0 || assignment.InScope(routing, filter.InGrants)
}

// running reports a non-final ticket with no stored pause state whose
// deadline lies before now, as the overdue queries select them.
func running(t *domain.Ticket, now time.Time) bool {
	switch t.Status {
	case domain.StatusResolved, domain.StatusClosed, domain.StatusCancelled, domain.StatusAwaitingStudentResponse:
		return false
	}
	if t.Metadata.TAT != nil || t.Metadata.TATMalformed() {
		return false
	}
	return t.ResolutionDueAt != nil && t.ResolutionDueAt.Before(now)
}

func (r memTickets) ListOverdueCandidates(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		switch t.Status {
		case domain.StatusResolved, domain.StatusClosed, domain.StatusCancelled:
			continue
		}
		if t.ResolutionDueAt == nil || !t.ResolutionDueAt.Before(now) {
			continue
		}
		if t.Metadata.TAT != nil || t.Metadata.TATMalformed() {
			continue
		}
		out = append(out, cloneTicket(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, 0), nil
}

func page(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if offset >= len(tickets) {
		return nil
	}
	tickets = tickets[offset:]
	if limit > 0 && limit < len(tickets) {
		tickets = tickets[:limit]
	}
	return tickets
}

type memActivities struct{ s *memStore }

func (r memActivities) Append(_ context.Context, activity *domain.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failAppend != nil {
		return r.s.failAppend
	}
	r.s.seq++
	activity.ID = "act-" + strconv.Itoa(r.s.seq)
	activity.CreatedAt = r.s.clock.Now()
	r.s.activities = append(r.s.activities, *activity)
	return nil
}

func (r memActivities) ListByTicket(_ context.Context, ticketID string, studentView bool) ([]domain.Activity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Activity
	for _, a := range r.s.activities {
		if a.TicketID != ticketID {
			continue
		}
		if studentView && !a.Visibility.VisibleToStudents() {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type memTransactor struct{ s *memStore }

func (t memTransactor) WithinTx(_ context.Context, fn func(store repository.TxStore) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	t.s.mu.Lock()
	tickets := make(map[string]domain.Ticket, len(t.s.tickets))
	for id, ticket := range t.s.tickets {
		tickets[id] = ticket
	}
	activityCount := len(t.s.activities)
	t.s.mu.Unlock()

	if err := fn(repository.TxStore{Tickets: memTickets{t.s}, Activities: memActivities{t.s}}); err != nil {
		t.s.mu.Lock()
		t.s.tickets = tickets
		t.s.activities = t.s.activities[:activityCount]
		t.s.mu.Unlock()
		return err
	}
	return nil
}

type memCategories struct {
	categories  map[string]*domain.Category
	assignments []domain.CategoryAssignment
}

func (r *memCategories) GetByID(_ context.Context, id string) (*domain.Category, error) {
	c, ok := r.categories[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (r *memCategories) ListAssignments(_ context.Context, categoryID string) ([]domain.CategoryAssignment, error) {
	var out []domain.CategoryAssignment
	for _, a := range r.assignments {
		if a.CategoryID == categoryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memCategories) ListAssignmentsByUser(_ context.Context, userID string) ([]domain.CategoryAssignment, error) {
	var out []domain.CategoryAssignment
	for _, a := range r.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memAdmins struct {
	grants []domain.AdminAssignment
}

func (r *memAdmins) ListByUser(_ context.Context, userID string) ([]domain.AdminAssignment, error) {
	var out []domain.AdminAssignment
	for _, g := range r.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *memAdmins) ListByDomain(_ context.Context, domainName string) ([]domain.AdminAssignment, error) {
	var out []domain.AdminAssignment
	for _, g := range r.grants {
		if g.Domain == nil || *g.Domain == domainName || *g.Domain == domain.GlobalDomain {
			out = append(out, g)
		}
	}
	return out, nil
}

type memRules struct {
	rules []domain.EscalationRule
}

func (r *memRules) Find(_ context.Context, domainName string, scope *string, level int) (*domain.EscalationRule, error) {
	for _, rule := range r.rules {
		if rule.Domain != domainName || rule.Level != level {
			continue
		}
		if (rule.Scope == nil) != (scope == nil) {
			continue
		}
		if scope != nil && *rule.Scope != *scope {
			continue
		}
		out := rule
		return &out, nil
	}
	return nil, pgx.ErrNoRows
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (r *memUsers) Upsert(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.ExternalID == user.ExternalID {
			existing.Name, existing.Email = user.Name, user.Email
			*user = *existing
			return nil
		}
	}
	user.ID = "user-" + strconv.Itoa(len(r.users)+1)
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *u
	return &out, nil
}

func (r *memUsers) GetByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ExternalID == externalID {
			out := *u
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memStatuses struct {
	statuses []domain.TicketStatus
	err      error
	calls    int
}

func (r *memStatuses) List(context.Context) ([]domain.TicketStatus, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return append([]domain.TicketStatus(nil), r.statuses...), nil
}

func seededStatuses() []domain.TicketStatus {
	return []domain.TicketStatus{
		{Value: domain.StatusOpen, Label: "Open", Progress: 0, SortOrder: 10},
		{Value: domain.StatusAcknowledged, Label: "Acknowledged", Progress: 10, SortOrder: 20},
		{Value: domain.StatusReopened, Label: "Reopened", Progress: 30, SortOrder: 30},
		{Value: domain.StatusInProgress, Label: "In progress", Progress: 40, SortOrder: 40},
		{Value: domain.StatusAwaitingStudentResponse, Label: "Awaiting student response", Progress: 50, PausesTAT: true, SortOrder: 50},
		{Value: domain.StatusResolved, Label: "Resolved", Progress: 90, IsFinal: true, SortOrder: 90},
		{Value: domain.StatusClosed, Label: "Closed", Progress: 100, IsFinal: true, SortOrder: 100},
		{Value: domain.StatusCancelled, Label: "Cancelled", Progress: 100, IsFinal: true, SortOrder: 110},
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) (*domain.OutboxEvent, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, false, p.err
	}
	p.events = append(p.events, event)
	return &domain.OutboxEvent{ID: event.ID, EventType: string(event.Type)}, true, nil
}

func (p *recordingPublisher) ofType(eventType events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

var errAppendFailed = errors.New("append failed")

// fixture wires both services over the in-memory fakes. The clock starts on
// Monday 2026-10-19 09:00 UTC and the calendar is the default Mon-Sat one.
type fixture struct {
	clock       *testClock
	store       *memStore
	categories  *memCategories
	admins      *memAdmins
	rules       *memRules
	users       *memUsers
	statuses    *memStatuses
	publisher   *recordingPublisher
	registry    *StatusRegistry
	tickets     *TicketService
	escalations *EscalationService
}

var (
	student    = Actor{UserID: "stu-1", Role: domain.RoleStudent}
	otherStu   = Actor{UserID: "stu-2", Role: domain.RoleStudent}
	hostelAdm  = Actor{UserID: "adm-hostel", Role: domain.RoleAdmin}
	northAdm   = Actor{UserID: "adm-north", Role: domain.RoleAdmin}
	superAdmin = Actor{UserID: "sup-1", Role: domain.RoleSuperAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: at(19, 9)}
	store := newMemStore(clock)
	hostel := "Hostel"

	f := &fixture{
		clock: clock,
		store: store,
		categories: &memCategories{categories: map[string]*domain.Category{
			"cat-hostel":       {ID: "cat-hostel", Name: "Hostel", Domain: "Hostel", SLAHours: 48, AckHours: 4, IsActive: true},
			"cat-hostel-water": {ID: "cat-hostel-water", Name: "Water", Domain: "Hostel", ParentID: strPtr("cat-hostel"), IsActive: true},
			"cat-it":           {ID: "cat-it", Name: "IT", Domain: "IT", SLAHours: 24, AckHours: 2, IsActive: true, DefaultAdminID: strPtr("adm-lead")},
			"cat-closed":       {ID: "cat-closed", Name: "Retired", Domain: "Hostel", IsActive: false},
		}},
		admins: &memAdmins{grants: []domain.AdminAssignment{
			{UserID: "adm-hostel", Domain: &hostel, Scope: strPtr("Block A")},
			{UserID: "adm-north", Domain: &hostel, Scope: strPtr("Block B")},
		}},
		rules: &memRules{},
		users: &memUsers{users: map[string]*domain.User{
			"stu-1":      {ID: "stu-1", ExternalID: "ext-stu-1", Role: domain.RoleStudent},
			"stu-2":      {ID: "stu-2", ExternalID: "ext-stu-2", Role: domain.RoleStudent},
			"adm-hostel": {ID: "adm-hostel", ExternalID: "ext-adm-hostel", Role: domain.RoleAdmin},
			"adm-north":  {ID: "adm-north", ExternalID: "ext-adm-north", Role: domain.RoleAdmin},
			"adm-lead":   {ID: "adm-lead", ExternalID: "ext-adm-lead", Role: domain.RoleAdmin},
			"sup-1":      {ID: "sup-1", ExternalID: "ext-sup-1", Role: domain.RoleSuperAdmin},
		}},
		statuses:  &memStatuses{statuses: seededStatuses()},
		publisher: &recordingPublisher{},
	}
	store.categories = f.categories

	calc := tat.NewCalculator(tat.DefaultCalendar(time.UTC), clock)
	f.registry = NewStatusRegistry(StatusRegistryDependencies{
		Repo:          f.statuses,
		PauseStatuses: []string{domain.StatusAwaitingStudentResponse},
	})
	assignments := NewAssignmentService(AssignmentDependencies{CategoryRepo: f.categories, AdminRepo: f.admins})

	f.tickets = NewTicketService(TicketDependencies{
		Tx:           memTransactor{store},
		TicketRepo:   memTickets{store},
		ActivityRepo: memActivities{store},
		CategoryRepo: f.categories,
		UserRepo:     f.users,
		Statuses:     f.registry,
		Assignment:   assignments,
		Calculator:   calc,
		Publisher:    f.publisher,
		Logger:       zap.NewNop(),
	})
	f.escalations = NewEscalationService(EscalationDependencies{
		Tx:           memTransactor{store},
		TicketRepo:   memTickets{store},
		CategoryRepo: f.categories,
		RuleRepo:     f.rules,
		Statuses:     f.registry,
		Assignment:   assignments,
		Calculator:   calc,
		Publisher:    f.publisher,
		Cooldown:     time.Hour,
		Logger:       zap.NewNop(),
	})
	return f
}

func (f *fixture) createHostelTicket(t *testing.T, location string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), student, TicketCreateInput{
		Title:       "No hot water",
		Description: "The third floor showers have been cold since Sunday.",
		CategoryID:  "cat-hostel",
		Location:    strPtr(location),
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}
