package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/api/http/handlers"
	"github.com/campusdesk/ticket-sla/internal/auth"
	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/observability"
	"github.com/campusdesk/ticket-sla/internal/service"
	"github.com/campusdesk/ticket-sla/internal/tat"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

type fakeTickets struct {
	mu       sync.Mutex
	tickets  map[string]*domain.Ticket
	creates  int
	statuses []string
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{tickets: map[string]*domain.Ticket{}}
}

func (f *fakeTickets) CreateTicket(_ context.Context, actor service.Actor, input service.TicketCreateInput) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	t := &domain.Ticket{
		ID:          fmt.Sprintf("ticket-%d", f.creates),
		Title:       input.Title,
		Description: input.Description,
		CategoryID:  input.CategoryID,
		CreatedBy:   actor.UserID,
		Status:      domain.StatusOpen,
	}
	f.tickets[t.ID] = t
	return t, nil
}

func (f *fakeTickets) find(id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return t, nil
}

func (f *fakeTickets) AskQuestion(_ context.Context, _ service.Actor, id, _ string) (*domain.Ticket, error) {
	return f.find(id)
}

func (f *fakeTickets) AddComment(_ context.Context, actor service.Actor, id string, input service.CommentInput) (*service.CommentResult, error) {
	t, err := f.find(id)
	if err != nil {
		return nil, err
	}
	author := actor.UserID
	return &service.CommentResult{
		Activity: &domain.Activity{ID: "act-1", TicketID: id, Action: domain.ActionComment, Visibility: domain.VisibilityPublic, AuthorID: &author, Details: map[string]any{"comment": input.Comment}},
		Ticket:   t,
	}, nil
}

func (f *fakeTickets) ChangeStatus(_ context.Context, _ service.Actor, id, to, _ string) (*domain.Ticket, error) {
	t, err := f.find(id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, to)
	t.Status = to
	return t, nil
}

func (f *fakeTickets) Reopen(_ context.Context, _ service.Actor, id, _ string) (*domain.Ticket, error) {
	return f.find(id)
}

func (f *fakeTickets) Reassign(_ context.Context, _ service.Actor, id, _ string) (*domain.Ticket, error) {
	return f.find(id)
}

func (f *fakeTickets) ExtendDeadline(_ context.Context, _ service.Actor, id string, _ service.ExtendInput) (*domain.Ticket, error) {
	return f.find(id)
}

func (f *fakeTickets) UpdateDescription(_ context.Context, _ service.Actor, id, _ string) (*domain.Ticket, error) {
	return f.find(id)
}

func (f *fakeTickets) Rate(_ context.Context, _ service.Actor, id string, _ int, _ string) (*domain.Ticket, error) {
	return f.find(id)
}

func (f *fakeTickets) GetTicket(ctx context.Context, _ service.Actor, id string) (*service.TicketView, error) {
	t, err := f.find(id)
	if err != nil {
		return nil, err
	}
	view := f.View(ctx, t)
	return &view, nil
}

func (f *fakeTickets) View(_ context.Context, t *domain.Ticket) service.TicketView {
	return service.TicketView{Ticket: t, Status: domain.TicketStatus{Value: t.Status, Label: t.Status}}
}

func (f *fakeTickets) ListActivity(context.Context, service.Actor, string) ([]domain.Activity, error) {
	return nil, nil
}

func (f *fakeTickets) ListCreatedTickets(context.Context, service.Actor, []string, int, int) ([]service.TicketView, error) {
	return nil, nil
}

func (f *fakeTickets) ListAdminTickets(_ context.Context, actor service.Actor, _ service.AdminTicketFilter) ([]service.TicketView, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	return nil, nil
}

type fakeEscalator struct{}

func (fakeEscalator) Escalate(context.Context, service.Actor, string, string) (*service.EscalationResult, error) {
	return nil, apperrors.NewValidationError("not escalatable", nil)
}

type fakeOutbox struct{}

func (fakeOutbox) DeadLetters(context.Context, int, int) ([]domain.OutboxEvent, error) {
	return []domain.OutboxEvent{{ID: "evt-1", EventType: "ticket.created", Status: domain.OutboxDeadLetter}}, nil
}

func (fakeOutbox) Requeue(_ context.Context, id string) error {
	if id == "evt-1" {
		return nil
	}
	return pgx.ErrNoRows
}

type fakeStatuses struct{}

func (fakeStatuses) List(context.Context) ([]domain.TicketStatus, error) {
	return []domain.TicketStatus{{Value: domain.StatusOpen, Label: "Open"}}, nil
}

type memIdempotency struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
}

func (m *memIdempotency) Reserve(_ context.Context, record domain.IdempotencyRecord, now time.Time) (*domain.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[record.Key]; ok && existing.ExpiresAt.After(now) {
		return &existing, false, nil
	}
	m.records[record.Key] = record
	return &record, true, nil
}

func (m *memIdempotency) Complete(_ context.Context, key, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := m.records[key]
	record.ResourceID = &resourceID
	m.records[key] = record
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *memIdempotency) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type roleEnsurer struct{}

func (roleEnsurer) EnsureUser(_ context.Context, externalID string, profile service.Profile) (*domain.User, error) {
	return &domain.User{ID: "user-" + externalID, ExternalID: externalID, Role: profile.Role}, nil
}

type testServer struct {
	app     *fiber.App
	tickets *fakeTickets
	tokens  *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager("test-secret", 5)
	policy, err := auth.NewPolicy()
	require.NoError(t, err)

	tickets := newFakeTickets()
	idempotency := service.NewIdempotencyService(service.IdempotencyDependencies{
		Repo:  &memIdempotency{records: map[string]domain.IdempotencyRecord{}},
		Clock: tat.SystemClock{},
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-sla", "test", nil),
		Tickets:        handlers.NewTicketsHandler(tickets, fakeEscalator{}, idempotency),
		Admin:          handlers.NewAdminHandler(tickets, fakeOutbox{}, idempotency),
		Statuses:       handlers.NewStatusesHandler(fakeStatuses{}),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, roleEnsurer{}),
		Policy:         policy,
		Metrics:        metrics.Handler(),
	})
	return &testServer{app: app, tickets: tickets, tokens: tokens}
}

func (s *testServer) token(t *testing.T, externalID string, role domain.Role) string {
	t.Helper()
	raw, _, err := s.tokens.Issue(externalID, externalID, externalID+"@example.edu", role)
	require.NoError(t, err)
	return raw
}

func (s *testServer) do(t *testing.T, method, path, token, body string, headers map[string]string) (*nethttp.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestCreateTicketRequiresAuthentication(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, "POST", "/api/v1/tickets", "", `{"title":"Leak"}`, nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, apperrors.CodeUnauthorized, errorCode(body))
}

func TestCreateTicketValidatesPayload(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "stu-1", domain.RoleStudent)

	resp, body := s.do(t, "POST", "/api/v1/tickets", token, `{"title":"Leak"}`, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, apperrors.CodeValidation, errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	require.Equal(t, "required", details["category_id"])
	require.Zero(t, s.tickets.creates)
}

func TestCreateTicketIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	token := s.token(t, "stu-1", domain.RoleStudent)
	payload := `{"title":"Leak","description":"Tap leaking","category_id":"cat-hostel"}`
	key := map[string]string{"Idempotency-Key": "create-1"}

	resp, body := s.do(t, "POST", "/api/v1/tickets", token, payload, key)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	require.Equal(t, "ticket-1", data["id"])
	require.Equal(t, "user-stu-1", data["created_by"])

	resp, body = s.do(t, "POST", "/api/v1/tickets", token, payload, key)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	require.Equal(t, "ticket-1", body["data"].(map[string]any)["id"])
	require.Equal(t, 1, s.tickets.creates)

	resp, body = s.do(t, "POST", "/api/v1/tickets", token, `{"title":"Other","description":"x","category_id":"cat-hostel"}`, key)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, apperrors.CodeConflict, errorCode(body))

	other := s.token(t, "stu-2", domain.RoleStudent)
	resp, _ = s.do(t, "POST", "/api/v1/tickets", other, payload, key)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, 2, s.tickets.creates)
}

func TestStatusChangeNeedsAdminRole(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, "stu-1", domain.RoleStudent)
	admin := s.token(t, "adm-1", domain.RoleAdmin)

	resp, _ := s.do(t, "POST", "/api/v1/tickets", student, `{"title":"Leak","description":"Tap","category_id":"cat-hostel"}`, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := s.do(t, "POST", "/api/v1/tickets/ticket-1/status", student, `{"status":"in_progress"}`, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, apperrors.CodeForbidden, errorCode(body))

	resp, body = s.do(t, "POST", "/api/v1/tickets/ticket-1/status", admin, `{"status":"in_progress","note":"on it"}`, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, domain.StatusInProgress, body["data"].(map[string]any)["status"])
	require.Equal(t, []string{domain.StatusInProgress}, s.tickets.statuses)
}

func TestCommentResponseCarriesActivity(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, "stu-1", domain.RoleStudent)
	s.do(t, "POST", "/api/v1/tickets", student, `{"title":"Leak","description":"Tap","category_id":"cat-hostel"}`, nil)

	resp, body := s.do(t, "POST", "/api/v1/tickets/ticket-1/comments", student, `{"comment":"still leaking"}`, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	require.Equal(t, "comment", data["activity"].(map[string]any)["action"])
	require.Equal(t, "ticket-1", data["ticket"].(map[string]any)["id"])

	resp, _ = s.do(t, "POST", "/api/v1/tickets/missing/comments", student, `{"comment":"hello"}`, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestEscalateWithoutBodyRendersServiceError(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, "stu-1", domain.RoleStudent)
	resp, body := s.do(t, "POST", "/api/v1/tickets/ticket-1/escalate", student, "", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, apperrors.CodeValidation, errorCode(body))
}

func TestOutboxAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "adm-1", domain.RoleAdmin)
	super := s.token(t, "sup-1", domain.RoleSuperAdmin)

	resp, _ := s.do(t, "GET", "/api/v1/admin/outbox/dead-letters", admin, "", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := s.do(t, "GET", "/api/v1/admin/outbox/dead-letters", super, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, body["data"], 1)

	resp, _ = s.do(t, "POST", "/api/v1/admin/outbox/evt-1/requeue", super, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = s.do(t, "POST", "/api/v1/admin/outbox/evt-9/requeue", super, "", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, apperrors.CodeNotFound, errorCode(body))
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "GET", "/health/live", "", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "alive", body["status"])

	resp, _ = s.do(t, "GET", "/metrics", "", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = s.do(t, "GET", "/nowhere", "", "", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, apperrors.CodeNotFound, errorCode(body))
}

func TestStatusesListed(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, "stu-1", domain.RoleStudent)
	resp, body := s.do(t, "GET", "/api/v1/statuses", student, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, body["data"], 1)
}
