package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/events"
	"github.com/campusdesk/ticket-sla/internal/observability"
	"github.com/campusdesk/ticket-sla/internal/repository"
	"github.com/campusdesk/ticket-sla/internal/tat"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

const overdueReason = "resolution deadline passed"

// EscalationDependencies groups escalation collaborators.
type EscalationDependencies struct {
	Tx           repository.Transactor
	TicketRepo   repository.TicketRepository
	CategoryRepo repository.CategoryRepository
	RuleRepo     repository.EscalationRuleRepository
	Statuses     *StatusRegistry
	Assignment   *AssignmentService
	Calculator   *tat.Calculator
	Publisher    EventPublisher
	Cooldown     time.Duration
	SweepLimit   int
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// EscalationService raises escalation levels manually and from the overdue sweep.
type EscalationService struct {
	*mutator
	tickets    repository.TicketRepository
	categories repository.CategoryRepository
	rules      repository.EscalationRuleRepository
	assignment *AssignmentService
	cooldown   time.Duration
	sweepLimit int
	metrics    *observability.Metrics
}

// EscalationResult describes one escalation step.
type EscalationResult struct {
	Ticket      *domain.Ticket
	Level       int
	RuleID      *string
	RecipientID string
}

// SweepResult summarises one overdue sweep.
type SweepResult struct {
	Scanned   int
	Escalated int
	Skipped   int
	Failed    int
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := deps.SweepLimit
	if limit <= 0 {
		limit = 200
	}
	return &EscalationService{
		mutator:    newMutator(deps.Tx, deps.Calculator, deps.Statuses, deps.Publisher, logger),
		tickets:    deps.TicketRepo,
		categories: deps.CategoryRepo,
		rules:      deps.RuleRepo,
		assignment: deps.Assignment,
		cooldown:   deps.Cooldown,
		sweepLimit: limit,
		metrics:    deps.Metrics,
	}
}

// Escalate raises the ticket one level on request of its creator or an
// owning admin. Creators are held to the cooldown between escalations.
func (s *EscalationService) Escalate(ctx context.Context, actor Actor, ticketID, reason string) (*EscalationResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual escalation"
	}
	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err, "ticket", map[string]any{"id": ticketID})
	}
	if current.CreatedBy != actor.UserID {
		ok, err := s.assignment.CanManage(ctx, actor, current)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.NewForbidden("access denied")
		}
	}
	category, err := s.categories.GetByID(ctx, current.CategoryID)
	if err != nil {
		return nil, apperrors.MapError(err, "category", map[string]any{"id": current.CategoryID})
	}

	var result *EscalationResult
	_, err = s.mutate(ctx, actor, ticketID, func(m *mutationScope) error {
		t := m.ticket
		if s.statuses.IsFinal(m.ctx, t.Status) {
			return apperrors.NewValidationError("cannot escalate a "+t.Status+" ticket", nil)
		}
		if !m.actor.IsAdmin() && s.coolingDown(t, m.now) {
			return apperrors.NewValidationError("ticket was escalated recently; try again later", map[string]any{
				"last_escalation_at": *t.Metadata.LastEscalationAt,
			})
		}
		rule, err := s.findRule(m.ctx, category.Domain, t.Location, t.EscalationLevel+1)
		if err != nil {
			return err
		}
		result, err = s.escalateLocked(m, category, rule, reason, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordEscalation("manual")
	return result, nil
}

// SweepOverdue escalates every overdue ticket that has not yet been escalated
// for its current deadline. Running it twice for the same breach escalates once.
func (s *EscalationService) SweepOverdue(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(started)) }()

	now := s.calc.Now()
	candidates, err := s.tickets.ListOverdueCandidates(ctx, now, s.sweepLimit)
	if err != nil {
		return SweepResult{}, err
	}
	pausing := s.statuses.PausingStatuses(ctx)
	result := SweepResult{Scanned: len(candidates)}
	for i := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		escalated, err := s.sweepOne(ctx, &candidates[i], pausing, now)
		switch {
		case err != nil:
			result.Failed++
			s.logger.Error("overdue escalation failed",
				zap.String("ticket_id", candidates[i].ID), zap.Error(err))
		case escalated:
			result.Escalated++
			s.metrics.RecordEscalation("automatic")
		default:
			result.Skipped++
		}
	}
	s.logger.Info("overdue sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("escalated", result.Escalated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *EscalationService) sweepOne(ctx context.Context, candidate *domain.Ticket, pausing map[string]bool, now time.Time) (bool, error) {
	category, err := s.categories.GetByID(ctx, candidate.CategoryID)
	if err != nil {
		return false, apperrors.MapError(err, "category", map[string]any{"id": candidate.CategoryID})
	}
	rule, err := s.findRule(ctx, category.Domain, candidate.Location, candidate.EscalationLevel+1)
	if err != nil {
		return false, err
	}

	escalated := false
	_, err = s.run(ctx, Actor{Role: domain.RoleSystem}, func(m *mutationScope) error {
		t, err := m.store.Tickets.GetForUpdate(m.ctx, candidate.ID)
		if err != nil {
			return err
		}
		m.ticket = t
		m.now = now
		if s.statuses.IsFinal(m.ctx, t.Status) || !s.dueForEscalation(t, pausing, now) {
			return nil
		}
		if t.EscalationLevel != candidate.EscalationLevel {
			if rule, err = s.findRule(m.ctx, category.Domain, t.Location, t.EscalationLevel+1); err != nil {
				return err
			}
		}
		if _, err := s.escalateLocked(m, category, rule, overdueReason, true); err != nil {
			return err
		}
		escalated = true
		return m.store.Tickets.Update(m.ctx, t)
	})
	return escalated, err
}

// dueForEscalation reports whether the sweep should escalate t at now. A held
// countdown is never due.
func (s *EscalationService) dueForEscalation(t *domain.Ticket, pausing map[string]bool, now time.Time) bool {
	if countdownHeld(t, pausing) || !s.calc.IsOverdue(t.ResolutionDueAt, t.Metadata, now) {
		return false
	}
	if marker := t.Metadata.EscalatedForDeadline; marker != nil && marker.Equal(*t.ResolutionDueAt) {
		return false
	}
	return !s.coolingDown(t, now)
}

func (s *EscalationService) coolingDown(t *domain.Ticket, now time.Time) bool {
	last := t.Metadata.LastEscalationAt
	return s.cooldown > 0 && last != nil && now.Sub(*last) < s.cooldown
}

// findRule tries the exact (domain, scope) key, then the domain without
// scope, then the Global domain. A nil rule means none matched.
func (s *EscalationService) findRule(ctx context.Context, domainName string, scope *string, level int) (*domain.EscalationRule, error) {
	type key struct {
		domain string
		scope  *string
	}
	var keys []key
	if scope != nil && strings.TrimSpace(*scope) != "" {
		keys = append(keys, key{domainName, scope})
	}
	keys = append(keys, key{domainName, nil})
	if domainName != domain.GlobalDomain {
		keys = append(keys, key{domain.GlobalDomain, nil})
	}
	for _, k := range keys {
		rule, err := s.rules.Find(ctx, k.domain, k.scope, level)
		if err == nil {
			return rule, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}
	return nil, nil
}

// escalateLocked raises the level of the locked ticket by one. The breach
// marker is set only once the deadline has passed; an earlier manual
// escalation leaves that breach to the sweep. Without a rule the ticket still
// escalates and the category default admin, if any, is notified by email.
func (s *EscalationService) escalateLocked(m *mutationScope, category *domain.Category, rule *domain.EscalationRule, reason string, automatic bool) (*EscalationResult, error) {
	t := m.ticket
	from := t.EscalationLevel
	t.EscalationLevel = from + 1
	now := m.now
	t.Metadata.LastEscalationAt = &now
	if t.ResolutionDueAt != nil && now.After(*t.ResolutionDueAt) {
		marker := *t.ResolutionDueAt
		t.Metadata.EscalatedForDeadline = &marker
	}

	details := map[string]any{
		"from_level": from,
		"to_level":   t.EscalationLevel,
		"reason":     reason,
		"automatic":  automatic,
	}
	payload := events.TicketEscalatedPayload{
		Level:     t.EscalationLevel,
		Reason:    reason,
		Automatic: automatic,
	}
	if rule != nil {
		ruleID := rule.ID
		payload.RuleID = &ruleID
		payload.RecipientID = rule.EscalateToUserID
		payload.Channel = rule.NotifyChannel
		details["rule_id"] = rule.ID
		details["escalate_to"] = rule.EscalateToUserID
		if rule.TatHours > 0 && !t.Metadata.IsPaused() {
			due := s.calc.Deadline(now, rule.TatHours)
			t.ResolutionDueAt = &due
			details["resolution_due_at"] = due
		}
	} else {
		details["rule_missing"] = true
		if category.DefaultAdminID != nil {
			payload.RecipientID = *category.DefaultAdminID
			payload.Channel = domain.ChannelEmail
			details["escalate_to"] = *category.DefaultAdminID
		}
	}

	activity, err := m.record(domain.ActionEscalated, domain.VisibilityPublic, details)
	if err != nil {
		return nil, err
	}
	m.emit(events.EventTicketEscalated, payload, activity)

	s.logger.Info("ticket escalated",
		zap.String("ticket_id", t.ID),
		zap.Int("level", t.EscalationLevel),
		zap.Bool("automatic", automatic),
		zap.Bool("rule_missing", rule == nil))
	return &EscalationResult{
		Ticket:      t,
		Level:       t.EscalationLevel,
		RuleID:      payload.RuleID,
		RecipientID: payload.RecipientID,
	}, nil
}
