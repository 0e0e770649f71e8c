package repository

import (
	"context"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// EscalationRuleRepository looks up rules keyed by (domain, scope, level).
type EscalationRuleRepository interface {
	// Find returns pgx.ErrNoRows when no rule matches the exact key. A nil
	// scope matches only rules without a scope.
	Find(ctx context.Context, domainName string, scope *string, level int) (*domain.EscalationRule, error)
}

type escalationRuleRepository struct {
	db persistence.DBTX
}

// NewEscalationRuleRepository builds repository.
func NewEscalationRuleRepository(db persistence.DBTX) EscalationRuleRepository {
	return &escalationRuleRepository{db: db}
}

func (r *escalationRuleRepository) Find(ctx context.Context, domainName string, scope *string, level int) (*domain.EscalationRule, error) {
	const query = `
        SELECT id, domain, scope, level, tat_hours, escalate_to_user_id, notify_channel, created_at
        FROM escalation_rules
        WHERE domain=$1 AND scope IS NOT DISTINCT FROM $2 AND level=$3`
	var rule domain.EscalationRule
	if err := r.db.QueryRow(ctx, query, domainName, scope, level).Scan(
		&rule.ID,
		&rule.Domain,
		&rule.Scope,
		&rule.Level,
		&rule.TatHours,
		&rule.EscalateToUserID,
		&rule.NotifyChannel,
		&rule.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}
