package repository

import (
	"context"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// AdminAssignmentRepository reads domain/scope grants.
type AdminAssignmentRepository interface {
	ListByUser(ctx context.Context, userID string) ([]domain.AdminAssignment, error)
	ListByDomain(ctx context.Context, domainName string) ([]domain.AdminAssignment, error)
}

type adminAssignmentRepository struct {
	db persistence.DBTX
}

// NewAdminAssignmentRepository builds repository.
func NewAdminAssignmentRepository(db persistence.DBTX) AdminAssignmentRepository {
	return &adminAssignmentRepository{db: db}
}

func (r *adminAssignmentRepository) ListByUser(ctx context.Context, userID string) ([]domain.AdminAssignment, error) {
	const query = `
        SELECT user_id, domain, scope FROM admin_assignments
        WHERE user_id=$1 ORDER BY domain NULLS LAST, scope NULLS LAST`
	return r.list(ctx, query, userID)
}

// ListByDomain returns assignments for domainName plus the Global and
// unrestricted ones, which match every domain.
func (r *adminAssignmentRepository) ListByDomain(ctx context.Context, domainName string) ([]domain.AdminAssignment, error) {
	const query = `
        SELECT user_id, domain, scope FROM admin_assignments
        WHERE domain=$1 OR domain=$2 OR domain IS NULL
        ORDER BY user_id ASC`
	return r.list(ctx, query, domainName, domain.GlobalDomain)
}

func (r *adminAssignmentRepository) list(ctx context.Context, query string, args ...any) ([]domain.AdminAssignment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AdminAssignment
	for rows.Next() {
		var assignment domain.AdminAssignment
		if err := rows.Scan(&assignment.UserID, &assignment.Domain, &assignment.Scope); err != nil {
			return nil, err
		}
		result = append(result, assignment)
	}
	return result, rows.Err()
}
