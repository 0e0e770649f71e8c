package repository

import (
	"context"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// CategoryRepository exposes categories and their direct admin bindings.
type CategoryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	ListAssignments(ctx context.Context, categoryID string) ([]domain.CategoryAssignment, error)
	ListAssignmentsByUser(ctx context.Context, userID string) ([]domain.CategoryAssignment, error)
}

type categoryRepository struct {
	db persistence.DBTX
}

// NewCategoryRepository builds repository.
func NewCategoryRepository(db persistence.DBTX) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	const query = `
        SELECT id, name, domain, parent_id, default_admin_id, sla_hours, ack_hours, is_active, created_at
        FROM categories WHERE id=$1`
	var category domain.Category
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&category.ID,
		&category.Name,
		&category.Domain,
		&category.ParentID,
		&category.DefaultAdminID,
		&category.SLAHours,
		&category.AckHours,
		&category.IsActive,
		&category.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) ListAssignments(ctx context.Context, categoryID string) ([]domain.CategoryAssignment, error) {
	const query = `
        SELECT category_id, user_id, created_at
        FROM category_assignments WHERE category_id=$1 ORDER BY user_id ASC`
	return r.listAssignments(ctx, query, categoryID)
}

func (r *categoryRepository) ListAssignmentsByUser(ctx context.Context, userID string) ([]domain.CategoryAssignment, error) {
	const query = `
        SELECT category_id, user_id, created_at
        FROM category_assignments WHERE user_id=$1 ORDER BY category_id ASC`
	return r.listAssignments(ctx, query, userID)
}

func (r *categoryRepository) listAssignments(ctx context.Context, query, arg string) ([]domain.CategoryAssignment, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CategoryAssignment
	for rows.Next() {
		var assignment domain.CategoryAssignment
		if err := rows.Scan(&assignment.CategoryID, &assignment.UserID, &assignment.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, assignment)
	}
	return result, rows.Err()
}
