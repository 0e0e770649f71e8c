package repository

import (
	"context"
	"encoding/json"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// ActivityRepository stores the append-only ticket timeline. It deliberately
// offers no update or delete.
type ActivityRepository interface {
	Append(ctx context.Context, activity *domain.Activity) error
	ListByTicket(ctx context.Context, ticketID string, studentView bool) ([]domain.Activity, error)
}

type activityRepository struct {
	db persistence.DBTX
}

// NewActivityRepository builds repository.
func NewActivityRepository(db persistence.DBTX) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(ctx context.Context, activity *domain.Activity) error {
	details, err := json.Marshal(activity.Details)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_activity (ticket_id, action, details, visibility, author_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		activity.TicketID,
		activity.Action,
		details,
		activity.Visibility,
		activity.AuthorID,
	).Scan(&activity.ID, &activity.CreatedAt)
}

func (r *activityRepository) ListByTicket(ctx context.Context, ticketID string, studentView bool) ([]domain.Activity, error) {
	query := `
        SELECT id, ticket_id, action, details, visibility, author_id, created_at
        FROM ticket_activity WHERE ticket_id=$1`
	if studentView {
		query += ` AND visibility IN ('public', 'student_visible')`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Activity
	for rows.Next() {
		var (
			activity domain.Activity
			raw      []byte
		)
		if err := rows.Scan(
			&activity.ID,
			&activity.TicketID,
			&activity.Action,
			&raw,
			&activity.Visibility,
			&activity.AuthorID,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &activity.Details); err != nil {
				return nil, err
			}
		}
		result = append(result, activity)
	}
	return result, rows.Err()
}
