package repository

import (
	"context"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// StatusRepository reads the ticket_statuses registry.
type StatusRepository interface {
	List(ctx context.Context) ([]domain.TicketStatus, error)
}

type statusRepository struct {
	db persistence.DBTX
}

// NewStatusRepository builds repository.
func NewStatusRepository(db persistence.DBTX) StatusRepository {
	return &statusRepository{db: db}
}

func (r *statusRepository) List(ctx context.Context) ([]domain.TicketStatus, error) {
	const query = `
        SELECT value, label, progress, is_final, pauses_tat, sort_order
        FROM ticket_statuses ORDER BY sort_order ASC, value ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketStatus
	for rows.Next() {
		var status domain.TicketStatus
		if err := rows.Scan(
			&status.Value,
			&status.Label,
			&status.Progress,
			&status.IsFinal,
			&status.PausesTAT,
			&status.SortOrder,
		); err != nil {
			return nil, err
		}
		result = append(result, status)
	}
	return result, rows.Err()
}
