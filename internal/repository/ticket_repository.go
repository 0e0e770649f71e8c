package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// TicketFilter captures list parameters for ticket queries.
type TicketFilter struct {
	CreatedBy   *string
	AssignedTo  *string
	Statuses    []string
	CategoryIDs []string
	Domain      *string
	OpenOnly    bool
	// OwnedBy keeps tickets the admin owns: assigned to them, in a category
	// bound to them, or unassigned inside one of their grants.
	OwnedBy *Ownership
	// InGrants keeps tickets inside at least one of the grants.
	InGrants []domain.AdminAssignment
	// OverdueAt keeps running tickets whose deadline lies before it.
	OverdueAt *time.Time
	Limit     int
	Offset    int
}

// Ownership identifies an admin and the grants they hold.
type Ownership struct {
	UserID string
	Grants []domain.AdminAssignment
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
}

const ticketColumns = `id, title, description, category_id, subcategory_id, location, created_by, assigned_to,
               status, escalation_level, reopen_count, acknowledgement_due_at, resolution_due_at, metadata,
               acknowledged_at, resolved_at, closed_at, created_at, updated_at`

type ticketRepository struct {
	db persistence.DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db persistence.DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	meta, err := ticket.Metadata.Encode()
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (title, description, category_id, subcategory_id, location, created_by, assigned_to,
            status, escalation_level, acknowledgement_due_at, resolution_due_at, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.CategoryID,
		ticket.SubcategoryID,
		ticket.Location,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.Status,
		ticket.EscalationLevel,
		ticket.AcknowledgementDueAt,
		ticket.ResolutionDueAt,
		meta,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	meta, err := ticket.Metadata.Encode()
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET description=$1, assigned_to=$2, status=$3, escalation_level=$4, reopen_count=$5,
            acknowledgement_due_at=$6, resolution_due_at=$7, metadata=$8, acknowledged_at=$9,
            resolved_at=$10, closed_at=$11, updated_at=NOW()
        WHERE id=$12
        RETURNING updated_at`
	err = r.db.QueryRow(ctx, query,
		ticket.Description,
		ticket.AssignedTo,
		ticket.Status,
		ticket.EscalationLevel,
		ticket.ReopenCount,
		ticket.AcknowledgementDueAt,
		ticket.ResolutionDueAt,
		meta,
		ticket.AcknowledgedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

// GetForUpdate locks the ticket row until the surrounding transaction ends.
func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, filter.Statuses)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.CategoryIDs) > 0 {
		args = append(args, filter.CategoryIDs)
		clauses = append(clauses, fmt.Sprintf("category_id::text = ANY($%d)", len(args)))
	}
	if filter.Domain != nil {
		args = append(args, *filter.Domain)
		clauses = append(clauses, fmt.Sprintf("category_id IN (SELECT id FROM categories WHERE domain=$%d)", len(args)))
	}
	if filter.OpenOnly {
		clauses = append(clauses, "status IN (SELECT value FROM ticket_statuses WHERE NOT is_final)")
	}
	if filter.OwnedBy != nil {
		args = append(args, filter.OwnedBy.UserID)
		me := len(args)
		owned := []string{
			fmt.Sprintf("assigned_to=$%d", me),
			fmt.Sprintf("category_id IN (SELECT id FROM categories WHERE default_admin_id=$%d)", me),
			fmt.Sprintf("category_id IN (SELECT category_id FROM category_assignments WHERE user_id=$%d)", me),
		}
		if len(filter.OwnedBy.Grants) > 0 {
			var grants string
			grants, args = grantClause(filter.OwnedBy.Grants, args)
			owned = append(owned, "(assigned_to IS NULL AND "+grants+")")
		}
		clauses = append(clauses, "("+strings.Join(owned, " OR ")+")")
	}
	if len(filter.InGrants) > 0 {
		var grants string
		grants, args = grantClause(filter.InGrants, args)
		clauses = append(clauses, grants)
	}
	if filter.OverdueAt != nil {
		args = append(args, *filter.OverdueAt)
		clauses = append(clauses,
			fmt.Sprintf("resolution_due_at < $%d", len(args)),
			"metadata->'tat' IS NULL",
			"status IN (SELECT value FROM ticket_statuses WHERE NOT is_final AND NOT pauses_tat)")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// grantClause matches tickets inside any of grants. Global grants match all.
func grantClause(grants []domain.AdminAssignment, args []any) (string, []any) {
	parts := make([]string, 0, len(grants))
	for _, g := range grants {
		if g.Domain == nil || *g.Domain == domain.GlobalDomain {
			return "TRUE", args
		}
		args = append(args, *g.Domain)
		part := fmt.Sprintf("category_id IN (SELECT id FROM categories WHERE domain=$%d)", len(args))
		if g.Scope != nil {
			args = append(args, strings.TrimSpace(*g.Scope))
			part += fmt.Sprintf(" AND lower(btrim(location))=lower($%d)", len(args))
		}
		parts = append(parts, "("+part+")")
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// ListOverdueCandidates returns running, non-final tickets whose stored
// deadline lies before now. Callers re-check each ticket under a row lock.
func (r *ticketRepository) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE resolution_due_at IS NOT NULL
          AND resolution_due_at < $1
          AND metadata->'tat' IS NULL
          AND status IN (SELECT value FROM ticket_statuses WHERE NOT is_final)
        ORDER BY resolution_due_at ASC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		raw    []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.CategoryID,
		&ticket.SubcategoryID,
		&ticket.Location,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.Status,
		&ticket.EscalationLevel,
		&ticket.ReopenCount,
		&ticket.AcknowledgementDueAt,
		&ticket.ResolutionDueAt,
		&raw,
		&ticket.AcknowledgedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	// Undecodable keys stay raw inside Metadata and are written back as stored.
	ticket.Metadata, _ = domain.DecodeMetadata(raw)
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
