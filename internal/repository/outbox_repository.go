package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// OutboxRepository owns every status transition of outbox rows.
type OutboxRepository interface {
	// Enqueue inserts the event. When a row with the same idempotency key
	// already exists, that row is loaded into event and created is false.
	Enqueue(ctx context.Context, event *domain.OutboxEvent) (created bool, err error)
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error)
	MarkCompleted(ctx context.Context, id string, now time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	MarkDeadLetter(ctx context.Context, id string, attempts int, lastErr string, now time.Time) error
	ReleaseStale(ctx context.Context, lockedBefore, now time.Time) (StaleRelease, error)
	Requeue(ctx context.Context, id string, now time.Time) error
	ListDeadLetters(ctx context.Context, limit, offset int) ([]domain.OutboxEvent, error)
	GetByID(ctx context.Context, id string) (*domain.OutboxEvent, error)
}

// StaleRelease counts rows whose processing lease expired.
type StaleRelease struct {
	Requeued     int64
	DeadLettered int64
}

// staleLeaseError is recorded on rows released after their lease expired.
const staleLeaseError = "processing lease expired"

const outboxColumns = `id, event_type, aggregate_type, aggregate_id, payload, status, attempts, max_attempts,
               idempotency_key, scheduled_at, priority, locked_at, processed_at, last_error, created_at`

type outboxRepository struct {
	db persistence.DBTX
}

// NewOutboxRepository builds repository.
func NewOutboxRepository(db persistence.DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) (bool, error) {
	const insert = `
        INSERT INTO outbox (event_type, aggregate_type, aggregate_id, payload, status, max_attempts,
            idempotency_key, scheduled_at, priority)
        VALUES ($1,$2,$3,$4,'pending',$5,$6,$7,$8)
        ON CONFLICT (idempotency_key) DO NOTHING
        RETURNING ` + outboxColumns
	stored, err := scanOutbox(r.db.QueryRow(ctx, insert,
		event.EventType,
		event.AggregateType,
		event.AggregateID,
		[]byte(event.Payload),
		event.MaxAttempts,
		event.IdempotencyKey,
		event.ScheduledAt,
		event.Priority,
	))
	if err == nil {
		*event = *stored
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || event.IdempotencyKey == nil {
		return false, err
	}

	existing, err := scanOutbox(r.db.QueryRow(ctx,
		`SELECT `+outboxColumns+` FROM outbox WHERE idempotency_key=$1`, *event.IdempotencyKey))
	if err != nil {
		return false, err
	}
	*event = *existing
	return false, nil
}

// ClaimBatch moves up to limit due rows to processing. SKIP LOCKED keeps
// concurrent dispatchers from claiming the same row.
func (r *outboxRepository) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	query := `
        UPDATE outbox SET status='processing', locked_at=$1
        WHERE id IN (
            SELECT id FROM outbox
            WHERE status='pending' AND scheduled_at <= $1
            ORDER BY priority ASC, scheduled_at ASC
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + outboxColumns
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events, err := scanOutboxRows(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Priority != events[j].Priority {
			return events[i].Priority < events[j].Priority
		}
		return events[i].ScheduledAt.Before(events[j].ScheduledAt)
	})
	return events, nil
}

func (r *outboxRepository) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	const query = `
        UPDATE outbox SET status='completed', processed_at=$2, locked_at=NULL
        WHERE id=$1 AND status='processing'`
	return r.exec(ctx, query, id, now)
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	const query = `
        UPDATE outbox SET status='pending', attempts=$2, scheduled_at=$3, last_error=$4, locked_at=NULL
        WHERE id=$1 AND status='processing'`
	return r.exec(ctx, query, id, attempts, next, lastErr)
}

func (r *outboxRepository) MarkDeadLetter(ctx context.Context, id string, attempts int, lastErr string, now time.Time) error {
	const query = `
        UPDATE outbox SET status='dead_letter', attempts=$2, last_error=$3, processed_at=$4, locked_at=NULL
        WHERE id=$1 AND status='processing'`
	return r.exec(ctx, query, id, attempts, lastErr, now)
}

// ReleaseStale takes back rows whose processing lease expired. The lost run
// counts as an attempt, so a row that keeps crashing its dispatcher ends in
// dead_letter once its attempts are used up.
func (r *outboxRepository) ReleaseStale(ctx context.Context, lockedBefore, now time.Time) (StaleRelease, error) {
	const query = `
        UPDATE outbox SET
            attempts = attempts + 1,
            status = CASE WHEN attempts + 1 >= GREATEST(max_attempts, 1) THEN 'dead_letter' ELSE 'pending' END,
            processed_at = CASE WHEN attempts + 1 >= GREATEST(max_attempts, 1) THEN $2 ELSE processed_at END,
            last_error = $3,
            locked_at = NULL
        WHERE status='processing' AND locked_at < $1
        RETURNING status`
	var result StaleRelease
	rows, err := r.db.Query(ctx, query, lockedBefore, now, staleLeaseError)
	if err != nil {
		return result, err
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.OutboxStatus
		if err := rows.Scan(&status); err != nil {
			return result, err
		}
		if status == domain.OutboxDeadLetter {
			result.DeadLettered++
		} else {
			result.Requeued++
		}
	}
	return result, rows.Err()
}

func (r *outboxRepository) Requeue(ctx context.Context, id string, now time.Time) error {
	const query = `
        UPDATE outbox SET status='pending', attempts=0, scheduled_at=$2, last_error=NULL,
            locked_at=NULL, processed_at=NULL
        WHERE id=$1 AND status='dead_letter'`
	return r.exec(ctx, query, id, now)
}

func (r *outboxRepository) ListDeadLetters(ctx context.Context, limit, offset int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + outboxColumns + ` FROM outbox
        WHERE status='dead_letter' ORDER BY processed_at DESC NULLS LAST LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxRows(rows)
}

func (r *outboxRepository) GetByID(ctx context.Context, id string) (*domain.OutboxEvent, error) {
	return scanOutbox(r.db.QueryRow(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id=$1`, id))
}

func (r *outboxRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanOutbox(row rowScanner) (*domain.OutboxEvent, error) {
	var (
		event   domain.OutboxEvent
		payload []byte
	)
	if err := row.Scan(
		&event.ID,
		&event.EventType,
		&event.AggregateType,
		&event.AggregateID,
		&payload,
		&event.Status,
		&event.Attempts,
		&event.MaxAttempts,
		&event.IdempotencyKey,
		&event.ScheduledAt,
		&event.Priority,
		&event.LockedAt,
		&event.ProcessedAt,
		&event.LastError,
		&event.CreatedAt,
	); err != nil {
		return nil, err
	}
	event.Payload = payload
	return &event, nil
}

func scanOutboxRows(rows pgx.Rows) ([]domain.OutboxEvent, error) {
	var result []domain.OutboxEvent
	for rows.Next() {
		event, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *event)
	}
	return result, rows.Err()
}
