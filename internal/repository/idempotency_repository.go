package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// IdempotencyRepository persists idempotency keys for retried mutations.
type IdempotencyRepository interface {
	// Reserve claims record.Key. An expired record with the same key is
	// replaced. When the key is held by a live record, that record is returned
	// with reserved set to false.
	Reserve(ctx context.Context, record domain.IdempotencyRecord, now time.Time) (stored *domain.IdempotencyRecord, reserved bool, err error)
	Complete(ctx context.Context, key, resourceID string) error
	Release(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

const idempotencyColumns = `key, resource_type, resource_id, request_hash, expires_at, created_at`

type idempotencyRepository struct {
	db persistence.DBTX
}

// NewIdempotencyRepository builds repository.
func NewIdempotencyRepository(db persistence.DBTX) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) Reserve(ctx context.Context, record domain.IdempotencyRecord, now time.Time) (*domain.IdempotencyRecord, bool, error) {
	const query = `
        INSERT INTO idempotency_keys (key, resource_type, request_hash, expires_at, created_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (key) DO UPDATE
            SET resource_type=EXCLUDED.resource_type, request_hash=EXCLUDED.request_hash,
                expires_at=EXCLUDED.expires_at, created_at=EXCLUDED.created_at, resource_id=NULL
            WHERE idempotency_keys.expires_at <= $5
        RETURNING ` + idempotencyColumns
	stored, err := scanIdempotency(r.db.QueryRow(ctx, query,
		record.Key,
		record.ResourceType,
		record.RequestHash,
		record.ExpiresAt,
		now,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := scanIdempotency(r.db.QueryRow(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key=$1`, record.Key))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, key, resourceID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE idempotency_keys SET resource_id=$2 WHERE key=$1`, key, resourceID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Release drops an unfinished reservation so the client may retry.
func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1 AND resource_id IS NULL`, key)
	return err
}

func (r *idempotencyRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanIdempotency(row rowScanner) (*domain.IdempotencyRecord, error) {
	var record domain.IdempotencyRecord
	if err := row.Scan(
		&record.Key,
		&record.ResourceType,
		&record.ResourceID,
		&record.RequestHash,
		&record.ExpiresAt,
		&record.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}
