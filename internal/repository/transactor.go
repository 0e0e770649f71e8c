package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusdesk/ticket-sla/internal/persistence"
)

// TxStore groups the repositories a ticket mutation writes inside one transaction.
type TxStore struct {
	Tickets    TicketRepository
	Activities ActivityRepository
}

// Transactor runs fn atomically. Everything written through the TxStore
// commits together or not at all.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(store TxStore) error) error
}

type pgTransactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Postgres-backed transactor.
func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(store TxStore) error) error {
	return persistence.InTx(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(TxStore{
			Tickets:    NewTicketRepository(tx),
			Activities: NewActivityRepository(tx),
		})
	})
}
