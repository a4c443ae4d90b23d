// Package postgres implements store.Store on PostgreSQL.
//
// Transactions use pgx.BeginTxFunc. Conditional writes are single UPDATE
// statements guarded by a WHERE clause, so concurrent transactions never
// oversell stock or overshoot a coupon limit. Coupons read inside a
// transaction are locked with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// queries implements store.Reader on top of a querier.
type queries struct {
	q querier
	// inTx enables row locks on reads that precede conditional writes.
	inTx bool
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// New returns a Store using pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(pgxTx pgx.Tx) error {
		return fn(ctx, &tx{queries: queries{q: pgxTx, inTx: true}})
	})
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// tx implements store.Tx inside a pgx transaction.
type tx struct {
	queries
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

// mapErr translates driver errors into store sentinels.
func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Wrap(store.ErrDuplicate, op)
		case pgForeignKeyViolation:
			return errors.Wrap(store.ErrNotFound, op)
		}
	}
	return errors.Wrap(err, op)
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
