package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxFunc runs a function inside a transaction. Services take this as a
// dependency so unit tests can substitute a pass-through.
type TxFunc func(ctx context.Context, fn func(context.Context) error) error

// NewTxRunner returns a TxFunc bound to the pool. When the context carries
// a tenant-scoped connection the transaction starts there, so search_path
// is preserved.
func NewTxRunner(pool *pgxpool.Pool) TxFunc {
	return func(ctx context.Context, fn func(context.Context) error) error {
		return RunInTx(ctx, pool, fn)
	}
}

// RunInTx executes fn inside a transaction carried on the context. If fn
// returns an error the transaction rolls back.
func RunInTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context) error) error {
	var b txBeginner = pool
	if conn := ConnFromContext(ctx); conn != nil {
		b = conn
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
