package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so read helpers can
// run inside or outside a transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgreSQL SQLSTATE codes the engine reacts to.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateExclusionViolation   = "23P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
)

// errAllocationOverlap is returned by the runner when the asset_allocations
// exclusion constraint rejects a write. Callers turn it into a CONFLICT with a
// freshly computed availability report.
var errAllocationOverlap = errors.New("allocation overlaps an active allocation")

// TxRunner runs units of work at SERIALIZABLE isolation and retries them when
// PostgreSQL aborts the transaction for a serialization failure or deadlock.
type TxRunner struct {
	pool    *pgxpool.Pool
	retries int
	log     *zap.Logger
}

func NewTxRunner(pool *pgxpool.Pool, retries int, log *zap.Logger) *TxRunner {
	if retries < 0 {
		retries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TxRunner{pool: pool, retries: retries, log: log}
}

// Serializable runs fn in a SERIALIZABLE transaction. fn may run more than
// once, so it must not have side effects outside the transaction.
func (r *TxRunner) Serializable(ctx context.Context, fn func(tx pgx.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if isRetryable(err) && attempt < r.retries {
			r.log.Warn("retrying serializable transaction",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		return classifyTxError(err)
	}
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isRetryable(err error) bool {
	switch pgErrorCode(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == sqlStateUniqueViolation
}

func classifyTxError(err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	switch pgErrorCode(err) {
	case sqlStateExclusionViolation:
		return errAllocationOverlap
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return Conflict(nil, "Concurrent update detected, please retry")
	case sqlStateForeignKeyViolation:
		return Validationf("Referenced user, location, asset or SKU does not exist")
	}
	return err
}
