package store

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"minister/internal/booking/models"
	"minister/internal/booking/ports"
	"minister/internal/history"
	dErrors "minister/pkg/domain-errors"
	txcontext "minister/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// PostgresTx runs a unit of work in one database transaction. It takes a
// transaction-scoped advisory lock per category, in sorted order, so
// writers from other processes serialize the same way in-process ones do.
type PostgresTx struct {
	db      *sql.DB
	ledger  *PostgresStore
	history *history.PostgresStore
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, ledger *PostgresStore, hist *history.PostgresStore, timeout time.Duration) *PostgresTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &PostgresTx{db: db, ledger: ledger, history: hist, timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, categories []models.Category, fn func(ctx context.Context, stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	locks := slices.Clone(categories)
	slices.Sort(locks)
	for _, cat := range slices.Compact(locks) {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "booking:"+string(cat)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "lock category")
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx), ports.Stores{Ledger: t.ledger, History: t.history}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err, "commit")
	}
	return nil
}
