package store

import (
	"context"

	"minister/internal/booking/models"
	"minister/internal/booking/ports"
	"minister/internal/history"
	dErrors "minister/pkg/domain-errors"
)

// MemoryTx gives the in-memory stores all-or-nothing units of work.
// Ledger state of the named categories is checkpointed before fn runs and
// restored if it fails; history writes are buffered until fn succeeds.
//
// It relies on the caller holding the category locks for the duration.
type MemoryTx struct {
	ledger  *InMemory
	history *history.InMemoryStore
}

func NewMemoryTx(ledger *InMemory, hist *history.InMemoryStore) *MemoryTx {
	return &MemoryTx{ledger: ledger, history: hist}
}

func (t *MemoryTx) RunInTx(ctx context.Context, categories []models.Category, fn func(ctx context.Context, stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted")
	}
	cp := t.ledger.checkpoint(categories)
	buf := t.history.Begin()
	if err := fn(ctx, ports.Stores{Ledger: t.ledger, History: buf}); err != nil {
		t.ledger.restore(cp)
		return err
	}
	if err := ctx.Err(); err != nil {
		t.ledger.restore(cp)
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted")
	}
	t.history.Commit(buf)
	return nil
}
