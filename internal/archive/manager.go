// Package archive closes history eras. Taking an archive snapshots the
// whole ledger to cold storage, clears every category, and tags all
// current-era history with the new archive id in one unit of work.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"minister/internal/booking/metrics"
	"minister/internal/booking/models"
	"minister/internal/booking/ports"
	"minister/internal/history"
	dErrors "minister/pkg/domain-errors"
	"minister/pkg/platform/sentinel"
	"minister/pkg/requestcontext"
)

// SnapshotStore is cold storage for archived ledgers.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context) ([]Summary, error)
}

// Gate grants exclusive access with respect to booking mutations.
type Gate interface {
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

type Manager struct {
	gate      Gate
	tx        ports.LedgerTx
	snapshots SnapshotStore
	logger    *slog.Logger
	metrics   *metrics.Metrics
	newID     func() string
}

type Option func(m *Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithIDGenerator overrides archive id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

func NewManager(gate Gate, tx ports.LedgerTx, snapshots SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		gate:      gate,
		tx:        tx,
		snapshots: snapshots,
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Archive snapshots and clears the ledger and opens a new history era.
//
// The snapshot is written before the ledger transaction commits. If the
// commit then fails the snapshot is left behind unreferenced; no history
// points at it and the ledger is untouched.
func (m *Manager) Archive(ctx context.Context, actor models.Actor) (*Result, error) {
	id := m.newID()
	var result *Result
	err := m.gate.Exclusive(ctx, func(ctx context.Context) error {
		return m.tx.RunInTx(ctx, models.Categories(), func(ctx context.Context, stores ports.Stores) error {
			mode, err := stores.Ledger.Mode(ctx)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read slot mode")
			}
			bookings, err := stores.Ledger.ListAll(ctx)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bookings")
			}
			now := requestcontext.Now(ctx)
			if err := m.snapshots.Save(ctx, Snapshot{
				ID:        id,
				TakenAt:   now,
				ActorID:   actor.ID,
				ActorName: actor.Name,
				Mode:      mode,
				Bookings:  bookings,
			}); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store snapshot")
			}

			for _, cat := range models.Categories() {
				if _, err := stores.Ledger.Clear(ctx, cat, models.ClearFilter{}); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear "+cat.DisplayName())
				}
			}
			if err := stores.History.Append(ctx, &history.Record{
				Timestamp: now,
				ActorID:   actor.ID,
				ActorName: actor.Name,
				Action:    history.ActionArchive,
				Extra: map[string]string{
					"archive_id": id,
					"bookings":   fmt.Sprint(len(bookings)),
				},
			}); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record history")
			}
			tagged, err := stores.History.TagArchive(ctx, id)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to tag history")
			}
			result = &Result{ArchiveID: id, Bookings: len(bookings), Records: tagged}
			return nil
		})
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "archive failed",
			"archive_id", id,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.IncrementArchive()
	}
	m.logger.InfoContext(ctx, "archive taken",
		"archive_id", id,
		"bookings", result.Bookings,
		"records", result.Records,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// Snapshot returns an archived ledger.
func (m *Manager) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := m.snapshots.Load(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("archive %q not found", id))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load archive")
	}
	return snap, nil
}

// List returns archive summaries newest first.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	out, err := m.snapshots.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list archives")
	}
	return out, nil
}
