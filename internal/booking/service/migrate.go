package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"minister/internal/booking/models"
	"minister/internal/booking/ports"
	"minister/internal/history"
	"minister/internal/slotgrid"
	dErrors "minister/pkg/domain-errors"
	"minister/pkg/platform/sentinel"
	"minister/pkg/requestcontext"
)

// ChangeMode switches the global slot grid and rewrites every booking onto
// it in one batch. The batch is staged in full before anything is written;
// if two bookings in a category would land on the same slot the whole
// migration is refused and neither bookings nor mode change.
//
// New booking mutations fail with CodeMigrationInProgress until it returns.
func (s *Service) ChangeMode(ctx context.Context, target slotgrid.Mode, actor models.Actor) (*models.MigrationReport, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "booking.ChangeMode", trace.WithAttributes(
		attribute.String("target_mode", target.String()),
	))
	defer span.End()

	if !target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown slot mode %q", target))
	}

	if !s.migrating.CompareAndSwap(false, true) {
		return nil, dErrors.New(dErrors.CodeMigrationInProgress, "another slot-mode migration is running")
	}
	defer s.migrating.Store(false)
	s.gate.Lock()
	defer s.gate.Unlock()

	var report *models.MigrationReport
	err := s.tx.RunInTx(ctx, models.Categories(), func(ctx context.Context, stores ports.Stores) error {
		before, err := stores.Ledger.Mode(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read slot mode")
		}
		if before == target {
			report = &models.MigrationReport{BeforeMode: before, AfterMode: target}
			return nil
		}

		bookings, err := stores.Ledger.ListAll(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bookings")
		}
		changes, err := StageMigration(bookings, before, target)
		if err != nil {
			return err
		}
		if err := stores.Ledger.ApplySlotChanges(ctx, changes); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeSlotConflict, "migrated slots collide")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to rewrite slots")
		}
		if err := stores.Ledger.SetMode(ctx, target); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store slot mode")
		}

		report = &models.MigrationReport{Count: len(bookings), BeforeMode: before, AfterMode: target}
		if err := stores.History.Append(ctx, &history.Record{
			Timestamp: requestcontext.Now(ctx),
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Action:    history.ActionModeChange,
			Extra: map[string]string{
				"count":     fmt.Sprint(len(bookings)),
				"rewritten": fmt.Sprint(len(changes)),
				"before":    before.String(),
				"after":     target.String(),
			},
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record history")
		}
		return nil
	})
	s.observeMigrate(start)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeSlotConflict) {
			s.incrementMigrationRejected()
		}
		s.logger.WarnContext(ctx, "slot-mode migration rejected",
			"target_mode", target,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, s.fail(span, err)
	}

	if report.Count > 0 || report.BeforeMode != report.AfterMode {
		s.addMigrated(report.Count)
		s.logger.InfoContext(ctx, "slot mode changed",
			"before", report.BeforeMode,
			"after", report.AfterMode,
			"count", report.Count,
			"actor_id", actor.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return report, nil
}

// StageMigration computes the rewrite of every booking from one grid to
// another without writing anything. Bookings whose label does not move are
// left out of the batch. Two bookings of one category mapping onto the same
// slot yield a *models.ConflictError naming the first holder.
func StageMigration(bookings []models.Booking, from, to slotgrid.Mode) ([]models.SlotChange, error) {
	type key struct {
		category models.Category
		slot     string
	}
	claimed := make(map[key]models.Booking, len(bookings))
	var changes []models.SlotChange

	sorted := append([]models.Booking(nil), bookings...)
	models.SortBySlot(sorted)
	for _, b := range sorted {
		next, err := slotgrid.Migrate(b.Slot, from, to)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal,
				fmt.Sprintf("booking of %s on %s has an unmappable slot", b.SubjectID, b.Category.DisplayName()))
		}
		k := key{category: b.Category, slot: next}
		if holder, ok := claimed[k]; ok {
			return nil, &models.ConflictError{Category: b.Category, Slot: next, Holder: holder.Subject()}
		}
		claimed[k] = b
		if next != b.Slot {
			changes = append(changes, models.SlotChange{
				Category:  b.Category,
				SubjectID: b.SubjectID,
				OldSlot:   b.Slot,
				NewSlot:   next,
			})
		}
	}
	return changes, nil
}
