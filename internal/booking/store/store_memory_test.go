package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"minister/internal/booking/models"
	"minister/internal/booking/ports"
	"minister/internal/history"
	"minister/internal/slotgrid"
	"minister/pkg/platform/sentinel"
)

type LedgerStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *LedgerStoreSuite) SetupTest() {
	s.store = NewInMemory(slotgrid.Standard)
	s.ctx = context.Background()
}

func TestLedgerStoreSuite(t *testing.T) {
	suite.Run(t, new(LedgerStoreSuite))
}

func booking(cat models.Category, slot, subjectID string) models.Booking {
	return models.Booking{Category: cat, Slot: slot, SubjectID: subjectID, SubjectName: "Subject " + subjectID}
}

func (s *LedgerStoreSuite) TestReserve() {
	s.Run("reserves a free slot", func() {
		s.Require().NoError(s.store.Reserve(s.ctx, booking(models.CategoryConstruction, "10:00", "u1")))

		found, err := s.store.FindBySlot(s.ctx, models.CategoryConstruction, "10:00")
		s.Require().NoError(err)
		s.Equal("u1", found.SubjectID)
	})

	s.Run("rejects a slot held by another subject", func() {
		err := s.store.Reserve(s.ctx, booking(models.CategoryConstruction, "10:00", "u2"))
		s.ErrorIs(err, ErrSlotTaken)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("rejects a second slot for the same subject", func() {
		err := s.store.Reserve(s.ctx, booking(models.CategoryConstruction, "11:00", "u1"))
		s.ErrorIs(err, ErrAlreadyBooked)
	})

	s.Run("categories are independent", func() {
		s.Require().NoError(s.store.Reserve(s.ctx, booking(models.CategoryResearch, "10:00", "u1")))
	})
}

func (s *LedgerStoreSuite) TestMove() {
	s.Require().NoError(s.store.Reserve(s.ctx, booking(models.CategoryTraining, "10:00", "u1")))
	s.Require().NoError(s.store.Reserve(s.ctx, booking(models.CategoryTraining, "12:00", "u2")))

	s.Run("moves and frees the old slot", func() {
		prev, err := s.store.Move(s.ctx, models.CategoryTraining, "u1", "11:00")
		s.Require().NoError(err)
		s.Equal("10:00", prev.Slot)

		_, err = s.store.FindBySlot(s.ctx, models.CategoryTraining, "10:00")
		s.ErrorIs(err, ErrNotBooked)
		found, err := s.store.FindBySubject(s.ctx, models.CategoryTraining, "u1")
		s.Require().NoError(err)
		s.Equal("11:00", found.Slot)
	})

	s.Run("refuses a held slot", func() {
		_, err := s.store.Move(s.ctx, models.CategoryTraining, "u1", "12:00")
		s.ErrorIs(err, ErrSlotTaken)
	})

	s.Run("refuses an unbooked subject", func() {
		_, err := s.store.Move(s.ctx, models.CategoryTraining, "nobody", "13:00")
		s.ErrorIs(err, ErrNotBooked)
	})
}

func (s *LedgerStoreSuite) TestCancelAndClear() {
	s.Require().NoError(s.store.Reserve(s.ctx, models.Booking{Category: models.CategoryResearch, Slot: "01:00", SubjectID: "a", GroupID: "g1"}))
	s.Require().NoError(s.store.Reserve(s.ctx, models.Booking{Category: models.CategoryResearch, Slot: "02:00", SubjectID: "b", GroupID: "g2"}))
	s.Require().NoError(s.store.Reserve(s.ctx, models.Booking{Category: models.CategoryResearch, Slot: "03:00", SubjectID: "c", GroupID: "g1"}))

	s.Run("cancel returns the removed booking", func() {
		removed, err := s.store.Cancel(s.ctx, models.CategoryResearch, "b")
		s.Require().NoError(err)
		s.Equal("02:00", removed.Slot)

		_, err = s.store.Cancel(s.ctx, models.CategoryResearch, "b")
		s.ErrorIs(err, ErrNotBooked)
	})

	s.Run("clear honours the group filter", func() {
		s.Require().NoError(s.store.Reserve(s.ctx, models.Booking{Category: models.CategoryResearch, Slot: "04:00", SubjectID: "d", GroupID: "g2"}))
		removed, err := s.store.Clear(s.ctx, models.CategoryResearch, models.ClearFilter{GroupID: "g1"})
		s.Require().NoError(err)
		s.Len(removed, 2)
		s.Equal("01:00", removed[0].Slot)

		left, err := s.store.ListByCategory(s.ctx, models.CategoryResearch)
		s.Require().NoError(err)
		s.Require().Len(left, 1)
		s.Equal("d", left[0].SubjectID)
	})

	s.Run("clear with no filter empties the category", func() {
		removed, err := s.store.Clear(s.ctx, models.CategoryResearch, models.ClearFilter{})
		s.Require().NoError(err)
		s.Len(removed, 1)
	})
}

func (s *LedgerStoreSuite) TestApplySlotChanges() {
	s.Require().NoError(s.store.Reserve(s.ctx, booking(models.CategoryConstruction, "00:00", "a")))
	s.Require().NoError(s.store.Reserve(s.ctx, booking(models.CategoryConstruction, "00:30", "b")))
	s.Require().NoError(s.store.Reserve(s.ctx, booking(models.CategoryConstruction, "01:00", "c")))

	s.Run("rejects a colliding batch without writing", func() {
		err := s.store.ApplySlotChanges(s.ctx, []models.SlotChange{
			{Category: models.CategoryConstruction, SubjectID: "b", OldSlot: "00:30", NewSlot: "00:00"},
		})
		s.ErrorIs(err, ErrSlotTaken)

		found, err := s.store.FindBySubject(s.ctx, models.CategoryConstruction, "b")
		s.Require().NoError(err)
		s.Equal("00:30", found.Slot)
	})

	s.Run("rejects stale changes", func() {
		err := s.store.ApplySlotChanges(s.ctx, []models.SlotChange{
			{Category: models.CategoryConstruction, SubjectID: "b", OldSlot: "05:00", NewSlot: "00:15"},
		})
		s.ErrorIs(err, ErrStaleChange)
	})

	s.Run("applies a batch whose moves chain through each other", func() {
		err := s.store.ApplySlotChanges(s.ctx, []models.SlotChange{
			{Category: models.CategoryConstruction, SubjectID: "b", OldSlot: "00:30", NewSlot: "01:00"},
			{Category: models.CategoryConstruction, SubjectID: "c", OldSlot: "01:00", NewSlot: "01:30"},
		})
		s.Require().NoError(err)

		list, err := s.store.ListByCategory(s.ctx, models.CategoryConstruction)
		s.Require().NoError(err)
		s.Require().Len(list, 3)
		s.Equal([]string{"00:00", "01:00", "01:30"}, []string{list[0].Slot, list[1].Slot, list[2].Slot})
		s.Equal("b", list[1].SubjectID)
	})
}

func (s *LedgerStoreSuite) TestMemoryTx() {
	hist := history.NewInMemoryStore()
	txr := NewMemoryTx(s.store, hist)
	cats := []models.Category{models.CategoryConstruction}

	s.Run("commits ledger and history together", func() {
		err := txr.RunInTx(s.ctx, cats, func(ctx context.Context, stores ports.Stores) error {
			if err := stores.Ledger.Reserve(ctx, booking(models.CategoryConstruction, "09:00", "u1")); err != nil {
				return err
			}
			return stores.History.Append(ctx, &history.Record{Action: history.ActionAdd, Category: "construction", SubjectID: "u1"})
		})
		s.Require().NoError(err)

		records, err := hist.List(s.ctx, history.Filter{})
		s.Require().NoError(err)
		s.Len(records, 1)
	})

	s.Run("rolls back ledger, mode and history on error", func() {
		boom := errors.New("boom")
		err := txr.RunInTx(s.ctx, cats, func(ctx context.Context, stores ports.Stores) error {
			s.Require().NoError(stores.Ledger.Reserve(ctx, booking(models.CategoryConstruction, "10:00", "u2")))
			s.Require().NoError(stores.Ledger.SetMode(ctx, slotgrid.Offset))
			s.Require().NoError(stores.History.Append(ctx, &history.Record{Action: history.ActionAdd, Category: "construction"}))
			return boom
		})
		s.ErrorIs(err, boom)

		_, err = s.store.FindBySubject(s.ctx, models.CategoryConstruction, "u2")
		s.ErrorIs(err, ErrNotBooked)
		mode, err := s.store.Mode(s.ctx)
		s.Require().NoError(err)
		s.Equal(slotgrid.Standard, mode)
		records, err := hist.List(s.ctx, history.Filter{})
		s.Require().NoError(err)
		s.Len(records, 1)
	})

	s.Run("refuses a cancelled context", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		called := false
		err := txr.RunInTx(ctx, cats, func(context.Context, ports.Stores) error {
			called = true
			return nil
		})
		s.Error(err)
		s.False(called)
	})
}
