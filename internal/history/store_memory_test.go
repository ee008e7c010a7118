package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type HistoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *HistoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestHistoryStoreSuite(t *testing.T) {
	suite.Run(t, new(HistoryStoreSuite))
}

func (s *HistoryStoreSuite) append(r Record) {
	s.Require().NoError(s.store.Append(s.ctx, &r))
}

func (s *HistoryStoreSuite) TestListOrderingAndFilters() {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.append(Record{Timestamp: base, Action: ActionAdd, Category: "construction", ActorID: "a1"})
	s.append(Record{Timestamp: base.Add(time.Minute), Action: ActionAdd, Category: "research", ActorID: "a2"})
	s.append(Record{Timestamp: base.Add(time.Minute), Action: ActionRemove, Category: "research", ActorID: "a1"})

	s.Run("newest first with id as tiebreak", func() {
		records, err := s.store.List(s.ctx, Filter{})
		s.Require().NoError(err)
		s.Require().Len(records, 3)
		s.Equal(ActionRemove, records[0].Action)
		s.Equal("research", records[1].Category)
		s.Equal("construction", records[2].Category)
	})

	s.Run("filters by category and actor", func() {
		records, err := s.store.List(s.ctx, Filter{Category: "research", ActorID: "a1"})
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(ActionRemove, records[0].Action)
	})

	s.Run("applies limit", func() {
		records, err := s.store.List(s.ctx, Filter{Limit: 2})
		s.Require().NoError(err)
		s.Len(records, 2)
	})
}

func (s *HistoryStoreSuite) TestTimestampsNeverRunBackwards() {
	late := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.append(Record{Timestamp: late, Action: ActionAdd, Category: "training"})
	s.append(Record{Timestamp: late.Add(-time.Hour), Action: ActionRemove, Category: "training"})

	records, err := s.store.List(s.ctx, Filter{Category: "training"})
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(ActionRemove, records[0].Action)
	s.Equal(late, records[0].Timestamp)
}

func (s *HistoryStoreSuite) TestArchiveEras() {
	s.append(Record{Action: ActionAdd, Category: "construction"})
	s.append(Record{Action: ActionRemove, Category: "construction"})

	n, err := s.store.TagArchive(s.ctx, "arch-1")
	s.Require().NoError(err)
	s.Equal(2, n)

	s.append(Record{Action: ActionAdd, Category: "research"})

	current, err := s.store.List(s.ctx, Filter{})
	s.Require().NoError(err)
	s.Len(current, 1)

	archived, err := s.store.List(s.ctx, Filter{ArchiveID: "arch-1"})
	s.Require().NoError(err)
	s.Len(archived, 2)

	ids, err := s.store.ListArchiveIDs(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"arch-1"}, ids)
}

func (s *HistoryStoreSuite) TestBuffer() {
	s.append(Record{Action: ActionAdd, Category: "construction"})

	buf := s.store.Begin()
	s.Require().NoError(buf.Append(s.ctx, &Record{Action: ActionArchive}))
	n, err := buf.TagArchive(s.ctx, "arch-2")
	s.Require().NoError(err)
	s.Equal(2, n)

	s.Run("writes are invisible until commit", func() {
		records, err := s.store.List(s.ctx, Filter{})
		s.Require().NoError(err)
		s.Len(records, 1)
	})

	s.Run("commit applies writes in order", func() {
		s.store.Commit(buf)
		s.Zero(buf.pending())

		current, err := s.store.List(s.ctx, Filter{})
		s.Require().NoError(err)
		s.Empty(current)
		archived, err := s.store.List(s.ctx, Filter{ArchiveID: "arch-2"})
		s.Require().NoError(err)
		s.Require().Len(archived, 2)
		s.Equal(ActionArchive, archived[0].Action)
	})
}
