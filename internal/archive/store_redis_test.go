package archive

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"minister/internal/booking/models"
	"minister/internal/slotgrid"
	"minister/pkg/platform/sentinel"
)

type RedisStoreSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *RedisStore
	ctx    context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.store = NewRedisStore(s.client)
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *RedisStoreSuite) TestSaveAndLoad() {
	snap := Snapshot{
		ID:      "a1",
		TakenAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		ActorID: "admin",
		Mode:    slotgrid.Offset,
		Bookings: []models.Booking{
			{Category: models.CategoryConstruction, Slot: "00:15", SubjectID: "u1"},
		},
	}
	s.Require().NoError(s.store.Save(s.ctx, snap))

	loaded, err := s.store.Load(s.ctx, "a1")
	s.Require().NoError(err)
	s.Equal(slotgrid.Offset, loaded.Mode)
	s.Require().Len(loaded.Bookings, 1)
	s.Equal("u1", loaded.Bookings[0].SubjectID)
	s.True(s.mr.Exists("archive:a1"))

	_, err = s.store.Load(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestListNewestFirst() {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Save(s.ctx, Snapshot{ID: "old", TakenAt: base}))
	s.Require().NoError(s.store.Save(s.ctx, Snapshot{ID: "new", TakenAt: base.Add(time.Hour), Bookings: make([]models.Booking, 2)}))

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("new", list[0].ID)
	s.Equal(2, list[0].Bookings)

	s.Run("skips index entries without a snapshot", func() {
		s.mr.Del("archive:old")
		list, err := s.store.List(s.ctx)
		s.Require().NoError(err)
		s.Len(list, 1)
	})
}
