//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"minister/internal/history"
	"minister/internal/outbox"
	"minister/pkg/testutil/containers"
)

const topic = "minister.history.test"

type RelaySuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	broker    string
	store     *outbox.PostgresStore
	history   *history.PostgresStore
	publisher *outbox.KafkaPublisher
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
	s.store = outbox.NewPostgresStore(s.postgres.DB)
	s.history = history.NewPostgresStore(s.postgres.DB)

	ctx := context.Background()
	s.Require().NoError(outbox.EnsureTopic(ctx, []string{s.broker}, topic, 1, 1))
	// second call must tolerate the existing topic
	s.Require().NoError(outbox.EnsureTopic(ctx, []string{s.broker}, topic, 1, 1))

	pub, err := outbox.NewKafkaPublisher([]string{s.broker}, topic)
	s.Require().NoError(err)
	s.publisher = pub
}

func (s *RelaySuite) TearDownSuite() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "bookings", "history", "outbox"))
}

func (s *RelaySuite) TestHistoryRecordsReachKafka() {
	ctx := context.Background()
	for _, slot := range []string{"09:00", "09:30"} {
		s.Require().NoError(s.history.Append(ctx, &history.Record{
			ActorID:   "admin",
			Action:    history.ActionAdd,
			Category:  "construction",
			SubjectID: "u-" + slot,
			NewSlot:   slot,
		}))
	}
	pending, err := s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Equal(2, pending)

	w := outbox.NewWorker(s.store, s.publisher, outbox.WithBatchSize(10))
	n, err := w.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	pending, err = s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []history.Record
	deadline, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for len(got) < 2 {
		fetches := consumer.PollFetches(deadline)
		s.Require().NoError(deadline.Err(), "timed out waiting for relayed records")
		fetches.EachRecord(func(r *kgo.Record) {
			var rec history.Record
			s.Require().NoError(json.Unmarshal(r.Value, &rec))
			s.Equal("construction", string(r.Key))
			got = append(got, rec)
		})
	}
	s.Equal(history.ActionAdd, got[0].Action)
	s.Equal("09:00", got[0].NewSlot)
	s.Equal("09:30", got[1].NewSlot)
}

func (s *RelaySuite) TestEmptyOutboxIsANoop() {
	w := outbox.NewWorker(s.store, s.publisher)
	n, err := w.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
}
