package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySource mimics PostgresStore: entries stay pending until publish
// succeeds for the batch containing them.
type memorySource struct {
	mu        sync.Mutex
	pending   []Entry
	published []Entry
}

func (m *memorySource) add(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for range n {
		m.pending = append(m.pending, Entry{ID: uuid.New(), AggregateID: "construction", EventType: "add"})
	}
}

func (m *memorySource) Relay(ctx context.Context, limit int, publish func(context.Context, []Entry) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.pending[:min(limit, len(m.pending))]
	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}
	m.published = append(m.published, batch...)
	m.pending = m.pending[len(batch):]
	return len(batch), nil
}

func (m *memorySource) counts() (pending, published int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending), len(m.published)
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, entries []Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]Entry(nil), entries...))
	return nil
}

func TestRelayOnceRespectsBatchSize(t *testing.T) {
	src := &memorySource{}
	src.add(7)
	pub := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	w := NewWorker(src, pub, WithBatchSize(5), WithMetrics(m))

	n, err := w.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = w.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = w.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Len(t, pub.batches, 2)
	assert.Equal(t, float64(7), testutil.ToFloat64(m.Published))
}

func TestRelayFailureKeepsEntriesPending(t *testing.T) {
	src := &memorySource{}
	src.add(3)
	pub := &recordingPublisher{err: errors.New("broker down")}
	m := NewMetrics(prometheus.NewRegistry())
	w := NewWorker(src, pub, WithMetrics(m))

	_, err := w.RelayOnce(context.Background())
	require.Error(t, err)

	pending, published := src.counts()
	assert.Equal(t, 3, pending)
	assert.Zero(t, published)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Failures))
}

func TestRunDrainsBacklogAndStops(t *testing.T) {
	src := &memorySource{}
	src.add(12)
	pub := &recordingPublisher{}
	w := NewWorker(src, pub, WithBatchSize(5), WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, _ := src.counts()
		return pending == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	_, published := src.counts()
	assert.Equal(t, 12, published)
}

func TestToRecordKeysByAggregate(t *testing.T) {
	e := Entry{
		ID:            uuid.New(),
		AggregateType: "history",
		AggregateID:   "research",
		EventType:     "reschedule",
		Payload:       []byte(`{"action":"reschedule"}`),
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	r := toRecord("minister.history", e)

	assert.Equal(t, "minister.history", r.Topic)
	assert.Equal(t, []byte("research"), r.Key)
	assert.Equal(t, e.Payload, r.Value)
	assert.Equal(t, e.CreatedAt, r.Timestamp)

	headers := map[string]string{}
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "reschedule", headers[headerEventType])
	assert.Equal(t, "history", headers[headerAggregateType])
	assert.Equal(t, e.ID.String(), headers[headerOutboxID])
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic")
	assert.Error(t, err)
}
