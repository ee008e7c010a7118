package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks relay throughput and failures.
type Metrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
	Batches   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "minister_outbox_published_total",
			Help: "Outbox entries published to Kafka",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "minister_outbox_failures_total",
			Help: "Relay batches that failed and will be retried",
		}),
		Batches: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "minister_outbox_batch_size",
			Help:    "Entries per relayed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

func (m *Metrics) observe(n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Failures.Inc()
		return
	}
	if n > 0 {
		m.Published.Add(float64(n))
		m.Batches.Observe(float64(n))
	}
}
