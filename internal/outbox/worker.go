package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// Worker drains the outbox on a fixed interval. A full batch is followed
// immediately by another claim so a backlog clears without waiting for
// the next tick.
type Worker struct {
	source    Source
	publisher Publisher
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(source Source, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		source:    source,
		publisher: publisher,
		batchSize: defaultBatchSize,
		interval:  defaultPollInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Publish failures are logged and the
// batch is retried on the next tick; they never stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "outbox relay started",
		"batch_size", w.batchSize,
		"interval", w.interval,
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		n, err := w.RelayOnce(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
			}
			return
		}
		if n < w.batchSize {
			return
		}
	}
}

// RelayOnce publishes at most one batch and reports how many entries it
// relayed.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	n, err := w.source.Relay(ctx, w.batchSize, w.publisher.Publish)
	w.metrics.observe(n, err)
	return n, err
}
