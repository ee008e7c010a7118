package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the booking module.
// Tracks booking outcomes per category, conflicts, and migration batches.
type Metrics struct {
	Bookings          *prometheus.CounterVec
	Conflicts         *prometheus.CounterVec
	Cancellations     *prometheus.CounterVec
	Cleared           *prometheus.CounterVec
	MigratedBookings  prometheus.Counter
	MigrationRejected prometheus.Counter
	Archives          prometheus.Counter
	BookDuration      prometheus.Histogram
	MigrateDuration   prometheus.Histogram
}

// New registers the booking metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minister_bookings_total",
			Help: "Successful bookings by category and kind (add or reschedule)",
		}, []string{"category", "kind"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minister_booking_conflicts_total",
			Help: "Booking attempts rejected because the slot was held",
		}, []string{"category"}),
		Cancellations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minister_cancellations_total",
			Help: "Bookings cancelled by category",
		}, []string{"category"}),
		Cleared: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minister_bookings_cleared_total",
			Help: "Bookings removed by bulk clears",
		}, []string{"category"}),
		MigratedBookings: f.NewCounter(prometheus.CounterOpts{
			Name: "minister_migrated_bookings_total",
			Help: "Bookings rewritten by slot-mode migrations",
		}),
		MigrationRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "minister_migrations_rejected_total",
			Help: "Slot-mode migrations rejected because staged slots collided",
		}),
		Archives: f.NewCounter(prometheus.CounterOpts{
			Name: "minister_archives_total",
			Help: "Archives taken",
		}),
		BookDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "minister_book_duration_seconds",
			Help:    "Duration of Book operations",
			Buckets: durationBuckets,
		}),
		MigrateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "minister_migrate_duration_seconds",
			Help:    "Duration of slot-mode migrations",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) IncrementBooking(category, kind string) {
	m.Bookings.WithLabelValues(category, kind).Inc()
}

func (m *Metrics) IncrementConflict(category string) {
	m.Conflicts.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementCancellation(category string) {
	m.Cancellations.WithLabelValues(category).Inc()
}

func (m *Metrics) AddCleared(category string, n int) {
	m.Cleared.WithLabelValues(category).Add(float64(n))
}

func (m *Metrics) AddMigrated(n int) {
	m.MigratedBookings.Add(float64(n))
}

func (m *Metrics) IncrementMigrationRejected() {
	m.MigrationRejected.Inc()
}

func (m *Metrics) IncrementArchive() {
	m.Archives.Inc()
}

// ObserveBook records the duration of a Book operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveBook(start time.Time) {
	m.BookDuration.Observe(time.Since(start).Seconds())
}

// ObserveMigrate records the duration of a migration.
func (m *Metrics) ObserveMigrate(start time.Time) {
	m.MigrateDuration.Observe(time.Since(start).Seconds())
}
