// Package outbox relays rows of the transactional outbox table to Kafka.
// History records are written to the outbox in the same transaction as the
// ledger change that produced them; the relay publishes them afterwards
// and marks them published, giving at-least-once delivery.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one unpublished outbox row.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Publisher delivers a batch of entries. It returns only once every entry
// is acknowledged, or an error if any one of them was not.
type Publisher interface {
	Publish(ctx context.Context, entries []Entry) error
}

// Source hands out batches of unpublished entries. Relay claims up to
// limit entries, passes them to publish, and marks them published only
// when publish succeeds. It returns the number of entries relayed.
type Source interface {
	Relay(ctx context.Context, limit int, publish func(ctx context.Context, entries []Entry) error) (int, error)
}
