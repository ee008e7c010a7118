package profile

import (
	"context"
	"fmt"
	"log/slog"

	"minister/pkg/platform/circuit"
)

// GuardedFetcher stops calling next while its breaker is open, so a dead
// profile API costs one trial request per cooldown instead of one per
// booked subject.
type GuardedFetcher struct {
	next    Fetcher
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuardedFetcher(next Fetcher, breaker *circuit.Breaker, logger *slog.Logger) *GuardedFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedFetcher{next: next, breaker: breaker, logger: logger}
}

func (g *GuardedFetcher) FetchProfile(ctx context.Context, subjectID string) (Profile, error) {
	if !g.breaker.Allow() {
		return Profile{}, fmt.Errorf("%w: circuit %s open", ErrUnavailable, g.breaker.Name())
	}
	p, err := g.next.FetchProfile(ctx, subjectID)
	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "profile circuit opened", "circuit", g.breaker.Name(), "error", err)
		}
		return Profile{}, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "profile circuit closed", "circuit", g.breaker.Name())
	}
	return p, nil
}
