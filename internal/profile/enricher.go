package profile

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"minister/internal/booking/models"
)

const defaultConcurrency = 8

// Enricher resolves profiles for many subjects concurrently.
type Enricher struct {
	fetcher     Fetcher
	logger      *slog.Logger
	concurrency int
}

func NewEnricher(fetcher Fetcher, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{fetcher: fetcher, logger: logger, concurrency: defaultConcurrency}
}

// Enrich returns a profile for every distinct subject, keyed by id.
// It never fails; unavailable profiles become placeholders.
func (e *Enricher) Enrich(ctx context.Context, subjects []models.Subject) map[string]Profile {
	unique := make(map[string]models.Subject, len(subjects))
	for _, s := range subjects {
		unique[s.ID] = s
	}
	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	results := make([]Profile, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := e.fetcher.FetchProfile(gctx, id)
			if err != nil {
				e.logger.DebugContext(ctx, "profile lookup degraded to placeholder",
					"subject_id", id,
					"error", err,
				)
				p = Placeholder(unique[id].DisplayName())
			}
			if p.Nickname == "" {
				p.Nickname = unique[id].DisplayName()
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Profile, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out
}
