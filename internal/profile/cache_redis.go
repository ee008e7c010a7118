package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "profile:"

// CachedFetcher serves profiles from Redis and fills misses from next.
// Cache failures fall through to next.
type CachedFetcher struct {
	next   Fetcher
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedFetcher(next Fetcher, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFetcher{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedFetcher) FetchProfile(ctx context.Context, subjectID string) (Profile, error) {
	key := cacheKeyPrefix + subjectID
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p Profile
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			return p, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "profile cache read failed", "subject_id", subjectID, "error", err)
	}

	p, err := c.next.FetchProfile(ctx, subjectID)
	if err != nil {
		return Profile{}, err
	}
	if payload, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "profile cache write failed", "subject_id", subjectID, "error", err)
		}
	}
	return p, nil
}
