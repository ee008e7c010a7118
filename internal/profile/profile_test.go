package profile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minister/internal/booking/models"
	"minister/pkg/platform/circuit"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profiles/u1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"nickname":"Ada","avatar_url":"https://cdn/ada.png"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, 100, 10, time.Second)

	p, err := f.FetchProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Nickname)
	assert.Equal(t, "https://cdn/ada.png", p.AvatarURL)

	_, err = f.FetchProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPFetcherHonoursContext(t *testing.T) {
	f := NewHTTPFetcher("http://127.0.0.1:1", 0.001, 1, time.Second)
	f.limiter.Allow() // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.FetchProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type countingFetcher struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (c *countingFetcher) FetchProfile(_ context.Context, id string) (Profile, error) {
	c.calls.Add(1)
	if c.fail[id] {
		return Profile{}, ErrUnavailable
	}
	return Profile{Nickname: "nick-" + id}, nil
}

func TestCachedFetcher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingFetcher{}
	c := NewCachedFetcher(next, client, time.Minute, nil)
	ctx := context.Background()

	for range 3 {
		p, err := c.FetchProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "nick-u1", p.Nickname)
	}
	assert.Equal(t, int32(1), next.calls.Load())
	assert.True(t, mr.Exists("profile:u1"))

	mr.FastForward(2 * time.Minute)
	_, err := c.FetchProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedFetcherFallsThroughWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	c := NewCachedFetcher(&countingFetcher{}, client, time.Minute, nil)
	p, err := c.FetchProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "nick-u1", p.Nickname)
}

func TestEnricher(t *testing.T) {
	fetcher := &countingFetcher{fail: map[string]bool{"u2": true}}
	e := NewEnricher(fetcher, nil)

	profiles := e.Enrich(context.Background(), []models.Subject{
		{ID: "u1", Name: "Ada"},
		{ID: "u2", Name: "Bea"},
		{ID: "u1", Name: "Ada"},
	})

	require.Len(t, profiles, 2)
	assert.Equal(t, "nick-u1", profiles["u1"].Nickname)
	assert.False(t, profiles["u1"].Placeholder)
	assert.Equal(t, Placeholder("Bea"), profiles["u2"])
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestEnricherNeverFails(t *testing.T) {
	e := NewEnricher(failingFetcher{}, nil)
	profiles := e.Enrich(context.Background(), []models.Subject{{ID: "x"}})
	assert.Equal(t, Placeholder("x"), profiles["x"])
}

type failingFetcher struct{}

func (failingFetcher) FetchProfile(context.Context, string) (Profile, error) {
	return Profile{}, errors.New("boom")
}

func TestGuardedFetcherShortCircuits(t *testing.T) {
	next := &countingFetcher{fail: map[string]bool{"bad": true}}
	g := NewGuardedFetcher(next, circuit.New("profile-api",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Hour),
	), nil)
	ctx := context.Background()

	for range 2 {
		_, err := g.FetchProfile(ctx, "bad")
		require.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int32(2), next.calls.Load())

	_, err := g.FetchProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), next.calls.Load(), "open circuit must not call upstream")
}
