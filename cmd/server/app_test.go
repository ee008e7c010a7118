package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minister/internal/platform/config"
	redisclient "minister/internal/platform/redis"
	"minister/internal/slotgrid"
)

func TestOpenBackendWithoutDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{Booking: config.Booking{DefaultMode: slotgrid.Offset}}

	b, err := openBackend(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Nil(t, b.db)

	mode, err := b.ledger.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, slotgrid.Offset, mode)
}

func TestRosterFromConfig(t *testing.T) {
	roster := rosterFromConfig([]config.Subject{{ID: "u1", Name: "Ada", GroupID: "g1"}})
	require.Len(t, roster, 1)
	assert.Equal(t, "u1", roster[0].ID)
	assert.Equal(t, "g1", roster[0].GroupID)
	assert.Empty(t, rosterFromConfig(nil))
}

func TestHealthHandler(t *testing.T) {
	ctx := context.Background()

	check := func(t *testing.T, h http.HandlerFunc) (int, map[string]string) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		return rec.Code, body
	}

	t.Run("no dependencies", func(t *testing.T) {
		code, body := check(t, healthHandler(nil, nil))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("redis reachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := redisclient.New(ctx, config.RedisConfig{URL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		defer client.Close()

		code, body := check(t, healthHandler(nil, client))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body["redis"])
	})

	t.Run("redis down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := redisclient.New(ctx, config.RedisConfig{URL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		defer client.Close()
		mr.Close()

		code, body := check(t, healthHandler(nil, client))
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unavailable", body["redis"])
	})
}
