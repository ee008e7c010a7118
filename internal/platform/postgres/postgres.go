// Package postgres opens the database and owns the schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"minister/internal/slotgrid"
)

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Schema is the full DDL. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS bookings (
	category     TEXT        NOT NULL,
	subject_id   TEXT        NOT NULL,
	subject_name TEXT        NOT NULL DEFAULT '',
	group_id     TEXT        NOT NULL DEFAULT '',
	slot         TEXT        NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT bookings_pkey PRIMARY KEY (category, subject_id),
	CONSTRAINT bookings_category_slot_key UNIQUE (category, slot) DEFERRABLE INITIALLY IMMEDIATE
);

CREATE TABLE IF NOT EXISTS slot_mode (
	id         SMALLINT    PRIMARY KEY CHECK (id = 1),
	mode       TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS history (
	id           BIGSERIAL   PRIMARY KEY,
	timestamp    TIMESTAMPTZ NOT NULL,
	actor_id     TEXT        NOT NULL DEFAULT '',
	actor_name   TEXT        NOT NULL DEFAULT '',
	action       TEXT        NOT NULL,
	category     TEXT        NOT NULL DEFAULT '',
	subject_id   TEXT        NOT NULL DEFAULT '',
	subject_name TEXT        NOT NULL DEFAULT '',
	old_slot     TEXT        NOT NULL DEFAULT '',
	new_slot     TEXT        NOT NULL DEFAULT '',
	group_name   TEXT        NOT NULL DEFAULT '',
	extra        JSONB,
	archive_id   TEXT
);

CREATE INDEX IF NOT EXISTS history_category_ts_idx ON history (category, timestamp DESC, id DESC);
CREATE INDEX IF NOT EXISTS history_actor_idx ON history (actor_id);
CREATE INDEX IF NOT EXISTS history_archive_idx ON history (archive_id);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID        PRIMARY KEY,
	aggregate_type TEXT        NOT NULL,
	aggregate_id   TEXT        NOT NULL,
	event_type     TEXT        NOT NULL,
	payload        JSONB       NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS outbox_unpublished_idx ON outbox (created_at) WHERE published_at IS NULL;
`

// Migrate applies Schema and seeds the slot mode row with defaultMode
// when it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB, defaultMode slotgrid.Mode) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO slot_mode (id, mode) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`,
		defaultMode.String())
	if err != nil {
		return fmt.Errorf("seed slot mode: %w", err)
	}
	return nil
}
