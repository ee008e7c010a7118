package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	txcontext "minister/pkg/platform/tx"

	"github.com/google/uuid"
)

// PostgresStore persists records in the history table. Every append also
// writes an outbox row in the same transaction for the relay worker.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, record *Record) error {
	exec := txcontext.Pick(ctx, s.db)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	var extra []byte
	if len(record.Extra) > 0 {
		var err error
		if extra, err = json.Marshal(record.Extra); err != nil {
			return fmt.Errorf("marshal history extra: %w", err)
		}
	}

	// GREATEST keeps timestamps non-decreasing within a category.
	query := `
		INSERT INTO history (
			timestamp, actor_id, actor_name, action, category,
			subject_id, subject_name, old_slot, new_slot, group_name, extra
		)
		VALUES (
			GREATEST($1::timestamptz, COALESCE((SELECT max(timestamp) FROM history WHERE category = $5), $1::timestamptz)),
			$2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING id, timestamp
	`
	err := exec.QueryRowContext(ctx, query,
		record.Timestamp,
		record.ActorID,
		record.ActorName,
		string(record.Action),
		record.Category,
		record.SubjectID,
		record.SubjectName,
		record.OldSlot,
		record.NewSlot,
		record.GroupName,
		nullJSON(extra),
	).Scan(&record.ID, &record.Timestamp)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	aggregateID := record.Category
	if aggregateID == "" {
		aggregateID = "global"
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), "history", aggregateID, string(record.Action), payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) TagArchive(ctx context.Context, archiveID string) (int, error) {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE history SET archive_id = $1 WHERE archive_id IS NULL`, archiveID)
	if err != nil {
		return 0, fmt.Errorf("tag history archive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("tag history archive: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.ArchiveID == "" {
		where = append(where, "archive_id IS NULL")
	} else {
		args = append(args, filter.ArchiveID)
		where = append(where, fmt.Sprintf("archive_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	query := `
		SELECT id, timestamp, actor_id, actor_name, action, category,
			subject_id, subject_name, old_slot, new_slot, group_name, extra,
			COALESCE(archive_id, '')
		FROM history
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r      Record
			action string
			extra  []byte
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.ActorID, &r.ActorName, &action, &r.Category,
			&r.SubjectID, &r.SubjectName, &r.OldSlot, &r.NewSlot, &r.GroupName, &extra, &r.ArchiveID); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		r.Action = Action(action)
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &r.Extra); err != nil {
				return nil, fmt.Errorf("decode history extra: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListArchiveIDs(ctx context.Context) ([]string, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT archive_id
		FROM history
		WHERE archive_id IS NOT NULL
		GROUP BY archive_id
		ORDER BY max(id) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list archive ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan archive id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
