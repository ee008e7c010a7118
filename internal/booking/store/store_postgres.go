package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"minister/internal/booking/models"
	"minister/internal/slotgrid"
	txcontext "minister/pkg/platform/tx"

	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"

	constraintSubject = "bookings_pkey"
	constraintSlot    = "bookings_category_slot_key"
)

// PostgresStore persists the ledger in the bookings and slot_mode tables.
// Uniqueness of slot and subject per category is enforced by constraints.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const bookingColumns = `category, slot, subject_id, subject_name, group_id`

func (s *PostgresStore) ListByCategory(ctx context.Context, category models.Category) ([]models.Booking, error) {
	return s.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE category = $1`, string(category))
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]models.Booking, error) {
	return s.list(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY category`)
}

func (s *PostgresStore) FindBySubject(ctx context.Context, category models.Category, subjectID string) (*models.Booking, error) {
	return s.findOne(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE category = $1 AND subject_id = $2`,
		string(category), subjectID)
}

func (s *PostgresStore) FindBySlot(ctx context.Context, category models.Category, slot string) (*models.Booking, error) {
	return s.findOne(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE category = $1 AND slot = $2`,
		string(category), slot)
}

func (s *PostgresStore) Reserve(ctx context.Context, b models.Booking) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO bookings (category, slot, subject_id, subject_name, group_id)
		VALUES ($1, $2, $3, $4, $5)
	`, string(b.Category), b.Slot, b.SubjectID, b.SubjectName, b.GroupID)
	if err != nil {
		return translate(err, "reserve booking")
	}
	return nil
}

func (s *PostgresStore) Move(ctx context.Context, category models.Category, subjectID, newSlot string) (*models.Booking, error) {
	exec := txcontext.Pick(ctx, s.db)
	prev, err := scanBooking(exec.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE category = $1 AND subject_id = $2 FOR UPDATE`,
		string(category), subjectID))
	if err != nil {
		return nil, err
	}
	_, err = exec.ExecContext(ctx, `
		UPDATE bookings SET slot = $3, updated_at = now()
		WHERE category = $1 AND subject_id = $2
	`, string(category), subjectID, newSlot)
	if err != nil {
		return nil, translate(err, "move booking")
	}
	return prev, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, category models.Category, subjectID string) (*models.Booking, error) {
	return scanBooking(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `
		DELETE FROM bookings WHERE category = $1 AND subject_id = $2
		RETURNING `+bookingColumns,
		string(category), subjectID))
}

func (s *PostgresStore) Clear(ctx context.Context, category models.Category, filter models.ClearFilter) ([]models.Booking, error) {
	return s.list(ctx, `
		DELETE FROM bookings WHERE category = $1 AND ($2 = '' OR group_id = $2)
		RETURNING `+bookingColumns,
		string(category), filter.GroupID)
}

// ApplySlotChanges rewrites the batch in one statement. The slot
// constraint is deferred to commit so intermediate states may overlap.
func (s *PostgresStore) ApplySlotChanges(ctx context.Context, changes []models.SlotChange) error {
	if len(changes) == 0 {
		return nil
	}
	exec := txcontext.Pick(ctx, s.db)
	if _, ok := txcontext.From(ctx); ok {
		if _, err := exec.ExecContext(ctx, `SET CONSTRAINTS `+constraintSlot+` DEFERRED`); err != nil {
			return fmt.Errorf("defer slot constraint: %w", err)
		}
	}

	categories := make([]string, len(changes))
	subjects := make([]string, len(changes))
	oldSlots := make([]string, len(changes))
	newSlots := make([]string, len(changes))
	for i, c := range changes {
		categories[i] = string(c.Category)
		subjects[i] = c.SubjectID
		oldSlots[i] = c.OldSlot
		newSlots[i] = c.NewSlot
	}
	res, err := exec.ExecContext(ctx, `
		UPDATE bookings AS b
		SET slot = c.new_slot, updated_at = now()
		FROM unnest($1::text[], $2::text[], $3::text[], $4::text[])
			AS c(category, subject_id, old_slot, new_slot)
		WHERE b.category = c.category
			AND b.subject_id = c.subject_id
			AND b.slot = c.old_slot
	`, pq.Array(categories), pq.Array(subjects), pq.Array(oldSlots), pq.Array(newSlots))
	if err != nil {
		return translate(err, "apply slot changes")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply slot changes: %w", err)
	}
	if int(n) != len(changes) {
		return ErrStaleChange
	}
	return nil
}

func (s *PostgresStore) Mode(ctx context.Context) (slotgrid.Mode, error) {
	var raw string
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `SELECT mode FROM slot_mode WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return slotgrid.Standard, nil
	}
	if err != nil {
		return "", fmt.Errorf("read slot mode: %w", err)
	}
	return slotgrid.ParseMode(raw)
}

func (s *PostgresStore) SetMode(ctx context.Context, mode slotgrid.Mode) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO slot_mode (id, mode, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET mode = EXCLUDED.mode, updated_at = EXCLUDED.updated_at
	`, mode.String())
	if err != nil {
		return fmt.Errorf("write slot mode: %w", err)
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		var (
			b   models.Booking
			cat string
		)
		if err := rows.Scan(&cat, &b.Slot, &b.SubjectID, &b.SubjectName, &b.GroupID); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.Category = models.Category(cat)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	models.SortBySlot(out)
	return out, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Booking, error) {
	return scanBooking(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, args...))
}

func scanBooking(row *sql.Row) (*models.Booking, error) {
	var (
		b   models.Booking
		cat string
	)
	err := row.Scan(&cat, &b.Slot, &b.SubjectID, &b.SubjectName, &b.GroupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotBooked
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Category = models.Category(cat)
	return &b, nil
}

// translate maps constraint violations onto ledger facts.
func translate(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case constraintSlot:
			return ErrSlotTaken
		case constraintSubject:
			return ErrAlreadyBooked
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
