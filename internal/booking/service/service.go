package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"minister/internal/booking/metrics"
	"minister/internal/booking/models"
	"minister/internal/booking/ports"
	"minister/internal/history"
	"minister/internal/slotgrid"
	dErrors "minister/pkg/domain-errors"
	"minister/pkg/platform/sentinel"
	"minister/pkg/requestcontext"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Directory resolves subjects that may hold bookings. Unknown subjects
// are reported with sentinel.ErrNotFound.
type Directory interface {
	LookupSubject(ctx context.Context, subjectID string) (models.Subject, error)
}

// Service resolves booking requests against the ledger. Mutations on one
// category are serialized; migrations and archives run exclusively.
type Service struct {
	ledger    ports.Ledger
	history   ports.HistoryReader
	tx        ports.LedgerTx
	directory Directory
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	locks     categoryLocks
	gate      sync.RWMutex
	migrating atomic.Bool
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDirectory makes Book reject subjects the directory does not know.
func WithDirectory(d Directory) Option {
	return func(s *Service) {
		s.directory = d
	}
}

// New constructs a Service. ledger serves reads outside transactions.
func New(ledger ports.Ledger, hist ports.HistoryReader, tx ports.LedgerTx, opts ...Option) (*Service, error) {
	if ledger == nil || hist == nil || tx == nil {
		return nil, errors.New("booking service requires ledger, history and tx")
	}
	s := &Service{ledger: ledger, history: hist, tx: tx, tracer: otel.Tracer("minister/booking")}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Book reserves req.Slot for req.Subject, moving any booking the subject
// already holds in the category. A slot held by someone else is refused
// with a *models.ConflictError naming the holder and nothing changes.
func (s *Service) Book(ctx context.Context, req models.BookRequest) (*models.BookResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("category", req.Category.String()),
		attribute.String("slot", req.Slot),
	))
	defer span.End()
	defer s.observeBook(start)

	if !req.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown category %q", req.Category))
	}
	if _, err := slotgrid.Parse(req.Slot); err != nil {
		return nil, err
	}
	subject, err := s.resolveSubject(ctx, req.Subject)
	if err != nil {
		return nil, s.fail(span, err)
	}

	var result *models.BookResult
	err = s.inCategory(ctx, req.Category, func(ctx context.Context, stores ports.Stores) error {
		mode, err := stores.Ledger.Mode(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read slot mode")
		}
		slot, err := slotgrid.Validate(mode, req.Slot)
		if err != nil {
			return err
		}

		// The target must be checked before the subject's current booking
		// is touched.
		holder, err := stores.Ledger.FindBySlot(ctx, req.Category, slot)
		switch {
		case err == nil && holder.SubjectID == subject.ID:
			return dErrors.New(dErrors.CodeAlreadyBooked,
				fmt.Sprintf("%s already holds %s", subject.DisplayName(), slot))
		case err == nil:
			return &models.ConflictError{Category: req.Category, Slot: slot, Holder: holder.Subject()}
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read slot holder")
		}

		booking := models.Booking{
			Category:    req.Category,
			Slot:        slot,
			SubjectID:   subject.ID,
			SubjectName: subject.DisplayName(),
			GroupID:     subject.GroupID,
		}
		record := &history.Record{
			Timestamp:   requestcontext.Now(ctx),
			ActorID:     req.Actor.ID,
			ActorName:   req.Actor.Name,
			Action:      history.ActionAdd,
			Category:    req.Category.String(),
			SubjectID:   subject.ID,
			SubjectName: subject.DisplayName(),
			NewSlot:     slot,
			GroupName:   subject.GroupID,
		}
		result = &models.BookResult{Booking: booking}

		_, err = stores.Ledger.FindBySubject(ctx, req.Category, subject.ID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			if err := stores.Ledger.Reserve(ctx, booking); err != nil {
				return s.ledgerError(err, req.Category, slot, "failed to reserve slot")
			}
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read current booking")
		default:
			prev, err := stores.Ledger.Move(ctx, req.Category, subject.ID, slot)
			if err != nil {
				return s.ledgerError(err, req.Category, slot, "failed to move booking")
			}
			// Move keeps the stored name and group, so report those.
			moved := *prev
			moved.Slot = slot
			result.Booking = moved
			result.PreviousSlot = prev.Slot
			record.Action = history.ActionReschedule
			record.OldSlot = prev.Slot
			record.SubjectName = prev.SubjectName
			record.GroupName = prev.GroupID
		}

		if err := stores.History.Append(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record history")
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeSlotConflict) {
			s.incrementConflict(req.Category)
		}
		return nil, s.fail(span, err)
	}

	kind := string(history.ActionAdd)
	if result.Rescheduled() {
		kind = string(history.ActionReschedule)
	}
	s.incrementBooking(req.Category, kind)
	s.logger.InfoContext(ctx, "booking committed",
		"category", req.Category,
		"subject_id", subject.ID,
		"slot", result.Booking.Slot,
		"previous_slot", result.PreviousSlot,
		"actor_id", req.Actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// Cancel removes the subject's booking in category.
func (s *Service) Cancel(ctx context.Context, category models.Category, subjectID string, actor models.Actor) (*models.CancelResult, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(
		attribute.String("category", category.String()),
	))
	defer span.End()

	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown category %q", category))
	}
	if strings.TrimSpace(subjectID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject id is required")
	}

	var result *models.CancelResult
	err := s.inCategory(ctx, category, func(ctx context.Context, stores ports.Stores) error {
		removed, err := stores.Ledger.Cancel(ctx, category, subjectID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotBooked,
				fmt.Sprintf("%s has no booking on %s", subjectID, category.DisplayName()))
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel booking")
		}
		if err := stores.History.Append(ctx, &history.Record{
			Timestamp:   requestcontext.Now(ctx),
			ActorID:     actor.ID,
			ActorName:   actor.Name,
			Action:      history.ActionRemove,
			Category:    category.String(),
			SubjectID:   removed.SubjectID,
			SubjectName: removed.SubjectName,
			OldSlot:     removed.Slot,
			GroupName:   removed.GroupID,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record history")
		}
		result = &models.CancelResult{Booking: *removed, RemovedSlot: removed.Slot}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.incrementCancellation(category)
	s.logger.InfoContext(ctx, "booking cancelled",
		"category", category,
		"subject_id", subjectID,
		"slot", result.RemovedSlot,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// ClearAll removes every booking in category matching filter and records
// one summarizing history entry.
func (s *Service) ClearAll(ctx context.Context, category models.Category, filter models.ClearFilter, actor models.Actor) (*models.ClearResult, error) {
	ctx, span := s.tracer.Start(ctx, "booking.ClearAll", trace.WithAttributes(
		attribute.String("category", category.String()),
		attribute.String("group_id", filter.GroupID),
	))
	defer span.End()

	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown category %q", category))
	}

	var result *models.ClearResult
	err := s.inCategory(ctx, category, func(ctx context.Context, stores ports.Stores) error {
		removed, err := stores.Ledger.Clear(ctx, category, filter)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear bookings")
		}
		scope := "all"
		if filter.GroupID != "" {
			scope = "group:" + filter.GroupID
		}
		if err := stores.History.Append(ctx, &history.Record{
			Timestamp: requestcontext.Now(ctx),
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Action:    history.ActionClearAll,
			Category:  category.String(),
			GroupName: filter.GroupID,
			Extra: map[string]string{
				"count": fmt.Sprint(len(removed)),
				"scope": scope,
			},
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record history")
		}
		result = &models.ClearResult{Category: category, Removed: removed, Count: len(removed)}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.addCleared(category, result.Count)
	s.logger.InfoContext(ctx, "bookings cleared",
		"category", category,
		"count", result.Count,
		"group_id", filter.GroupID,
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// ListAvailable returns the free slots of category in grid order together
// with the mode they were read under.
func (s *Service) ListAvailable(ctx context.Context, category models.Category) (slotgrid.Mode, []string, error) {
	if !category.IsValid() {
		return "", nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown category %q", category))
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	mode, err := s.ledger.Mode(ctx)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read slot mode")
	}
	bookings, err := s.ledger.ListByCategory(ctx, category)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bookings")
	}
	taken := models.SlotIndex(bookings)
	all := slotgrid.Slots(mode)
	free := make([]string, 0, len(all))
	for _, slot := range all {
		if _, ok := taken[slot]; !ok {
			free = append(free, slot)
		}
	}
	return mode, free, nil
}

// ListBooked returns the held slots of category in chronological order.
func (s *Service) ListBooked(ctx context.Context, category models.Category) ([]models.BookedSlot, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown category %q", category))
	}
	s.gate.RLock()
	defer s.gate.RUnlock()

	bookings, err := s.ledger.ListByCategory(ctx, category)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bookings")
	}
	models.SortBySlot(bookings)
	out := make([]models.BookedSlot, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, models.BookedSlot{Slot: b.Slot, Subject: b.Subject()})
	}
	return out, nil
}

// GetMode returns the active slot mode.
func (s *Service) GetMode(ctx context.Context) (slotgrid.Mode, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	mode, err := s.ledger.Mode(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read slot mode")
	}
	return mode, nil
}

// History returns committed records newest first.
func (s *Service) History(ctx context.Context, filter history.Filter) ([]history.Record, error) {
	if filter.Category != "" {
		cat, err := models.ParseCategory(filter.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = cat.String()
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultHistoryLimit
	case filter.Limit > maxHistoryLimit:
		filter.Limit = maxHistoryLimit
	}
	records, err := s.history.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list history")
	}
	return records, nil
}

// ListArchives returns archive ids, most recent first.
func (s *Service) ListArchives(ctx context.Context) ([]string, error) {
	ids, err := s.history.ListArchiveIDs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list archives")
	}
	return ids, nil
}

// Exclusive runs fn while no booking mutation is in flight.
func (s *Service) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	return fn(ctx)
}

// inCategory runs fn as one unit of work holding the category lock.
func (s *Service) inCategory(ctx context.Context, category models.Category, fn func(ctx context.Context, stores ports.Stores) error) error {
	if s.migrating.Load() {
		return dErrors.New(dErrors.CodeMigrationInProgress, "slot-mode migration in progress, try again shortly")
	}
	s.gate.RLock()
	defer s.gate.RUnlock()
	unlock := s.locks.lock(category)
	defer unlock()

	return s.tx.RunInTx(ctx, []models.Category{category}, fn)
}

func (s *Service) resolveSubject(ctx context.Context, subject models.Subject) (models.Subject, error) {
	subject.ID = strings.TrimSpace(subject.ID)
	if subject.ID == "" {
		return models.Subject{}, dErrors.New(dErrors.CodeValidation, "subject id is required")
	}
	if s.directory == nil {
		return subject, nil
	}
	found, err := s.directory.LookupSubject(ctx, subject.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Subject{}, dErrors.New(dErrors.CodeNotRegistered,
			fmt.Sprintf("%s is not registered", subject.DisplayName()))
	}
	if err != nil {
		return models.Subject{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve subject")
	}
	if found.Name == "" {
		found.Name = subject.Name
	}
	return found, nil
}

// ledgerError maps ledger facts raised by a write onto domain errors.
func (s *Service) ledgerError(err error, category models.Category, slot, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeSlotConflict,
			fmt.Sprintf("slot %s on %s was taken concurrently", slot, category.DisplayName()))
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotBooked, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}
