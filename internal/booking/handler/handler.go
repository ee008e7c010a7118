package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"minister/internal/archive"
	"minister/internal/booking/models"
	"minister/internal/history"
	"minister/internal/platform/metrics"
	"minister/internal/platform/middleware"
	"minister/internal/profile"
	"minister/internal/slotgrid"
	dErrors "minister/pkg/domain-errors"
	"minister/pkg/platform/httputil"
	"minister/pkg/platform/middleware/admin"
	"minister/pkg/platform/middleware/auth"
	"minister/pkg/platform/middleware/requesttime"
	"minister/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/booking-mocks.go -package=mocks Service,Archiver,Roster,Enricher

// Service defines the booking operations exposed over HTTP.
type Service interface {
	Book(ctx context.Context, req models.BookRequest) (*models.BookResult, error)
	Cancel(ctx context.Context, category models.Category, subjectID string, actor models.Actor) (*models.CancelResult, error)
	ClearAll(ctx context.Context, category models.Category, filter models.ClearFilter, actor models.Actor) (*models.ClearResult, error)
	ListAvailable(ctx context.Context, category models.Category) (slotgrid.Mode, []string, error)
	ListBooked(ctx context.Context, category models.Category) ([]models.BookedSlot, error)
	GetMode(ctx context.Context) (slotgrid.Mode, error)
	ChangeMode(ctx context.Context, target slotgrid.Mode, actor models.Actor) (*models.MigrationReport, error)
	History(ctx context.Context, filter history.Filter) ([]history.Record, error)
	ListArchives(ctx context.Context) ([]string, error)
}

// Archiver takes and serves ledger archives.
type Archiver interface {
	Archive(ctx context.Context, actor models.Actor) (*archive.Result, error)
	Snapshot(ctx context.Context, id string) (*archive.Snapshot, error)
	List(ctx context.Context) ([]archive.Summary, error)
}

// Roster lists the subjects an administrator may book for.
type Roster interface {
	AdminUsers(ctx context.Context, userID, guildID string) ([]models.Subject, error)
}

// Enricher attaches display profiles to booked subjects.
type Enricher interface {
	Enrich(ctx context.Context, subjects []models.Subject) map[string]profile.Profile
}

type Handler struct {
	service    Service
	archives   Archiver
	roster     Roster
	enricher   Enricher
	checker    admin.Checker
	adminToken string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
}

type Option func(*Handler)

func WithRoster(r Roster) Option {
	return func(h *Handler) { h.roster = r }
}

func WithEnricher(e Enricher) Option {
	return func(h *Handler) { h.enricher = e }
}

// WithAdmin configures how administrator routes are authorised. token may
// be empty to disable the operator token.
func WithAdmin(checker admin.Checker, token string) Option {
	return func(h *Handler) {
		h.checker = checker
		h.adminToken = token
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func New(service Service, archives Archiver, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:  service,
		archives: archives,
		logger:   logger,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the booking API on r.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(h.timeout))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.LatencyMiddleware(h.metrics))
	router.Use(requesttime.Middleware)
	router.Use(auth.Identify)

	router.Get("/categories/{category}/slots/available", h.HandleListAvailable)
	router.Get("/categories/{category}/slots/booked", h.HandleListBooked)
	router.Get("/mode", h.HandleGetMode)

	router.Group(func(r chi.Router) {
		r.Use(auth.RequireActor(h.logger))
		r.Put("/categories/{category}/bookings/{subjectID}", h.HandleBook)
		r.Delete("/categories/{category}/bookings/{subjectID}", h.HandleCancel)
		r.Get("/history", h.HandleHistory)
		r.Get("/history/archives", h.HandleArchiveEras)
	})

	router.Group(func(r chi.Router) {
		r.Use(admin.RequireAdmin(h.checker, h.adminToken, admin.ScopeAdmin, h.logger))
		r.Delete("/categories/{category}/bookings", h.HandleClearAll)
		r.Get("/subjects", h.HandleListSubjects)
		r.Get("/archives", h.HandleListArchives)
		r.Get("/archives/{archiveID}", h.HandleGetArchive)
	})

	router.Group(func(r chi.Router) {
		r.Use(admin.RequireAdmin(h.checker, h.adminToken, admin.ScopeGlobal, h.logger))
		r.Put("/mode", h.HandleChangeMode)
		r.Post("/archives", h.HandleArchive)
	})

	r.Mount("/", router)
}

// HandleListAvailable handles GET /categories/{category}/slots/available.
func (h *Handler) HandleListAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	mode, slots, err := h.service.ListAvailable(ctx, category)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list available slots", err, "category", category)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AvailableResponse{
		Category:    category,
		DisplayName: category.DisplayName(),
		Mode:        mode,
		Slots:       slots,
	})
}

// HandleListBooked handles GET /categories/{category}/slots/booked.
// Profiles are attached when an enricher is configured; lookups that fail
// show a placeholder.
func (h *Handler) HandleListBooked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	slots, err := h.service.ListBooked(ctx, category)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list booked slots", err, "category", category)
		return
	}
	var profiles map[string]profile.Profile
	if h.enricher != nil && len(slots) > 0 {
		subjects := make([]models.Subject, len(slots))
		for i, s := range slots {
			subjects[i] = s.Subject
		}
		profiles = h.enricher.Enrich(ctx, subjects)
	}
	httputil.WriteJSON(w, http.StatusOK, fromBooked(category, slots, profiles))
}

// HandleBook handles PUT /categories/{category}/bookings/{subjectID}.
// Booking for someone else requires administrator rights.
func (h *Handler) HandleBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	subjectID := chi.URLParam(r, "subjectID")
	if !h.authorizeFor(ctx, w, subjectID) {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BookRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Book(ctx, models.BookRequest{
		Category: category,
		Subject:  models.Subject{ID: subjectID, Name: req.SubjectName, GroupID: req.GroupID},
		Slot:     req.Slot,
		Actor:    actor(ctx),
	})
	if err != nil {
		h.writeFailure(ctx, w, "booking rejected", err,
			"category", category,
			"subject_id", subjectID,
			"slot", req.Slot,
		)
		return
	}
	h.logger.InfoContext(ctx, "slot booked",
		"request_id", requestID,
		"category", category,
		"subject_id", subjectID,
		"slot", result.Booking.Slot,
		"previous_slot", result.PreviousSlot,
	)
	httputil.WriteJSON(w, http.StatusOK, fromBookResult(result))
}

// HandleCancel handles DELETE /categories/{category}/bookings/{subjectID}.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	subjectID := chi.URLParam(r, "subjectID")
	if !h.authorizeFor(ctx, w, subjectID) {
		return
	}
	result, err := h.service.Cancel(ctx, category, subjectID, actor(ctx))
	if err != nil {
		h.writeFailure(ctx, w, "cancellation rejected", err,
			"category", category,
			"subject_id", subjectID,
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CancelResponse{
		Category:    category,
		RemovedSlot: result.RemovedSlot,
		Subject:     result.Booking.Subject(),
	})
}

// HandleClearAll handles DELETE /categories/{category}/bookings?group=.
func (h *Handler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	filter := models.ClearFilter{GroupID: r.URL.Query().Get("group")}
	result, err := h.service.ClearAll(ctx, category, filter, actor(ctx))
	if err != nil {
		h.writeFailure(ctx, w, "clear failed", err, "category", category)
		return
	}
	h.logger.InfoContext(ctx, "category cleared",
		"request_id", requestcontext.RequestID(ctx),
		"category", category,
		"group_id", filter.GroupID,
		"count", result.Count,
	)
	httputil.WriteJSON(w, http.StatusOK, ClearResponse{Category: category, Count: result.Count})
}

// HandleGetMode handles GET /mode.
func (h *Handler) HandleGetMode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mode, err := h.service.GetMode(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "failed to read slot mode", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ModeResponse{Mode: mode, Slots: len(slotgrid.Slots(mode))})
}

// HandleChangeMode handles PUT /mode.
func (h *Handler) HandleChangeMode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[ChangeModeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	report, err := h.service.ChangeMode(ctx, req.ParsedMode(), actor(ctx))
	if err != nil {
		h.writeFailure(ctx, w, "slot mode change rejected", err, "target_mode", req.ParsedMode())
		return
	}
	h.logger.InfoContext(ctx, "slot mode changed",
		"request_id", requestID,
		"before", report.BeforeMode,
		"after", report.AfterMode,
		"count", report.Count,
	)
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleHistory handles GET /history?category=&actor=&archive=&limit=.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := history.Filter{
		Category:  q.Get("category"),
		ActorID:   q.Get("actor"),
		ArchiveID: q.Get("archive"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	records, err := h.service.History(ctx, filter)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list history", err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{Records: records})
}

// HandleArchiveEras handles GET /history/archives.
func (h *Handler) HandleArchiveEras(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := h.service.ListArchives(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list archive eras", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, ArchiveEraResponse{ArchiveIDs: ids})
}

// HandleArchive handles POST /archives.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.archives.Archive(ctx, actor(ctx))
	if err != nil {
		h.writeFailure(ctx, w, "archive failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// HandleListArchives handles GET /archives.
func (h *Handler) HandleListArchives(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summaries, err := h.archives.List(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list archives", err)
		return
	}
	if summaries == nil {
		summaries = []archive.Summary{}
	}
	httputil.WriteJSON(w, http.StatusOK, ArchiveListResponse{Archives: summaries})
}

// HandleGetArchive handles GET /archives/{archiveID}.
func (h *Handler) HandleGetArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "archiveID")
	snap, err := h.archives.Snapshot(ctx, id)
	if err != nil {
		h.writeFailure(ctx, w, "failed to load archive", err, "archive_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

// HandleListSubjects handles GET /subjects, the roster an administrator
// can book for.
func (h *Handler) HandleListSubjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.roster == nil {
		httputil.WriteJSON(w, http.StatusOK, SubjectsResponse{Subjects: []models.Subject{}})
		return
	}
	subjects, err := h.roster.AdminUsers(ctx, requestcontext.ActorID(ctx), requestcontext.GuildID(ctx))
	if err != nil {
		h.writeFailure(ctx, w, "failed to list subjects", err)
		return
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}
	httputil.WriteJSON(w, http.StatusOK, SubjectsResponse{Subjects: subjects})
}

func (h *Handler) category(w http.ResponseWriter, r *http.Request) (models.Category, bool) {
	category, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return category, true
}

// authorizeFor admits actors acting on themselves and administrators
// acting on anyone.
func (h *Handler) authorizeFor(ctx context.Context, w http.ResponseWriter, subjectID string) bool {
	actorID := requestcontext.ActorID(ctx)
	if subjectID == actorID {
		return true
	}
	if h.checker == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "cannot manage another user's booking"))
		return false
	}
	isAdmin, _, err := h.checker.IsAdmin(ctx, actorID)
	if err != nil {
		h.writeFailure(ctx, w, "admin check failed", err)
		return false
	}
	if !isAdmin {
		h.logger.WarnContext(ctx, "actor tried to manage another user's booking",
			"request_id", requestcontext.RequestID(ctx),
			"actor_id", actorID,
			"subject_id", subjectID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "cannot manage another user's booking"))
		return false
	}
	return true
}

// writeFailure logs err at a level matching its code and renders it.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func actor(ctx context.Context) models.Actor {
	return models.Actor{ID: requestcontext.ActorID(ctx), Name: requestcontext.ActorName(ctx)}
}
