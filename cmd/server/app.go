package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"minister/internal/archive"
	bookinghandler "minister/internal/booking/handler"
	bookingmetrics "minister/internal/booking/metrics"
	"minister/internal/booking/models"
	"minister/internal/booking/ports"
	"minister/internal/booking/service"
	"minister/internal/booking/store"
	"minister/internal/history"
	"minister/internal/outbox"
	"minister/internal/permission"
	"minister/internal/platform/config"
	"minister/internal/platform/httpserver"
	"minister/internal/platform/metrics"
	"minister/internal/platform/postgres"
	redisclient "minister/internal/platform/redis"
	"minister/internal/profile"
	"minister/pkg/platform/circuit"
	"minister/pkg/platform/httputil"
)

// backend is the ledger, history and transaction runner for one storage
// choice.
type backend struct {
	ledger  ports.Ledger
	history ports.HistoryReader
	tx      ports.LedgerTx
	db      *sql.DB
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	if cfg.Database.URL == "" {
		log.WarnContext(ctx, "DATABASE_URL not set, bookings are kept in memory")
		ledger := store.NewInMemory(cfg.Booking.DefaultMode)
		hist := history.NewInMemoryStore()
		return &backend{ledger: ledger, history: hist, tx: store.NewMemoryTx(ledger, hist)}, nil
	}

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db, cfg.Booking.DefaultMode); err != nil {
		_ = db.Close()
		return nil, err
	}
	ledger := store.NewPostgres(db)
	hist := history.NewPostgresStore(db)
	return &backend{
		ledger:  ledger,
		history: hist,
		tx:      store.NewPostgresTx(db, ledger, hist, cfg.Database.TxTimeout),
		db:      db,
	}, nil
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	if be.db != nil {
		defer be.db.Close()
	}

	redis, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redis != nil {
		defer redis.Close()
	}

	perms := permission.NewStatic(permission.Config{
		Admins:       cfg.Auth.Admins,
		GlobalAdmins: cfg.Auth.GlobalAdmins,
		Subjects:     rosterFromConfig(cfg.Auth.Subjects),
	})

	bookingMetrics := bookingmetrics.New(reg)
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(bookingMetrics),
	}
	if perms.HasRoster() {
		opts = append(opts, service.WithDirectory(perms))
	}
	svc, err := service.New(be.ledger, be.history, be.tx, opts...)
	if err != nil {
		return err
	}

	var snapshots archive.SnapshotStore = archive.NewInMemoryStore()
	if redis != nil {
		snapshots = archive.NewRedisStore(redis.Client)
	} else {
		log.WarnContext(ctx, "REDIS_URL not set, archive snapshots are kept in memory")
	}
	archives := archive.NewManager(svc, be.tx, snapshots,
		archive.WithLogger(log),
		archive.WithMetrics(bookingMetrics),
	)

	handlerOpts := []bookinghandler.Option{
		bookinghandler.WithAdmin(perms, cfg.Auth.AdminToken),
		bookinghandler.WithRoster(perms),
		bookinghandler.WithMetrics(metrics.New(reg)),
		bookinghandler.WithTimeout(cfg.Server.RequestTimeout),
	}
	if cfg.Profile.APIURL != "" {
		var fetcher profile.Fetcher = profile.NewGuardedFetcher(
			profile.NewHTTPFetcher(cfg.Profile.APIURL, cfg.Profile.RatePerSec, cfg.Profile.Burst, cfg.Profile.Timeout),
			circuit.New("profile-api"),
			log,
		)
		if redis != nil {
			fetcher = profile.NewCachedFetcher(fetcher, redis.Client, cfg.Profile.CacheTTL, log)
		}
		handlerOpts = append(handlerOpts, bookinghandler.WithEnricher(profile.NewEnricher(fetcher, log)))
	}

	router := chi.NewRouter()
	router.Get("/healthz", healthHandler(be.db, redis))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	bookinghandler.New(svc, archives, log, handlerOpts...).Register(router)

	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting minister", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.InfoContext(shutdownCtx, "shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if be.db != nil && len(cfg.Kafka.Brokers) > 0 {
		if err := outbox.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			log.WarnContext(ctx, "kafka topic bootstrap failed", "topic", cfg.Kafka.Topic, "error", err)
		}
		publisher, err := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer publisher.Close()
		worker := outbox.NewWorker(outbox.NewPostgresStore(be.db), publisher,
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithLogger(log),
			outbox.WithMetrics(outbox.NewMetrics(reg)),
		)
		g.Go(func() error { return worker.Run(gctx) })
	}

	return g.Wait()
}

func rosterFromConfig(entries []config.Subject) []models.Subject {
	out := make([]models.Subject, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.Subject{ID: e.ID, Name: e.Name, GroupID: e.GroupID})
	}
	return out
}

func healthHandler(db *sql.DB, redis *redisclient.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status["postgres"] = "unavailable"
				code = http.StatusServiceUnavailable
			} else {
				status["postgres"] = "ok"
			}
		}
		if redis != nil {
			if err := redis.Health(ctx); err != nil {
				status["redis"] = "unavailable"
				code = http.StatusServiceUnavailable
			} else {
				status["redis"] = "ok"
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		httputil.WriteJSON(w, code, status)
	}
}
