package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/db"
	"github.com/hackgods/clinic-queue/internal/notify"
	"github.com/hackgods/clinic-queue/internal/observability/metrics"
	"github.com/hackgods/clinic-queue/internal/queue"
	redisclient "github.com/hackgods/clinic-queue/internal/redis"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

type worker struct {
	svc       *appointment.Service
	estimator *queue.Estimator
	locker    redisclient.Locker
	logger    *logging.Logger
	timeout   time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "queue-worker")
	logger.Info("queue-worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	bookingMetrics := metrics.NewBookingMetrics(reg)

	metricsSrv := newMetricsServer(cfg.MetricsPort, reg)
	go func() {
		logger.Info("metrics listener started", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener error", "error", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}()
	repo := appointment.NewPgRepository(pgPool)
	estimator := queue.NewEstimator(repo, queue.NewPgStatusStore(pgPool), cfg.Location,
		queue.WithPublisher(queue.NewRedisPublisher(rdb)),
		queue.WithMetrics(bookingMetrics),
		queue.WithLogger(logger),
	)
	svc := appointment.NewService(repo, cfg,
		appointment.WithEstimator(estimator),
		appointment.WithNotifier(notify.FromConfig(cfg, logger)),
		appointment.WithMetrics(bookingMetrics),
		appointment.WithLogger(logger),
	)
	defer svc.Wait()

	w := &worker{
		svc:       svc,
		estimator: estimator,
		locker:    redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		logger:    logger,
		timeout:   cfg.WorkerInterval,
	}

	// Run once at startup
	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping queue worker")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

// newMetricsServer exposes the worker's recompute, reminder and notification
// metrics for scraping.
func newMetricsServer(port string, reg *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (w *worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	n, err := w.estimator.RefreshAll(runCtx)
	if err != nil {
		w.logger.Warn("queue refresh had failures", "refreshed", n, "error", err)
	}

	// Reminders go out once per day; the lock keeps replicas from sending twice.
	day := w.svc.Today().AddDate(0, 0, 1)
	lockName := "reminders:" + day.Format(appointment.DateLayout)
	err = w.locker.WithLock(runCtx, lockName, func(ctx context.Context) error {
		sent, err := w.svc.SendReminders(ctx, day)
		if sent > 0 {
			w.logger.Info("reminders sent", "date", day.Format(appointment.DateLayout), "count", sent)
		}
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		w.logger.Debug("reminders handled by another worker", "lock", lockName)
	case err != nil:
		w.logger.Warn("reminder run error", "error", err)
	}

	w.logger.Info("queue worker run complete", "refreshed", n, "duration_ms", time.Since(start).Milliseconds())
}
