package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-queue/internal/api"
	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/bootstrap"
	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/db"
	"github.com/hackgods/clinic-queue/internal/notify"
	"github.com/hackgods/clinic-queue/internal/observability/metrics"
	"github.com/hackgods/clinic-queue/internal/queue"
	redisclient "github.com/hackgods/clinic-queue/internal/redis"
	"github.com/hackgods/clinic-queue/internal/telemetry"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "api-server")
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(rootCtx, telemetry.Config{
		ServiceName: "clinic-queue-api",
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Redis only carries live status fan-out here, so the API runs without it.
	var publisher queue.Publisher
	var redisCheck api.Checker
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Warn("redis unavailable, status publishing disabled", "error", err)
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err)
			}
		}()
		publisher = queue.NewRedisPublisher(rdb)
		redisCheck = api.RedisChecker(rdb)
		logger.Info("connected to Redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	repo := appointment.NewPgRepository(pgPool)
	estimatorOpts := []queue.Option{
		queue.WithMetrics(bookingMetrics),
		queue.WithLogger(logger),
	}
	if publisher != nil {
		estimatorOpts = append(estimatorOpts, queue.WithPublisher(publisher))
	}
	estimator := queue.NewEstimator(repo, queue.NewPgStatusStore(pgPool), cfg.Location, estimatorOpts...)

	svc := appointment.NewService(repo, cfg,
		appointment.WithEstimator(estimator),
		appointment.WithNotifier(notify.FromConfig(cfg, logger)),
		appointment.WithMetrics(bookingMetrics),
		appointment.WithLogger(logger),
	)

	bootstrap.Run(rootCtx, estimator, logger)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Statuses:       estimator,
		Analytics:      queue.NewAnalytics(repo),
		Postgres:       pgPool,
		Redis:          redisCheck,
		Logger:         logger,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	// let in-flight notifications finish before the pool closes
	svc.Wait()
}
