package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/observability/metrics"
	"github.com/hackgods/clinic-queue/internal/queue"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

type RouterConfig struct {
	Service   *appointment.Service
	Statuses  StatusReader
	Analytics *queue.Analytics

	Postgres Checker
	Redis    Checker

	Logger         *logging.Logger
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler // served on /metrics when set

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.HTTPMetrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	h := NewHandler(cfg.Service, cfg.Statuses, cfg.Analytics, logger)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.CreateAppointment)
		r.Get("/{id}", h.GetAppointment)
		r.Post("/{id}/reschedule", h.RescheduleAppointment)
		r.Post("/{id}/transitions", h.TransitionAppointment)
	})

	r.Get("/patients/{id}/appointments", h.ListPatientAppointments)

	r.Route("/providers/{id}", func(r chi.Router) {
		r.Get("/appointments", h.ListProviderAppointments)
		r.Get("/slots", h.ListProviderSlots)
		r.Get("/metrics", h.ProviderMetrics)
	})

	r.Get("/queue/status", h.QueueStatus)

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/peak-hours", h.PeakHours)
		r.Get("/hourly-volume", h.HourlyVolume)
	})

	return r
}
