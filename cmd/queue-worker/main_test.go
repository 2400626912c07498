package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-queue/internal/observability/metrics"
)

func TestMetricsServerExposesWorkerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	m.ObserveRecompute("ok", 0.01)
	m.ObserveNotification("reminder", "ok")

	srv := newMetricsServer("9091", reg)
	assert.Equal(t, ":9091", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic_queue_recompute_total")
	assert.Contains(t, rec.Body.String(), "clinic_notify_sent_total")
}
