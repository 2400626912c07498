package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/observability/metrics"
	"github.com/hackgods/clinic-queue/internal/queue"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

var testNow = time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC)

type testServer struct {
	handler  http.Handler
	svc      *appointment.Service
	patient  appointment.Patient
	provider appointment.Provider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := appointment.NewMemoryRepository()
	ts := &testServer{
		patient:  appointment.Patient{ID: uuid.New(), Name: "Ada Lovelace"},
		provider: appointment.Provider{ID: uuid.New(), Name: "Dr. Grey", Department: "Cardiology"},
	}
	repo.AddPatient(ts.patient)
	repo.AddProvider(ts.provider)

	clock := func() time.Time { return testNow }
	logger := logging.Discard()
	estimator := queue.NewEstimator(repo, queue.NewMemoryStatusStore(), time.UTC,
		queue.WithClock(clock),
		queue.WithLogger(logger),
	)
	ts.svc = appointment.NewService(repo, config.Config{
		Location:     time.UTC,
		WorkStart:    8 * time.Hour,
		WorkEnd:      17 * time.Hour,
		SlotDuration: 30 * time.Minute,
	},
		appointment.WithEstimator(estimator),
		appointment.WithLogger(logger),
		appointment.WithClock(clock),
	)
	t.Cleanup(ts.svc.Wait)

	reg := prometheus.NewRegistry()
	ts.handler = NewRouter(RouterConfig{
		Service:        ts.svc,
		Statuses:       estimator,
		Analytics:      queue.NewAnalytics(repo),
		Postgres:       CheckerFunc(func(context.Context) error { return nil }),
		Logger:         logger,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Env:            "test",
		Version:        "dev",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, actor *appointment.Actor) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(headerActorRole, string(actor.Role))
		if actor.ID != uuid.Nil {
			req.Header.Set(headerActorID, actor.ID.String())
		}
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) asPatient() *appointment.Actor {
	return &appointment.Actor{ID: ts.patient.ID, Role: appointment.RolePatient}
}

func (ts *testServer) book(t *testing.T, date, slot string) AppointmentResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID:  ts.patient.ID.String(),
		ProviderID: ts.provider.ID.String(),
		Date:       date,
		TimeSlot:   slot,
		Reason:     "checkup",
	}, ts.asPatient())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateAppointment(t *testing.T) {
	ts := newTestServer(t)

	appt := ts.book(t, "2024-01-11", "09:00-09:30")
	assert.Equal(t, "scheduled", appt.Status)
	assert.Equal(t, "normal", appt.Priority)
	assert.Equal(t, "Cardiology", appt.Department)
	assert.Equal(t, "2024-01-11", appt.Date)
	assert.Equal(t, "09:00-09:30", appt.TimeSlot)
}

func TestCreateAppointmentSlotConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "2024-01-11", "09:00-09:30")

	rec := ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID:  ts.patient.ID.String(),
		ProviderID: ts.provider.ID.String(),
		Date:       "2024-01-11",
		TimeSlot:   "09:00-09:30",
	}, &appointment.Actor{Role: appointment.RoleAdmin})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_conflict", decodeError(t, rec).Error)
}

func TestCreateAppointmentRejects(t *testing.T) {
	ts := newTestServer(t)
	valid := CreateAppointmentRequest{
		PatientID:  ts.patient.ID.String(),
		ProviderID: ts.provider.ID.String(),
		Date:       "2024-01-11",
		TimeSlot:   "09:00-09:30",
	}

	stranger := &appointment.Actor{ID: uuid.New(), Role: appointment.RolePatient}
	badDate := valid
	badDate.Date = "11/01/2024"
	badPriority := valid
	badPriority.Priority = "urgent"
	unknownProvider := valid
	unknownProvider.ProviderID = uuid.NewString()

	tests := []struct {
		name   string
		body   CreateAppointmentRequest
		actor  *appointment.Actor
		status int
		code   string
	}{
		{"no actor", valid, nil, http.StatusForbidden, "unauthorized"},
		{"other patient", valid, stranger, http.StatusForbidden, "unauthorized"},
		{"bad date", badDate, ts.asPatient(), http.StatusBadRequest, "invalid_input"},
		{"bad priority", badPriority, ts.asPatient(), http.StatusBadRequest, "invalid_input"},
		{"unknown provider", unknownProvider, ts.asPatient(), http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/appointments", tt.body, tt.actor)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestTransitionAndQueueInfo(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "2024-01-10", "09:00-09:30")
	path := "/appointments/" + appt.ID.String()

	rec := ts.do(t, http.MethodPost, path+"/transitions", TransitionRequest{Event: "complete"}, ts.asPatient())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodPost, path+"/transitions", TransitionRequest{Event: "check_in"}, ts.asPatient())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var checkedIn AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&checkedIn))
	assert.Equal(t, "checked-in", checkedIn.Status)
	require.NotNil(t, checkedIn.CheckInTime)

	rec = ts.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.NotNil(t, got.Queue)
	assert.Equal(t, 1, got.Queue.Position)

	rec = ts.do(t, http.MethodGet, "/queue/status?department=Cardiology", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status DepartmentStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, 1, status.CheckedInCount)
	assert.Equal(t, 0, status.InProgressCount)
}

func TestTransitionRequiresOwnership(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "2024-01-10", "09:00-09:30")

	otherProvider := &appointment.Actor{ID: uuid.New(), Role: appointment.RoleProvider}
	rec := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/transitions",
		TransitionRequest{Event: "check_in"}, otherProvider)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	owner := &appointment.Actor{ID: ts.provider.ID, Role: appointment.RoleProvider}
	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/transitions",
		TransitionRequest{Event: "check_in"}, owner)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRescheduleFreesOldSlot(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "2024-01-11", "09:00-09:30")

	rec := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/reschedule",
		RescheduleRequest{Date: "2024-01-11", TimeSlot: "10:00-10:30"}, ts.asPatient())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var moved AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&moved))
	assert.Equal(t, appt.ID, moved.ID)
	assert.Equal(t, "10:00-10:30", moved.TimeSlot)

	rec = ts.do(t, http.MethodGet, "/providers/"+ts.provider.ID.String()+"/slots?date=2024-01-11", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var slots SlotsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&slots))
	assert.Len(t, slots.Slots, 17)
	assert.Contains(t, slots.Slots, "09:00-09:30")
	assert.NotContains(t, slots.Slots, "10:00-10:30")
}

func TestGetAppointmentErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/queue/status?department=Dermatology", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListingsAndProviderMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "2024-01-10", "09:00-09:30")
	cancelled := ts.book(t, "2024-01-10", "11:00-11:30")
	rec := ts.do(t, http.MethodPost, "/appointments/"+cancelled.ID.String()+"/transitions",
		TransitionRequest{Event: "cancel"}, ts.asPatient())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/patients/"+ts.patient.ID.String()+"/appointments?status=scheduled", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "09:00-09:30", list[0].TimeSlot)

	rec = ts.do(t, http.MethodGet, "/patients/"+ts.patient.ID.String()+"/appointments?status=lost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/providers/"+ts.provider.ID.String()+"/appointments", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 2)

	rec = ts.do(t, http.MethodGet, "/providers/"+ts.provider.ID.String()+"/metrics?date=2024-01-10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var day ProviderDayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&day))
	assert.Equal(t, 1, day.Scheduled)
	assert.Equal(t, 1, day.Cancelled)
}

func TestAnalyticsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "2024-01-11", "09:00-09:30")

	rec := ts.do(t, http.MethodGet, "/analytics/peak-hours", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var peaks []PeakHourResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&peaks))
	require.Len(t, peaks, 1)
	assert.Equal(t, "09:00", peaks[0].Start)
	assert.Equal(t, queue.LevelHigh, peaks[0].Level)

	rec = ts.do(t, http.MethodGet, "/analytics/hourly-volume?days=30", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var volumes []HourlyVolumeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&volumes))
	assert.Empty(t, volumes)

	rec = ts.do(t, http.MethodGet, "/analytics/peak-hours?days=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/health/live", nil, nil)

	rec := ts.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/health/live"`)
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestReadiness(t *testing.T) {
	up := CheckerFunc(func(context.Context) error { return nil })
	down := CheckerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		postgres Checker
		redis    Checker
		status   int
		body     string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis disabled", up, nil, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.postgres, tt.redis, "test", "dev")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.body, resp.Status)
		})
	}
}
