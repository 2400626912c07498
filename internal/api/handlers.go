package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/queue"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"

	defaultPeakDays   = 7
	defaultVolumeDays = 30
	maxAnalyticsDays  = 366
)

// StatusReader is the read side of the queue estimator.
type StatusReader interface {
	GetStatus(ctx context.Context, department string) (*appointment.DepartmentQueueStatus, error)
	ListStatuses(ctx context.Context) ([]appointment.DepartmentQueueStatus, error)
}

type Handler struct {
	svc       *appointment.Service
	statuses  StatusReader
	analytics *queue.Analytics
	logger    *logging.Logger
}

func NewHandler(svc *appointment.Service, statuses StatusReader, analytics *queue.Analytics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, statuses: statuses, analytics: analytics, logger: logger}
}

// actorFromRequest reads the caller identity set by the upstream auth layer.
func actorFromRequest(r *http.Request) (appointment.Actor, error) {
	role := appointment.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(headerActorRole))))
	switch role {
	case appointment.RoleAdmin, appointment.RoleSystem:
		return appointment.Actor{Role: role}, nil
	case appointment.RolePatient, appointment.RoleProvider:
		id, err := uuid.Parse(r.Header.Get(headerActorID))
		if err != nil {
			return appointment.Actor{}, fmt.Errorf("%s must be a UUID: %w", headerActorID, appointment.ErrUnauthorized)
		}
		return appointment.Actor{ID: id, Role: role}, nil
	default:
		return appointment.Actor{}, fmt.Errorf("missing or unknown %s: %w", headerActorRole, appointment.ErrUnauthorized)
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a UUID: %w", name, appointment.ErrInvalidInput)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", appointment.ErrInvalidInput)
	}
	return nil
}

func statusFilter(r *http.Request) ([]appointment.Status, error) {
	return appointment.ParseStatuses(r.URL.Query().Get("status"))
}

func dateParam(r *http.Request, h *Handler) string {
	if d := r.URL.Query().Get("date"); d != "" {
		return d
	}
	return h.svc.Today().Format(appointment.DateLayout)
}

func daysParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxAnalyticsDays {
		return 0, fmt.Errorf("days must be between 1 and %d: %w", maxAnalyticsDays, appointment.ErrInvalidInput)
	}
	return n, nil
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req CreateAppointmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "patient_id must be a UUID")
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "provider_id must be a UUID")
		return
	}
	priority, err := appointment.ParsePriority(req.Priority)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := appointment.Authorize(actor, &appointment.Appointment{PatientID: patientID, ProviderID: providerID}); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	appt, err := h.svc.Create(r.Context(), appointment.CreateRequest{
		PatientID:  patientID,
		ProviderID: providerID,
		Date:       req.Date,
		TimeSlot:   req.TimeSlot,
		Reason:     req.Reason,
		Priority:   priority,
		Actor:      actor,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// loadAuthorized fetches the appointment in the path and checks the caller may change it.
func (h *Handler) loadAuthorized(r *http.Request) (*appointment.Appointment, appointment.Actor, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return nil, actor, err
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return nil, actor, err
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		return nil, actor, err
	}
	if err := appointment.Authorize(actor, appt); err != nil {
		return nil, actor, err
	}
	return appt, actor, nil
}

func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	appt, actor, err := h.loadAuthorized(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req RescheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	updated, err := h.svc.Reschedule(r.Context(), appt.ID, req.Date, req.TimeSlot, actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
}

func (h *Handler) TransitionAppointment(w http.ResponseWriter, r *http.Request) {
	appt, actor, err := h.loadAuthorized(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req TransitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "event is required")
		return
	}

	updated, err := h.svc.Transition(r.Context(), appt.ID, appointment.Event(req.Event), actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := toAppointmentResponse(appt)
	info, err := h.svc.QueueInfo(r.Context(), appt)
	if err != nil {
		h.logger.Warn("queue info unavailable", "appointment_id", appt.ID, "error", err)
	}
	if info != nil {
		resp.Queue = &QueueInfoResponse{Position: info.Position, WaitTime: info.WaitTime, AsOf: info.AsOf}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	statuses, err := statusFilter(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	appts, err := h.svc.ListByPatient(r.Context(), patientID, statuses...)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(appts))
}

func (h *Handler) ListProviderAppointments(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	statuses, err := statusFilter(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	appts, err := h.svc.ListByProvider(r.Context(), providerID, dateParam(r, h), statuses...)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(appts))
}

func (h *Handler) ListProviderSlots(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "date is required")
		return
	}

	slots, err := h.svc.ListAvailableSlots(r.Context(), providerID, date)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := SlotsResponse{ProviderID: providerID, Date: date, Slots: make([]string, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, s.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ProviderMetrics(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	day, err := h.svc.ProviderDay(r.Context(), providerID, dateParam(r, h))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ProviderDayResponse{
		ProviderID: day.ProviderID,
		Date:       day.Date.Format(appointment.DateLayout),
		Scheduled:  day.Scheduled,
		Waiting:    day.Waiting,
		InProgress: day.InProgress,
		Completed:  day.Completed,
		Cancelled:  day.Cancelled,
	})
}

// QueueStatus returns one department's snapshot, or all of them without ?department.
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	if dept := r.URL.Query().Get("department"); dept != "" {
		status, err := h.statuses.GetStatus(r.Context(), dept)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toDepartmentStatus(*status))
		return
	}

	all, err := h.statuses.ListStatuses(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	out := make([]DepartmentStatusResponse, 0, len(all))
	for _, s := range all {
		out = append(out, toDepartmentStatus(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// PeakHours looks at the coming ?days days starting today.
func (h *Handler) PeakHours(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r, defaultPeakDays)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	from := h.svc.Today()
	peaks, err := h.analytics.PeakHours(r.Context(), from, from.AddDate(0, 0, days-1))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]PeakHourResponse, 0, len(peaks))
	for _, p := range peaks {
		out = append(out, PeakHourResponse{Start: p.Start, Count: p.Count, Level: p.Level})
	}
	writeJSON(w, http.StatusOK, out)
}

// HourlyVolume looks back ?days days, today included.
func (h *Handler) HourlyVolume(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r, defaultVolumeDays)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	to := h.svc.Today()
	volumes, err := h.analytics.HourlyVolume(r.Context(), to.AddDate(0, 0, -(days-1)), to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]HourlyVolumeResponse, 0, len(volumes))
	for _, v := range volumes {
		out = append(out, HourlyVolumeResponse{
			Date:  v.Date.Format(appointment.DateLayout),
			Hour:  v.Hour,
			Count: v.Count,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
