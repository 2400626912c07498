package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-queue/internal/config"
	"github.com/hackgods/clinic-queue/internal/notify"
	"github.com/hackgods/clinic-queue/internal/observability/metrics"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

// Audit event types written to event_logs.
const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCheckedIn   = "APPOINTMENT_CHECKED_IN"
	EventAppointmentStarted     = "APPOINTMENT_STARTED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventReminderSent           = "REMINDER_SENT"
)

var auditEvents = map[Event]string{
	EventCheckIn:  EventAppointmentCheckedIn,
	EventStart:    EventAppointmentStarted,
	EventComplete: EventAppointmentCompleted,
	EventCancel:   EventAppointmentCancelled,
}

var tracer = otel.Tracer("github.com/hackgods/clinic-queue/internal/appointment")

// QueueEstimator keeps department queue snapshots current.
type QueueEstimator interface {
	Refresh(ctx context.Context, department string) (*DepartmentQueueStatus, error)
	GetStatus(ctx context.Context, department string) (*DepartmentQueueStatus, error)
}

type Service struct {
	repo      Repository
	ledger    *Ledger
	cfg       config.Config
	estimator QueueEstimator
	notifier  notify.Notifier
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time

	pending sync.WaitGroup
}

type Option func(*Service)

// WithEstimator enables queue recomputes after transitions.
func WithEstimator(e QueueEstimator) Option {
	return func(s *Service) { s.estimator = e }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, cfg config.Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RecomputeTimeout <= 0 {
		cfg.RecomputeTimeout = 3 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}

	s := &Service{
		repo: repo,
		ledger: NewLedger(repo, WorkingHours{
			Start:        cfg.WorkStart,
			End:          cfg.WorkEnd,
			SlotDuration: cfg.SlotDuration,
		}),
		cfg:    cfg,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger exposes slot availability queries.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Today is the current calendar day in the clinic time zone.
func (s *Service) Today() time.Time {
	return DayOf(s.now(), s.cfg.Location)
}

func (s *Service) isToday(date time.Time) bool {
	return date.Equal(s.Today())
}

// parseTarget validates a requested (date, slot). The slot must be one of the
// working-hours grid slots and must not have started yet.
func (s *Service) parseTarget(rawDate, rawSlot string) (time.Time, TimeSlot, error) {
	date, err := ParseDate(rawDate)
	if err != nil {
		return time.Time{}, TimeSlot{}, err
	}
	slot, err := ParseTimeSlot(rawSlot)
	if err != nil {
		return time.Time{}, TimeSlot{}, err
	}
	if !slices.Contains(s.ledger.hours.Grid(), slot) {
		return time.Time{}, TimeSlot{}, fmt.Errorf("%w: slot %s is not a bookable slot", ErrInvalidInput, slot)
	}
	if slot.StartOn(date, s.cfg.Location).Before(s.now()) {
		return time.Time{}, TimeSlot{}, fmt.Errorf("%w: slot %s on %s is in the past", ErrInvalidInput, slot, rawDate)
	}
	return date, slot, nil
}

type CreateRequest struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	Date       string
	TimeSlot   string
	Reason     string
	Priority   Priority
	Actor      Actor // recorded in the audit log; zero means system
}

// Create books a slot for a patient. The availability check and the write are
// a single insert guarded by unique indexes, so of many concurrent requests
// for one slot exactly one succeeds and the rest get ErrSlotConflict.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Create", trace.WithAttributes(
		attribute.String("provider_id", req.ProviderID.String()),
		attribute.String("date", req.Date),
		attribute.String("time_slot", req.TimeSlot),
	))
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveBooking("create", ErrorCode(err))
	}()

	if req.PatientID == uuid.Nil || req.ProviderID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id and provider_id are required", ErrInvalidInput)
	}
	if req.Priority < PriorityNormal || req.Priority > PriorityEmergency {
		return nil, fmt.Errorf("%w: priority %d", ErrInvalidInput, req.Priority)
	}
	date, slot, err := s.parseTarget(req.Date, req.TimeSlot)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatient(ctx, req.PatientID); err != nil {
		return nil, wrapLookup("load patient", err)
	}
	provider, err := s.repo.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, wrapLookup("load provider", err)
	}

	department := provider.Department
	if department == "" {
		department = DefaultDepartment
	}

	now := s.now()
	created, err := s.repo.Insert(ctx, Appointment{
		ID:         uuid.New(),
		PatientID:  req.PatientID,
		ProviderID: req.ProviderID,
		Department: department,
		Date:       date,
		TimeSlot:   slot,
		Status:     StatusScheduled,
		Priority:   req.Priority,
		Reason:     req.Reason,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrDuplicateBooking) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"patient_id":  created.PatientID.String(),
		"provider_id": created.ProviderID.String(),
		"date":        created.Date.Format(DateLayout),
		"time_slot":   created.TimeSlot.String(),
		"actor_id":    req.Actor.ID.String(),
		"actor_role":  string(actorRole(req.Actor)),
	})
	s.notifyAsync(created.PatientID, "booked", bookedMessage(created))

	return created, nil
}

// Reschedule moves an appointment to a new slot with the same provider. The
// old slot is released and the new one taken in one write.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, rawDate, rawSlot string, actor Actor) (_ *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Reschedule", trace.WithAttributes(
		attribute.String("appointment_id", id.String()),
	))
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveBooking("reschedule", ErrorCode(err))
	}()

	date, slot, err := s.parseTarget(rawDate, rawSlot)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup("load appointment", err)
	}
	if !CanReschedule(current.Status) {
		return nil, fmt.Errorf("%w: status is %s", ErrNotRescheduleable, current.Status)
	}

	updated, err := s.repo.Reschedule(ctx, id, date, slot, reschedulable(), s.now())
	if err != nil {
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
			return nil, fmt.Errorf("%w: status changed concurrently", ErrNotRescheduleable)
		case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrDuplicateBooking):
			return nil, err
		}
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from_date":      current.Date.Format(DateLayout),
		"from_time_slot": current.TimeSlot.String(),
		"to_date":        updated.Date.Format(DateLayout),
		"to_time_slot":   updated.TimeSlot.String(),
		"actor_id":       actor.ID.String(),
		"actor_role":     string(actorRole(actor)),
	})

	if s.isToday(current.Date) || s.isToday(updated.Date) {
		s.recompute(ctx, updated.Department)
	}
	s.notifyAsync(updated.PatientID, "rescheduled", rescheduledMessage(updated))

	return updated, nil
}

// Transition applies a lifecycle event. The write only lands if the stored
// status is still the one the event was checked against; otherwise the
// record is left untouched and ErrInvalidTransition is returned.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, event Event, actor Actor) (_ *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Transition", trace.WithAttributes(
		attribute.String("appointment_id", id.String()),
		attribute.String("event", string(event)),
	))
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveTransition(string(event), ErrorCode(err))
	}()

	if event == EventReschedule {
		return nil, fmt.Errorf("%w: reschedule needs a target slot", ErrInvalidTransition)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup("load appointment", err)
	}

	next, err := Apply(*current, event, s.now())
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.CompareAndSwap(ctx, next, current.Status)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, updated.ID, auditEvents[event], map[string]any{
		"from":       string(current.Status),
		"to":         string(updated.Status),
		"actor_id":   actor.ID.String(),
		"actor_role": string(actorRole(actor)),
	})

	if s.isToday(updated.Date) {
		status := s.recompute(ctx, updated.Department)
		if event == EventCheckIn && status != nil {
			wait := status.EstimatedWait
			if err := s.repo.SetEstimatedWait(ctx, updated.ID, wait); err != nil {
				s.logger.Warn("failed to stamp estimated wait", "appointment_id", updated.ID, "error", err)
			} else {
				updated.EstimatedWaitTime = &wait
			}
		}
	}

	switch event {
	case EventCheckIn:
		s.notifyAsync(updated.PatientID, "checked_in", checkedInMessage(updated))
	case EventCancel:
		s.notifyAsync(updated.PatientID, "cancelled", cancelledMessage(updated))
	}

	return updated, nil
}

// recompute refreshes the department snapshot. It outlives the caller's
// cancellation but is bounded by RecomputeTimeout. Failures are logged only.
func (s *Service) recompute(ctx context.Context, department string) *DepartmentQueueStatus {
	if s.estimator == nil {
		return nil
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RecomputeTimeout)
	defer cancel()

	status, err := s.estimator.Refresh(rctx, department)
	if err != nil {
		s.logger.Error("queue recompute failed", "department", department, "error", err)
		return nil
	}
	return status
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup("get appointment", err)
	}
	return appt, nil
}

// QueueInfo reports where a checked-in appointment stands. It returns nil
// when the appointment is not waiting.
func (s *Service) QueueInfo(ctx context.Context, appt *Appointment) (*QueueInfo, error) {
	if appt == nil || appt.Status != StatusCheckedIn || s.estimator == nil {
		return nil, nil
	}

	status, err := s.estimator.GetStatus(ctx, appt.Department)
	if errors.Is(err, ErrNotFound) {
		status = s.recompute(ctx, appt.Department)
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("load queue status: %w", err)
	}
	if status == nil {
		return nil, nil
	}

	info := &QueueInfo{
		Department: appt.Department,
		Position:   status.CheckedInCount,
		WaitTime:   status.EstimatedWait,
		AsOf:       status.LastUpdated,
	}
	if appt.EstimatedWaitTime != nil {
		info.WaitTime = *appt.EstimatedWaitTime
	}
	return info, nil
}

// ListAvailableSlots returns the provider's free grid slots on rawDate.
func (s *Service) ListAvailableSlots(ctx context.Context, providerID uuid.UUID, rawDate string) ([]TimeSlot, error) {
	date, err := ParseDate(rawDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, wrapLookup("load provider", err)
	}
	return s.ledger.ListAvailable(ctx, providerID, date)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, statuses ...Status) ([]Appointment, error) {
	if _, err := s.repo.GetPatient(ctx, patientID); err != nil {
		return nil, wrapLookup("load patient", err)
	}
	out, err := s.repo.ListByPatient(ctx, patientID, statuses)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return out, nil
}

func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID, rawDate string, statuses ...Status) ([]Appointment, error) {
	date, err := ParseDate(rawDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, wrapLookup("load provider", err)
	}
	out, err := s.repo.ListByProvider(ctx, providerID, date, statuses)
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return out, nil
}

// ProviderDay counts a provider's appointments on rawDate by status.
func (s *Service) ProviderDay(ctx context.Context, providerID uuid.UUID, rawDate string) (*ProviderDay, error) {
	appts, err := s.ListByProvider(ctx, providerID, rawDate)
	if err != nil {
		return nil, err
	}

	date, _ := ParseDate(rawDate)
	day := &ProviderDay{ProviderID: providerID, Date: date}
	for _, a := range appts {
		switch a.Status {
		case StatusScheduled:
			day.Scheduled++
		case StatusCheckedIn:
			day.Waiting++
		case StatusInProgress:
			day.InProgress++
		case StatusCompleted:
			day.Completed++
		case StatusCancelled:
			day.Cancelled++
		}
	}
	return day, nil
}

// SendReminders notifies patients of scheduled appointments on day that have
// not been reminded yet, and marks them. It returns how many were sent.
func (s *Service) SendReminders(ctx context.Context, day time.Time) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}

	due, err := s.repo.DueReminders(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		appt := &due[i]

		patient, err := s.repo.GetPatient(ctx, appt.PatientID)
		if err != nil {
			s.logger.Warn("reminder skipped: patient lookup failed", "appointment_id", appt.ID, "error", err)
			continue
		}

		nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		err = s.notifier.Notify(nctx, recipientOf(patient), reminderMessage(appt))
		cancel()
		s.metrics.ObserveNotification("reminder", metrics.Outcome(err))
		if err != nil {
			s.logger.Warn("reminder failed", "appointment_id", appt.ID, "error", err)
			continue
		}

		marked, err := s.repo.MarkReminderSent(ctx, appt.ID)
		if err != nil {
			s.logger.Error("failed to mark reminder sent", "appointment_id", appt.ID, "error", err)
			continue
		}
		if marked {
			sent++
			s.logEvent(ctx, appt.ID, EventReminderSent, map[string]any{"date": day.Format(DateLayout)})
		}
	}
	return sent, nil
}

// notifyAsync sends a message to the patient without blocking the caller.
// Delivery failures are logged and counted, never returned.
func (s *Service) notifyAsync(patientID uuid.UUID, kind string, msg notify.Message) {
	if s.notifier == nil {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.NotifyTimeout)
		defer cancel()

		patient, err := s.repo.GetPatient(ctx, patientID)
		if err == nil {
			err = s.notifier.Notify(ctx, recipientOf(patient), msg)
		}
		s.metrics.ObserveNotification(kind, metrics.Outcome(err))
		if err != nil {
			s.logger.Warn("notification failed", "kind", kind, "patient_id", patientID, "error", err)
		}
	}()
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("failed to insert event log", "event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}

func actorRole(a Actor) Role {
	if a.Role == "" {
		return RoleSystem
	}
	return a.Role
}

// wrapLookup keeps not-found errors as they are and adds context to the rest.
func wrapLookup(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
