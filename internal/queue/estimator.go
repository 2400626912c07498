package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/observability/metrics"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

// ErrStatusNotFound is returned for departments that were never computed.
var ErrStatusNotFound = fmt.Errorf("department queue status %w", appointment.ErrNotFound)

// Source is the appointment data a recompute reads.
type Source interface {
	DepartmentDay(ctx context.Context, department string, date time.Time) ([]appointment.Appointment, error)
	Departments(ctx context.Context) ([]string, error)
}

// Compute derives a department snapshot from the day's appointments.
//
// The average wait is taken over completed visits with both check-in and
// start times. The estimate is that average times the number still waiting.
func Compute(department string, rows []appointment.Appointment, now time.Time) appointment.DepartmentQueueStatus {
	status := appointment.DepartmentQueueStatus{Department: department, LastUpdated: now}

	var total float64
	var samples int
	for _, a := range rows {
		switch a.Status {
		case appointment.StatusCheckedIn:
			status.CheckedInCount++
		case appointment.StatusInProgress:
			status.InProgressCount++
		case appointment.StatusCompleted:
			if a.CheckInTime != nil && a.ActualStartTime != nil {
				total += a.ActualStartTime.Sub(*a.CheckInTime).Minutes()
				samples++
			}
		}
	}

	if samples > 0 {
		status.AvgWaitTime = total / float64(samples)
	}
	status.EstimatedWait = status.AvgWaitTime * float64(status.CheckedInCount)
	return status
}

// Estimator keeps department snapshots in the store current. Concurrent
// refreshes of one department are allowed; the last write wins.
type Estimator struct {
	source    Source
	store     StatusStore
	publisher Publisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Estimator)

func WithPublisher(p Publisher) Option {
	return func(e *Estimator) { e.publisher = p }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(e *Estimator) { e.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

// NewEstimator builds an estimator whose "today" is taken in loc.
func NewEstimator(source Source, store StatusStore, loc *time.Location, opts ...Option) *Estimator {
	if loc == nil {
		loc = time.UTC
	}
	e := &Estimator{
		source: source,
		store:  store,
		logger: logging.Default(),
		loc:    loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refresh recomputes and stores the department's snapshot from today's rows,
// then publishes it. A publish failure is logged and does not fail the refresh.
func (e *Estimator) Refresh(ctx context.Context, department string) (*appointment.DepartmentQueueStatus, error) {
	start := time.Now()
	status, err := e.refresh(ctx, department)
	e.metrics.ObserveRecompute(metrics.Outcome(err), time.Since(start).Seconds())
	return status, err
}

func (e *Estimator) refresh(ctx context.Context, department string) (*appointment.DepartmentQueueStatus, error) {
	now := e.now()
	rows, err := e.source.DepartmentDay(ctx, department, appointment.DayOf(now, e.loc))
	if err != nil {
		return nil, fmt.Errorf("load %s appointments: %w", department, err)
	}

	status := Compute(department, rows, now)
	if err := e.store.Upsert(ctx, status); err != nil {
		return nil, fmt.Errorf("store %s queue status: %w", department, err)
	}
	e.metrics.SetCheckedIn(department, status.CheckedInCount)

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, status); err != nil {
			e.logger.Warn("queue status publish failed", "department", department, "error", err)
		}
	}
	return &status, nil
}

// RefreshAll recomputes every department that has providers. It keeps going
// past failures and returns them joined.
func (e *Estimator) RefreshAll(ctx context.Context) (int, error) {
	departments, err := e.source.Departments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list departments: %w", err)
	}

	var errs []error
	refreshed := 0
	for _, d := range departments {
		if _, err := e.Refresh(ctx, d); err != nil {
			errs = append(errs, err)
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}

func (e *Estimator) GetStatus(ctx context.Context, department string) (*appointment.DepartmentQueueStatus, error) {
	return e.store.Get(ctx, department)
}

func (e *Estimator) ListStatuses(ctx context.Context) ([]appointment.DepartmentQueueStatus, error) {
	return e.store.List(ctx)
}
