package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Directory resolves the people an appointment refers to.
type Directory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
}

// Repository contains all DB interactions needed by the service.
//
// Insert and Reschedule enforce "at most one non-cancelled appointment per
// (provider, date, slot)" and "per (patient, date, slot)" atomically, returning
// ErrSlotConflict or ErrDuplicateBooking. When both would be violated the
// provider conflict wins.
type Repository interface {
	Directory

	Insert(ctx context.Context, appt Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CompareAndSwap writes next's status and lifecycle timestamps only if the
	// stored status still equals from. A miss returns ErrAppointmentNotFound.
	CompareAndSwap(ctx context.Context, next Appointment, from Status) (*Appointment, error)

	// Reschedule moves id to (date, slot) and resets it to scheduled, only
	// while its status is one of eligible. A miss returns ErrAppointmentNotFound.
	Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slot TimeSlot, eligible []Status, at time.Time) (*Appointment, error)

	SetEstimatedWait(ctx context.Context, id uuid.UUID, minutes float64) error

	// Slot queries
	OccupiedSlots(ctx context.Context, providerID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]TimeSlot, error)

	// Listings
	ListByPatient(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, date time.Time, statuses []Status) ([]Appointment, error)
	DepartmentDay(ctx context.Context, department string, date time.Time) ([]Appointment, error)
	Departments(ctx context.Context) ([]string, error)

	// Reminders
	DueReminders(ctx context.Context, date time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)

	// Analytics
	SlotVolume(ctx context.Context, from, to time.Time, statuses []Status) ([]SlotVolume, error)
	HourlyVolume(ctx context.Context, from, to time.Time) ([]HourlyVolume, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// hourlyStatuses are the statuses that count toward hourly history.
var hourlyStatuses = []Status{StatusScheduled, StatusCheckedIn, StatusCompleted}
