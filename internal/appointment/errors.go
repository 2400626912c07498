package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSlotConflict      = errors.New("slot already booked")
	ErrDuplicateBooking  = errors.New("patient already has an appointment in this slot")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotRescheduleable = errors.New("appointment cannot be rescheduled")
	ErrUnauthorized      = errors.New("actor not allowed to act on this appointment")
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)
	ErrProviderNotFound    = fmt.Errorf("provider %w", ErrNotFound)
)

// ErrorCode maps an error to the stable code used in API responses and metric labels.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrDuplicateBooking):
		return "duplicate_booking"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotRescheduleable):
		return "not_rescheduleable"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal_error"
	}
}
