package appointment

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository. It enforces the same
// uniqueness rules as the Postgres indexes under a single mutex, so it is
// safe for concurrent use. Used by tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	providers    map[uuid.UUID]Provider
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		providers:    make(map[uuid.UUID]Provider),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
}

// Events returns a copy of the audit log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

func (r *MemoryRepository) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

// conflict mirrors the two partial unique indexes. Caller holds mu.
func (r *MemoryRepository) conflict(self uuid.UUID, patientID, providerID uuid.UUID, date time.Time, slot TimeSlot) error {
	duplicate := false
	for _, a := range r.appointments {
		if a.ID == self || a.Status == StatusCancelled || !a.Date.Equal(date) || a.TimeSlot != slot {
			continue
		}
		if a.ProviderID == providerID {
			return ErrSlotConflict
		}
		if a.PatientID == patientID {
			duplicate = true
		}
	}
	if duplicate {
		return ErrDuplicateBooking
	}
	return nil
}

func (r *MemoryRepository) Insert(_ context.Context, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[appt.PatientID]; !ok {
		return nil, ErrPatientNotFound
	}
	if _, ok := r.providers[appt.ProviderID]; !ok {
		return nil, ErrProviderNotFound
	}
	if err := r.conflict(appt.ID, appt.PatientID, appt.ProviderID, appt.Date, appt.TimeSlot); err != nil {
		return nil, err
	}

	stored := appt
	r.appointments[appt.ID] = &stored
	out := stored
	return &out, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) CompareAndSwap(_ context.Context, next Appointment, from Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[next.ID]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = next.Status
	a.CheckInTime = next.CheckInTime
	a.ActualStartTime = next.ActualStartTime
	a.ActualEndTime = next.ActualEndTime
	a.EstimatedWaitTime = next.EstimatedWaitTime
	a.UpdatedAt = next.UpdatedAt

	out := *a
	return &out, nil
}

func (r *MemoryRepository) Reschedule(_ context.Context, id uuid.UUID, date time.Time, slot TimeSlot, eligible []Status, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || !slices.Contains(eligible, a.Status) {
		return nil, ErrAppointmentNotFound
	}
	if err := r.conflict(a.ID, a.PatientID, a.ProviderID, date, slot); err != nil {
		return nil, err
	}

	a.Date = date
	a.TimeSlot = slot
	a.Status = StatusScheduled
	a.CheckInTime = nil
	a.ActualStartTime = nil
	a.EstimatedWaitTime = nil
	a.ReminderSent = false
	a.UpdatedAt = at

	out := *a
	return &out, nil
}

func (r *MemoryRepository) SetEstimatedWait(_ context.Context, id uuid.UUID, minutes float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.EstimatedWaitTime = &minutes
	return nil
}

func (r *MemoryRepository) OccupiedSlots(_ context.Context, providerID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]TimeSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []TimeSlot
	for _, a := range r.appointments {
		if a.ProviderID != providerID || !a.Date.Equal(date) || a.Status == StatusCancelled {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		out = append(out, a.TimeSlot)
	}
	slices.SortFunc(out, func(x, y TimeSlot) int { return cmp.Compare(x.Start, y.Start) })
	return out, nil
}

// filter returns sorted copies of the appointments keep accepts. Caller holds mu.
func (r *MemoryRepository) filter(keep func(*Appointment) bool) []Appointment {
	var out []Appointment
	for _, a := range r.appointments {
		if keep(a) {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(x, y Appointment) int {
		return cmp.Or(
			x.Date.Compare(y.Date),
			cmp.Compare(x.TimeSlot.Start, y.TimeSlot.Start),
			x.CreatedAt.Compare(y.CreatedAt),
		)
	})
	return out
}

func statusIn(s Status, statuses []Status) bool {
	return len(statuses) == 0 || slices.Contains(statuses, s)
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID, statuses []Status) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(a *Appointment) bool {
		return a.PatientID == patientID && statusIn(a.Status, statuses)
	}), nil
}

func (r *MemoryRepository) ListByProvider(_ context.Context, providerID uuid.UUID, date time.Time, statuses []Status) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(a *Appointment) bool {
		return a.ProviderID == providerID && a.Date.Equal(date) && statusIn(a.Status, statuses)
	}), nil
}

func (r *MemoryRepository) DepartmentDay(_ context.Context, department string, date time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(a *Appointment) bool {
		return a.Department == department && a.Date.Equal(date)
	}), nil
}

func (r *MemoryRepository) Departments(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, p := range r.providers {
		if !slices.Contains(out, p.Department) {
			out = append(out, p.Department)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (r *MemoryRepository) DueReminders(_ context.Context, date time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter(func(a *Appointment) bool {
		return a.Status == StatusScheduled && !a.ReminderSent && a.Date.Equal(date)
	}), nil
}

func (r *MemoryRepository) MarkReminderSent(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return false, ErrAppointmentNotFound
	}
	if a.ReminderSent {
		return false, nil
	}
	a.ReminderSent = true
	return true, nil
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

func (r *MemoryRepository) SlotVolume(_ context.Context, from, to time.Time, statuses []Status) ([]SlotVolume, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[string]int{}
	for _, a := range r.appointments {
		if inRange(a.Date, from, to) && statusIn(a.Status, statuses) {
			counts[a.TimeSlot.StartClock()]++
		}
	}

	out := make([]SlotVolume, 0, len(counts))
	for start, n := range counts {
		out = append(out, SlotVolume{Start: start, Count: n})
	}
	slices.SortFunc(out, func(x, y SlotVolume) int { return cmp.Compare(x.Start, y.Start) })
	return out, nil
}

func (r *MemoryRepository) HourlyVolume(_ context.Context, from, to time.Time) ([]HourlyVolume, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type key struct {
		date time.Time
		hour int
	}
	counts := map[key]int{}
	for _, a := range r.appointments {
		if !inRange(a.Date, from, to) || !statusIn(a.Status, hourlyStatuses) {
			continue
		}
		counts[key{a.Date, int(a.TimeSlot.Start / time.Hour)}]++
	}

	out := make([]HourlyVolume, 0, len(counts))
	for k, n := range counts {
		out = append(out, HourlyVolume{Date: k.date, Hour: k.hour, Count: n})
	}
	slices.SortFunc(out, func(x, y HourlyVolume) int {
		return cmp.Or(x.Date.Compare(y.Date), cmp.Compare(x.Hour, y.Hour))
	})
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEventID++
	ev.ID = r.nextEventID
	r.events = append(r.events, ev)
	return nil
}
