package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Slot is one candidate booking unit on the provider's grid.
type Slot struct {
	ProviderID uuid.UUID
	Date       time.Time
	TimeSlot   TimeSlot
}

// WorkingHours describes the grid slots are cut from.
type WorkingHours struct {
	Start        time.Duration
	End          time.Duration
	SlotDuration time.Duration
}

// Grid returns the slots of one day in order. A trailing partial slot is dropped.
func (w WorkingHours) Grid() []TimeSlot {
	if w.SlotDuration <= 0 || w.End <= w.Start {
		return nil
	}
	var out []TimeSlot
	for start := w.Start; start+w.SlotDuration <= w.End; start += w.SlotDuration {
		out = append(out, NewTimeSlot(start, w.SlotDuration))
	}
	return out
}

// ListSlots enumerates candidate slots for every day in [from, to], inclusive.
// It does not consult bookings.
func ListSlots(providerID uuid.UUID, from, to time.Time, hours WorkingHours) []Slot {
	grid := hours.Grid()
	from = DayOf(from, time.UTC)
	to = DayOf(to, time.UTC)

	var out []Slot
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, ts := range grid {
			out = append(out, Slot{ProviderID: providerID, Date: day, TimeSlot: ts})
		}
	}
	return out
}

// Ledger answers availability questions against the stored bookings.
type Ledger struct {
	repo  Repository
	hours WorkingHours
}

func NewLedger(repo Repository, hours WorkingHours) *Ledger {
	return &Ledger{repo: repo, hours: hours}
}

// IsAvailable reports whether no non-cancelled appointment other than exclude
// holds (providerID, date, slot). The answer is advisory; Insert and Reschedule
// are authoritative.
func (l *Ledger) IsAvailable(ctx context.Context, providerID uuid.UUID, date time.Time, slot TimeSlot, exclude *uuid.UUID) (bool, error) {
	occupied, err := l.repo.OccupiedSlots(ctx, providerID, date, exclude)
	if err != nil {
		return false, err
	}
	for _, o := range occupied {
		if o == slot {
			return false, nil
		}
	}
	return true, nil
}

// ListAvailable returns the grid slots of date not held by a non-cancelled appointment.
func (l *Ledger) ListAvailable(ctx context.Context, providerID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	occupied, err := l.repo.OccupiedSlots(ctx, providerID, date, nil)
	if err != nil {
		return nil, err
	}
	taken := make(map[TimeSlot]struct{}, len(occupied))
	for _, o := range occupied {
		taken[o] = struct{}{}
	}

	out := []TimeSlot{}
	for _, s := range ListSlots(providerID, date, date, l.hours) {
		if _, ok := taken[s.TimeSlot]; !ok {
			out = append(out, s.TimeSlot)
		}
	}
	return out, nil
}
