package appointment

import (
	"fmt"
	"slices"
	"time"
)

// transitions lists, per event, the statuses it may fire from and where it leads.
var transitions = map[Event]struct {
	from []Status
	to   Status
}{
	EventCheckIn:    {from: []Status{StatusScheduled}, to: StatusCheckedIn},
	EventStart:      {from: []Status{StatusCheckedIn}, to: StatusInProgress},
	EventComplete:   {from: []Status{StatusInProgress}, to: StatusCompleted},
	EventCancel:     {from: []Status{StatusScheduled}, to: StatusCancelled},
	EventReschedule: {from: []Status{StatusScheduled, StatusCheckedIn}, to: StatusScheduled},
}

// Next returns the status event leads to from current.
func Next(current Status, event Event) (Status, error) {
	t, ok := transitions[event]
	if !ok {
		return "", fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, event)
	}
	if !slices.Contains(t.from, current) {
		return "", fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, event, current)
	}
	return t.to, nil
}

// CanReschedule reports whether an appointment in s may move to another slot.
func CanReschedule(s Status) bool {
	return slices.Contains(transitions[EventReschedule].from, s)
}

// reschedulable lists the statuses a reschedule may start from.
func reschedulable() []Status {
	return slices.Clone(transitions[EventReschedule].from)
}

// Apply returns a copy of appt with event applied at now, stamping the
// lifecycle timestamp the event owns. appt itself is left untouched.
func Apply(appt Appointment, event Event, now time.Time) (Appointment, error) {
	next, err := Next(appt.Status, event)
	if err != nil {
		return appt, err
	}

	out := appt
	out.Status = next
	out.UpdatedAt = now

	switch event {
	case EventCheckIn:
		out.CheckInTime = &now
	case EventStart:
		out.ActualStartTime = &now
	case EventComplete:
		out.ActualEndTime = &now
	case EventReschedule:
		out.CheckInTime = nil
		out.ActualStartTime = nil
		out.EstimatedWaitTime = nil
		out.ReminderSent = false
	}
	return out, nil
}
