package appointment

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for appointment dates.
const DateLayout = "2006-01-02"

const clockLayout = "15:04"

// ParseDate parses YYYY-MM-DD into midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, raw)
	}
	return d, nil
}

// DayOf returns the calendar day of t in loc, as midnight UTC.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TimeSlot is a bookable interval within a day, stored as offsets from midnight.
type TimeSlot struct {
	Start time.Duration
	End   time.Duration
}

// NewTimeSlot builds the slot starting at start and lasting d.
func NewTimeSlot(start, d time.Duration) TimeSlot {
	return TimeSlot{Start: start, End: start + d}
}

// ParseTimeSlot parses "HH:MM-HH:MM".
func ParseTimeSlot(raw string) (TimeSlot, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return TimeSlot{}, fmt.Errorf("%w: time slot %q must be HH:MM-HH:MM", ErrInvalidInput, raw)
	}
	s, err := parseClock(start)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("%w: time slot %q: %v", ErrInvalidInput, raw, err)
	}
	e, err := parseClock(end)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("%w: time slot %q: %v", ErrInvalidInput, raw, err)
	}
	if e <= s {
		return TimeSlot{}, fmt.Errorf("%w: time slot %q ends before it starts", ErrInvalidInput, raw)
	}
	return TimeSlot{Start: s, End: e}, nil
}

func parseClock(raw string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("bad clock %q", raw)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func formatClock(d time.Duration) string {
	mins := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

func (t TimeSlot) String() string {
	if t.IsZero() {
		return ""
	}
	return formatClock(t.Start) + "-" + formatClock(t.End)
}

// StartClock returns the HH:MM start of the slot.
func (t TimeSlot) StartClock() string {
	return formatClock(t.Start)
}

func (t TimeSlot) IsZero() bool {
	return t.Start == 0 && t.End == 0
}

func (t TimeSlot) Duration() time.Duration {
	return t.End - t.Start
}

// StartOn returns the wall clock instant the slot begins on day in loc.
func (t TimeSlot) StartOn(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(t.Start)
}

func (t TimeSlot) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeSlot) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeSlot(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
