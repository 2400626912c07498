package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusCheckedIn  Status = "checked-in"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCheckedIn, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further events.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatuses parses a comma separated status filter such as "scheduled,checked-in".
func ParseStatuses(raw string) ([]Status, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []Status
	for _, part := range strings.Split(raw, ",") {
		s := Status(strings.TrimSpace(part))
		if !s.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, part)
		}
		out = append(out, s)
	}
	return out, nil
}

type Priority int16

const (
	PriorityNormal    Priority = 0
	PriorityPriority  Priority = 1
	PriorityEmergency Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityPriority:
		return "priority"
	case PriorityEmergency:
		return "emergency"
	default:
		return "normal"
	}
}

// ParsePriority accepts the names used on the wire. Empty means normal.
func ParsePriority(raw string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "normal":
		return PriorityNormal, nil
	case "priority":
		return PriorityPriority, nil
	case "emergency":
		return PriorityEmergency, nil
	}
	return PriorityNormal, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, raw)
}

type Event string

const (
	EventCheckIn    Event = "check_in"
	EventStart      Event = "start"
	EventComplete   Event = "complete"
	EventCancel     Event = "cancel"
	EventReschedule Event = "reschedule"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Actor is whoever asked for a mutation. Ownership is checked by the caller via Authorize.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: RoleSystem}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID         uuid.UUID
	Name       string
	Department string
	Email      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DefaultDepartment is used for providers without a specialization.
const DefaultDepartment = "General"

type Appointment struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	ProviderID        uuid.UUID
	Department        string
	Date              time.Time // calendar day, midnight UTC
	TimeSlot          TimeSlot
	Status            Status
	Priority          Priority
	Reason            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CheckInTime       *time.Time
	ActualStartTime   *time.Time
	ActualEndTime     *time.Time
	EstimatedWaitTime *float64 // minutes, advisory
	ReminderSent      bool
}

// DepartmentQueueStatus is the materialized queue snapshot for one department.
// Only the queue estimator writes it.
type DepartmentQueueStatus struct {
	Department      string
	CheckedInCount  int
	InProgressCount int
	AvgWaitTime     float64 // minutes
	EstimatedWait   float64 // minutes
	LastUpdated     time.Time
}

// QueueInfo is what a checked-in patient sees about their place in line.
type QueueInfo struct {
	Department string
	Position   int
	WaitTime   float64 // minutes
	AsOf       time.Time
}

// ProviderDay summarizes one provider's appointments on a day.
type ProviderDay struct {
	ProviderID uuid.UUID
	Date       time.Time
	Scheduled  int
	Waiting    int
	InProgress int
	Completed  int
	Cancelled  int
}

// SlotVolume counts appointments sharing a slot start time, across days.
type SlotVolume struct {
	Start string // HH:MM
	Count int
}

// HourlyVolume counts appointments starting in one hour of one day.
type HourlyVolume struct {
	Date  time.Time
	Hour  int
	Count int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
