package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/queue"
)

type CreateAppointmentRequest struct {
	PatientID  string `json:"patient_id"`
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	TimeSlot   string `json:"time_slot"`
	Reason     string `json:"reason"`
	Priority   string `json:"priority"`
}

type RescheduleRequest struct {
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

type TransitionRequest struct {
	Event string `json:"event"`
}

type QueueInfoResponse struct {
	Position int       `json:"position"`
	WaitTime float64   `json:"wait_time"`
	AsOf     time.Time `json:"as_of"`
}

type AppointmentResponse struct {
	ID                uuid.UUID          `json:"id"`
	PatientID         uuid.UUID          `json:"patient_id"`
	ProviderID        uuid.UUID          `json:"provider_id"`
	Department        string             `json:"department"`
	Date              string             `json:"date"`
	TimeSlot          string             `json:"time_slot"`
	Status            string             `json:"status"`
	Priority          string             `json:"priority"`
	Reason            string             `json:"reason,omitempty"`
	CheckInTime       *time.Time         `json:"check_in_time,omitempty"`
	ActualStartTime   *time.Time         `json:"actual_start_time,omitempty"`
	ActualEndTime     *time.Time         `json:"actual_end_time,omitempty"`
	EstimatedWaitTime *float64           `json:"estimated_wait_time,omitempty"`
	ReminderSent      bool               `json:"reminder_sent"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	Queue             *QueueInfoResponse `json:"queue,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                a.ID,
		PatientID:         a.PatientID,
		ProviderID:        a.ProviderID,
		Department:        a.Department,
		Date:              a.Date.Format(appointment.DateLayout),
		TimeSlot:          a.TimeSlot.String(),
		Status:            string(a.Status),
		Priority:          a.Priority.String(),
		Reason:            a.Reason,
		CheckInTime:       a.CheckInTime,
		ActualStartTime:   a.ActualStartTime,
		ActualEndTime:     a.ActualEndTime,
		EstimatedWaitTime: a.EstimatedWaitTime,
		ReminderSent:      a.ReminderSent,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

type SlotsResponse struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Date       string    `json:"date"`
	Slots      []string  `json:"slots"`
}

type DepartmentStatusResponse struct {
	Department      string    `json:"department"`
	CheckedInCount  int       `json:"checked_in_count"`
	InProgressCount int       `json:"in_progress_count"`
	AvgWaitTime     float64   `json:"avg_wait_time"`
	EstimatedWait   float64   `json:"estimated_wait"`
	LastUpdated     time.Time `json:"last_updated"`
}

func toDepartmentStatus(s appointment.DepartmentQueueStatus) DepartmentStatusResponse {
	return DepartmentStatusResponse{
		Department:      s.Department,
		CheckedInCount:  s.CheckedInCount,
		InProgressCount: s.InProgressCount,
		AvgWaitTime:     s.AvgWaitTime,
		EstimatedWait:   s.EstimatedWait,
		LastUpdated:     s.LastUpdated,
	}
}

type ProviderDayResponse struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Date       string    `json:"date"`
	Scheduled  int       `json:"scheduled"`
	Waiting    int       `json:"waiting"`
	InProgress int       `json:"in_progress"`
	Completed  int       `json:"completed"`
	Cancelled  int       `json:"cancelled"`
}

type PeakHourResponse struct {
	Start string      `json:"start"`
	Count int         `json:"count"`
	Level queue.Level `json:"level"`
}

type HourlyVolumeResponse struct {
	Date  string `json:"date"`
	Hour  int    `json:"hour"`
	Count int    `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
