package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-queue/internal/db"
)

// Unique index names from migrations/0001_init.up.sql.
const (
	providerSlotKey = "appointments_provider_slot_active_key"
	patientSlotKey  = "appointments_patient_slot_active_key"
)

const appointmentColumns = `id, patient_id, provider_id, department, date, time_slot, status, priority, reason,
		created_at, updated_at, check_in_time, actual_start_time, actual_end_time, estimated_wait_time, reminder_sent`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return newPgRepositoryWithDB(pool)
}

func newPgRepositoryWithDB(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Department, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slot string
	var priority int16

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.Department,
		&a.Date,
		&slot,
		&a.Status,
		&priority,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CheckInTime,
		&a.ActualStartTime,
		&a.ActualEndTime,
		&a.EstimatedWaitTime,
		&a.ReminderSent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	ts, err := ParseTimeSlot(slot)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: stored slot: %w", a.ID, err)
	}
	a.TimeSlot = ts
	a.Priority = Priority(priority)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// mapWriteError turns unique index violations into booking errors.
func mapWriteError(err error) error {
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case patientSlotKey:
		return ErrDuplicateBooking
	case providerSlotKey:
		return ErrSlotConflict
	}
	return fmt.Errorf("%w: %s", ErrSlotConflict, constraint)
}

func statusArgs(statuses []Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// Directory

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, department, email, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

// Appointments

func (r *PgRepository) Insert(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, department, date, time_slot, status, priority, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+appointmentColumns,
		appt.ID,
		appt.PatientID,
		appt.ProviderID,
		appt.Department,
		appt.Date,
		appt.TimeSlot.String(),
		string(appt.Status),
		int16(appt.Priority),
		appt.Reason,
		appt.CreatedAt,
		appt.UpdatedAt,
	)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CompareAndSwap(ctx context.Context, next Appointment, from Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    check_in_time = $3,
		    actual_start_time = $4,
		    actual_end_time = $5,
		    estimated_wait_time = $6,
		    updated_at = $7
		WHERE id = $1 AND status = $8
		RETURNING `+appointmentColumns,
		next.ID,
		string(next.Status),
		next.CheckInTime,
		next.ActualStartTime,
		next.ActualEndTime,
		next.EstimatedWaitTime,
		next.UpdatedAt,
		string(from),
	)
	return scanAppointment(row)
}

func (r *PgRepository) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slot TimeSlot, eligible []Status, at time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    time_slot = $3,
		    status = 'scheduled',
		    check_in_time = NULL,
		    actual_start_time = NULL,
		    estimated_wait_time = NULL,
		    reminder_sent = false,
		    updated_at = $4
		WHERE id = $1 AND status = ANY($5)
		RETURNING `+appointmentColumns,
		id, date, slot.String(), at, statusArgs(eligible),
	)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) SetEstimatedWait(ctx context.Context, id uuid.UUID, minutes float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET estimated_wait_time = $2 WHERE id = $1
	`, id, minutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) OccupiedSlots(ctx context.Context, providerID uuid.UUID, date time.Time, exclude *uuid.UUID) ([]TimeSlot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE provider_id = $1
		  AND date = $2
		  AND status <> 'cancelled'
		  AND ($3::uuid IS NULL OR id <> $3)
		ORDER BY time_slot
	`, providerID, date, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeSlot
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		ts, err := ParseTimeSlot(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY date, time_slot, created_at
	`, patientID, statusArgs(statuses))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, date time.Time, statuses []Status) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND date = $2
		  AND (cardinality($3::text[]) = 0 OR status = ANY($3))
		ORDER BY time_slot, created_at
	`, providerID, date, statusArgs(statuses))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) DepartmentDay(ctx context.Context, department string, date time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE department = $1 AND date = $2
		ORDER BY time_slot, created_at
	`, department, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) Departments(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT department FROM providers ORDER BY department`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Reminders

func (r *PgRepository) DueReminders(ctx context.Context, date time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE date = $1 AND status = 'scheduled' AND reminder_sent = false
		ORDER BY time_slot, created_at
	`, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET reminder_sent = true WHERE id = $1 AND reminder_sent = false
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Analytics

func (r *PgRepository) SlotVolume(ctx context.Context, from, to time.Time, statuses []Status) ([]SlotVolume, error) {
	rows, err := r.db.Query(ctx, `
		SELECT split_part(time_slot, '-', 1) AS start, COUNT(*)
		FROM appointments
		WHERE date BETWEEN $1 AND $2
		  AND status = ANY($3)
		GROUP BY start
		ORDER BY start
	`, from, to, statusArgs(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SlotVolume
	for rows.Next() {
		var v SlotVolume
		var n int64
		if err := rows.Scan(&v.Start, &n); err != nil {
			return nil, err
		}
		v.Count = int(n)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *PgRepository) HourlyVolume(ctx context.Context, from, to time.Time) ([]HourlyVolume, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date, CAST(split_part(time_slot, ':', 1) AS INTEGER) AS hour, COUNT(*)
		FROM appointments
		WHERE date BETWEEN $1 AND $2
		  AND status = ANY($3)
		GROUP BY date, hour
		ORDER BY date, hour
	`, from, to, statusArgs(hourlyStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HourlyVolume
	for rows.Next() {
		var v HourlyVolume
		var hour int32
		var n int64
		if err := rows.Scan(&v.Date, &hour, &n); err != nil {
			return nil, err
		}
		v.Hour = int(hour)
		v.Count = int(n)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	return err
}
