package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "patient_id", "provider_id", "department", "date", "time_slot", "status", "priority", "reason",
	"created_at", "updated_at", "check_in_time", "actual_start_time", "actual_end_time", "estimated_wait_time", "reminder_sent",
}

func addAppointmentRow(rows *pgxmock.Rows, a Appointment) *pgxmock.Rows {
	return rows.AddRow(
		a.ID, a.PatientID, a.ProviderID, a.Department, a.Date, a.TimeSlot.String(), a.Status, int16(a.Priority), a.Reason,
		a.CreatedAt, a.UpdatedAt, a.CheckInTime, a.ActualStartTime, a.ActualEndTime, a.EstimatedWaitTime, a.ReminderSent,
	)
}

func sampleAppointment() Appointment {
	now := time.Date(2024, 1, 10, 7, 0, 0, 0, time.UTC)
	return Appointment{
		ID:         uuid.New(),
		PatientID:  uuid.New(),
		ProviderID: uuid.New(),
		Department: "Cardiology",
		Date:       time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		TimeSlot:   NewTimeSlot(10*time.Hour, 30*time.Minute),
		Status:     StatusScheduled,
		Priority:   PriorityEmergency,
		Reason:     "follow-up",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, newPgRepositoryWithDB(mock)
}

func TestPgRepositoryInsert(t *testing.T) {
	mock, repo := newMockRepo(t)
	appt := sampleAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(appt.ID, appt.PatientID, appt.ProviderID, "Cardiology", appt.Date, "10:00-10:30", "scheduled", int16(2), "follow-up", appt.CreatedAt, appt.UpdatedAt).
		WillReturnRows(addAppointmentRow(pgxmock.NewRows(appointmentCols), appt))

	created, err := repo.Insert(context.Background(), appt)
	require.NoError(t, err)
	assert.Equal(t, appt, *created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryInsertMapsUniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{providerSlotKey, ErrSlotConflict},
		{patientSlotKey, ErrDuplicateBooking},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			mock, repo := newMockRepo(t)
			mock.ExpectQuery("INSERT INTO appointments").
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			_, err := repo.Insert(context.Background(), sampleAppointment())
			assert.ErrorIs(t, err, tt.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPgRepositoryGetByID(t *testing.T) {
	mock, repo := newMockRepo(t)
	appt := sampleAppointment()
	checkIn := appt.CreatedAt.Add(2 * time.Hour)
	wait := 30.0
	appt.Status = StatusCheckedIn
	appt.CheckInTime = &checkIn
	appt.EstimatedWaitTime = &wait

	mock.ExpectQuery(`FROM appointments WHERE id = \$1`).
		WithArgs(appt.ID).
		WillReturnRows(addAppointmentRow(pgxmock.NewRows(appointmentCols), appt))

	got, err := repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, got.Status)
	assert.Equal(t, PriorityEmergency, got.Priority)
	assert.Equal(t, "10:00-10:30", got.TimeSlot.String())
	require.NotNil(t, got.EstimatedWaitTime)
	assert.Equal(t, 30.0, *got.EstimatedWaitTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryGetByIDNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM appointments").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPgRepositoryCompareAndSwapMiss(t *testing.T) {
	mock, repo := newMockRepo(t)
	next := sampleAppointment()
	next.Status = StatusCheckedIn

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(next.ID, "checked-in", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "scheduled").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.CompareAndSwap(context.Background(), next, StatusScheduled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryRescheduleConflict(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()
	day := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, day, "11:00-11:30", pgxmock.AnyArg(), []string{"scheduled", "checked-in"}).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: providerSlotKey})

	_, err := repo.Reschedule(context.Background(), id, day, NewTimeSlot(11*time.Hour, 30*time.Minute), reschedulable(), time.Now())
	assert.ErrorIs(t, err, ErrSlotConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryOccupiedSlots(t *testing.T) {
	mock, repo := newMockRepo(t)
	provider := uuid.New()
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT time_slot").
		WithArgs(provider, day, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"time_slot"}).AddRow("09:00-09:30").AddRow("10:00-10:30"))

	slots, err := repo.OccupiedSlots(context.Background(), provider, day, nil)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, NewTimeSlot(9*time.Hour, 30*time.Minute), slots[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryMarkReminderSent(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments SET reminder_sent").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments SET reminder_sent").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.MarkReminderSent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkReminderSent(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositorySetEstimatedWaitMissing(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments SET estimated_wait_time").WithArgs(id, 45.0).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetEstimatedWait(context.Background(), id, 45)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgRepositorySlotVolume(t *testing.T) {
	mock, repo := newMockRepo(t)
	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)

	mock.ExpectQuery("split_part").
		WithArgs(from, to, []string{"scheduled", "checked-in"}).
		WillReturnRows(pgxmock.NewRows([]string{"start", "count"}).AddRow("09:00", int64(4)).AddRow("10:00", int64(9)))

	got, err := repo.SlotVolume(context.Background(), from, to, []Status{StatusScheduled, StatusCheckedIn})
	require.NoError(t, err)
	assert.Equal(t, []SlotVolume{{Start: "09:00", Count: 4}, {Start: "10:00", Count: 9}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryHourlyVolume(t *testing.T) {
	mock, repo := newMockRepo(t)
	to := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -29)

	mock.ExpectQuery("GROUP BY date, hour").
		WithArgs(from, to, statusArgs(hourlyStatuses)).
		WillReturnRows(pgxmock.NewRows([]string{"date", "hour", "count"}).
			AddRow(to, int32(9), int64(3)).
			AddRow(to, int32(14), int64(1)))

	got, err := repo.HourlyVolume(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, []HourlyVolume{{Date: to, Hour: 9, Count: 3}, {Date: to, Hour: 14, Count: 1}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryDirectoryLookups(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()
	now := time.Now().UTC()
	email := "grey@example.com"

	mock.ExpectQuery("FROM providers").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "department", "email", "created_at", "updated_at"}).
			AddRow(id, "Dr. Grey", "Cardiology", &email, now, now))
	mock.ExpectQuery("FROM patients").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	provider, err := repo.GetProvider(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", provider.Department)
	require.NotNil(t, provider.Email)
	assert.Equal(t, email, *provider.Email)

	_, err = repo.GetPatient(context.Background(), id)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryInsertEvent(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()
	ev := EventLog{EventType: EventAppointmentCreated, AppointmentID: &id, Payload: []byte(`{}`), CreatedAt: time.Now()}

	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(EventAppointmentCreated, &id, []byte(`{}`), ev.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.InsertEvent(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}
