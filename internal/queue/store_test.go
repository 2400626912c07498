package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-queue/internal/appointment"
)

var statusCols = []string{"department", "checked_in_count", "in_progress_count", "avg_wait_time", "estimated_wait", "last_updated"}

func TestPgStatusStoreUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPgStatusStoreWithDB(mock)
	status := appointment.DepartmentQueueStatus{
		Department: "Cardiology", CheckedInCount: 3, InProgressCount: 1,
		AvgWaitTime: 15, EstimatedWait: 45, LastUpdated: testNow,
	}

	mock.ExpectExec("INSERT INTO department_queue_status").
		WithArgs("Cardiology", int32(3), int32(1), 15.0, 45.0, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), status))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStatusStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPgStatusStoreWithDB(mock)
	updated := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM department_queue_status").WithArgs("Cardiology").
		WillReturnRows(pgxmock.NewRows(statusCols).AddRow("Cardiology", int32(2), int32(0), 12.5, 25.0, updated))
	mock.ExpectQuery("FROM department_queue_status").WithArgs("Oncology").WillReturnError(pgx.ErrNoRows)

	got, err := store.Get(context.Background(), "Cardiology")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CheckedInCount)
	assert.Equal(t, 25.0, got.EstimatedWait)
	assert.Equal(t, updated, got.LastUpdated)

	_, err = store.Get(context.Background(), "Oncology")
	assert.ErrorIs(t, err, ErrStatusNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStatusStoreList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPgStatusStoreWithDB(mock)
	mock.ExpectQuery("ORDER BY department").
		WillReturnRows(pgxmock.NewRows(statusCols).
			AddRow("Cardiology", int32(2), int32(0), 12.5, 25.0, testNow).
			AddRow("General", int32(0), int32(1), 0.0, 0.0, testNow))

	got, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "General", got[1].Department)
	assert.Equal(t, 1, got[1].InProgressCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
