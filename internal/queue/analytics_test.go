package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-queue/internal/appointment"
)

func TestClassify(t *testing.T) {
	got := Classify([]appointment.SlotVolume{
		{Start: "08:00", Count: 2},
		{Start: "09:00", Count: 10},
		{Start: "10:00", Count: 7},
		{Start: "11:00", Count: 3},
	})

	want := []PeakHour{
		{Start: "08:00", Count: 2, Level: LevelLow},
		{Start: "09:00", Count: 10, Level: LevelHigh},
		{Start: "10:00", Count: 7, Level: LevelHigh},
		{Start: "11:00", Count: 3, Level: LevelMedium},
	}
	assert.Equal(t, want, got)
	assert.Empty(t, Classify(nil))
}

func TestAnalyticsPeakHoursCountsUpcomingAndWaiting(t *testing.T) {
	ctx := context.Background()
	repo := newSeededRepo(t, "Cardiology")
	repo.add(t, testToday, 9, appointment.StatusScheduled, nil, nil)
	repo.add(t, testToday, 9, appointment.StatusCheckedIn, at(0), nil)
	repo.add(t, testToday.AddDate(0, 0, 1), 9, appointment.StatusScheduled, nil, nil)
	repo.add(t, testToday, 10, appointment.StatusScheduled, nil, nil)
	repo.add(t, testToday, 11, appointment.StatusCompleted, at(0), at(5))
	repo.add(t, testToday, 12, appointment.StatusCancelled, nil, nil)

	a := NewAnalytics(repo)
	got, err := a.PeakHours(ctx, testToday, testToday.AddDate(0, 0, 6))
	require.NoError(t, err)

	assert.Equal(t, []PeakHour{
		{Start: "09:00", Count: 3, Level: LevelHigh},
		{Start: "10:00", Count: 1, Level: LevelMedium},
	}, got)
}

func TestAnalyticsHourlyVolume(t *testing.T) {
	ctx := context.Background()
	repo := newSeededRepo(t, "Cardiology")
	repo.add(t, testToday, 9, appointment.StatusCompleted, at(0), at(5))
	repo.add(t, testToday, 9, appointment.StatusScheduled, nil, nil)
	repo.add(t, testToday, 14, appointment.StatusCancelled, nil, nil)

	got, err := NewAnalytics(repo).HourlyVolume(ctx, testToday.AddDate(0, 0, -30), testToday)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].Hour)
	assert.Equal(t, 2, got[0].Count)
}
