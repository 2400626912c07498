package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/internal/queue"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

func TestRunCreatesRowPerDepartment(t *testing.T) {
	ctx := context.Background()
	repo := appointment.NewMemoryRepository()
	for _, d := range []string{"Cardiology", "General", "Cardiology"} {
		repo.AddProvider(appointment.Provider{ID: uuid.New(), Name: "Dr", Department: d})
	}
	store := queue.NewMemoryStatusStore()
	est := queue.NewEstimator(repo, store, time.UTC, queue.WithLogger(logging.Discard()))

	Run(ctx, est, logging.Discard())
	Run(ctx, est, logging.Discard())

	statuses, err := est.ListStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "Cardiology", statuses[0].Department)
	assert.Zero(t, statuses[0].CheckedInCount)
}

type failingRefresher struct{}

func (failingRefresher) RefreshAll(context.Context) (int, error) {
	return 1, errors.New("store unavailable")
}

func TestRunLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	Run(context.Background(), failingRefresher{}, logging.NewWithWriter("info", &buf))
	assert.Contains(t, buf.String(), "store unavailable")
}
