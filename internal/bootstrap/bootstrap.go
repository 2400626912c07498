package bootstrap

import (
	"context"

	"github.com/hackgods/clinic-queue/pkg/logging"
)

// Refresher recomputes every department's queue snapshot.
type Refresher interface {
	RefreshAll(ctx context.Context) (int, error)
}

// Run makes sure every department with providers has a queue status row
// before the API starts serving. It is safe to run on every start. Failures
// are logged; a stale or missing snapshot is healed by the next recompute.
func Run(ctx context.Context, refresher Refresher, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Default()
	}

	n, err := refresher.RefreshAll(ctx)
	if err != nil {
		logger.Warn("bootstrap: some department snapshots failed", "refreshed", n, "error", err)
		return
	}
	logger.Info("bootstrap: department snapshots ready", "departments", n)
}
