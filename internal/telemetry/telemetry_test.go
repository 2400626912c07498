package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/clinic-queue/pkg/logging"
)

func TestSetupDisabledWithoutEndpoint(t *testing.T) {
	shutdown := Setup(context.Background(), Config{ServiceName: "api-server"}, logging.Discard())
	assert.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
