package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledIsNoOp(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false}, "test")
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_EnabledRequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true}, "test")
	assert.Error(t, err)
}

func TestNew_RejectsBadSampleRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.5} {
		_, err := New(context.Background(), Config{
			Enabled:    true,
			Endpoint:   "localhost:4317",
			SampleRate: rate,
		}, "test")
		assert.Error(t, err, "rate %f", rate)
	}
}

func TestShutdown_NilReceiverIsSafe(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
