package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOperation_NoopWithoutEndpoint(t *testing.T) {
	t.Setenv(EndpointEnv, "")

	ctx, span := StartOperation(context.Background(), "settings", "export", "user-1")
	require.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
	EndOperation(span, errors.New("boom"))

	assert.False(t, Enabled())
	assert.NoError(t, Shutdown(context.Background()))
}

func TestSetServiceName_IgnoredAfterFirstTracer(t *testing.T) {
	t.Setenv(EndpointEnv, "")
	_ = Tracer("test")

	SetServiceName("other")
	SetVersion("9.9.9")

	mu.Lock()
	defer mu.Unlock()
	assert.NotEqual(t, "other", serviceName)
	assert.NotEqual(t, "9.9.9", version)
}
