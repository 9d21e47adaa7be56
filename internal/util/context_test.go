package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, RouteFromContext(ctx))
	assert.Empty(t, ClientIPFromContext(ctx))
	assert.True(t, StartTimeFromContext(ctx).IsZero())
	assert.Zero(t, ElapsedTime(ctx))

	start := time.Now().Add(-time.Second)
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithRoute(ctx, "/users/:id")
	ctx = ContextWithClientIP(ctx, "1.1.1.1")
	ctx = ContextWithStartTime(ctx, start)

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "/users/:id", RouteFromContext(ctx))
	assert.Equal(t, "1.1.1.1", ClientIPFromContext(ctx))
	assert.Equal(t, start, StartTimeFromContext(ctx))
	assert.GreaterOrEqual(t, ElapsedTime(ctx), time.Second)
}
