package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, "langgate", tracer.config.ServiceName)

	req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
	ctx, span := tracer.StartServerSpan(req, "GET /users/:id")
	assert.NotNil(t, ctx)
	EndServerSpan(span, http.StatusOK)

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutExporter(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{Enabled: true, ServiceName: "svc", SamplingRate: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx, span := tracer.StartServerSpan(req, "GET /")

	assert.NotEmpty(t, TraceIDFromContext(ctx))
	assert.NotEmpty(t, SpanIDFromContext(ctx))
	EndServerSpan(span, http.StatusInternalServerError)
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rate     float64
		expected string
	}{
		{"always", 1.0, sdktrace.AlwaysSample().Description()},
		{"above one", 2.0, sdktrace.AlwaysSample().Description()},
		{"never", 0, sdktrace.NeverSample().Description()},
		{"ratio", 0.5, sdktrace.TraceIDRatioBased(0.5).Description()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, createSampler(tt.rate).Description())
		})
	}
}

func TestShutdown_NilTracer(t *testing.T) {
	t.Parallel()

	var tracer *Tracer
	assert.NoError(t, tracer.Shutdown(context.Background()))
}
