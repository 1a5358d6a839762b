package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/macropower/simplerules/pkg/telemetry"
)

func TestNewProvider_NoEndpoint(t *testing.T) {
	t.Parallel()

	_, err := telemetry.NewProvider(t.Context(), "")
	require.ErrorIs(t, err, telemetry.ErrNoEndpoint)
}

func TestNewProvider_Exporter(t *testing.T) {
	t.Parallel()

	exp := tracetest.NewInMemoryExporter()

	p, err := telemetry.NewProvider(t.Context(), "", telemetry.WithExporter(exp))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(t.Context(), "pass")
	span.End()

	require.NoError(t, p.ForceFlush(t.Context()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "pass", spans[0].Name)

	require.NoError(t, p.Shutdown(t.Context()))

	var nilProvider *telemetry.Provider
	require.NoError(t, nilProvider.Shutdown(t.Context()))
}
