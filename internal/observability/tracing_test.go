package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

// Tracing tests swap the global provider, so they do not run in parallel.

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_Stdout(t *testing.T) {
	var buf bytes.Buffer

	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "uwb-test",
		Exporter:    ExporterStdout,
		SampleRatio: 1,
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "StartReplay")
	span.End()

	ShutdownWithTimeout(context.Background(), shutdown)
	require.Contains(t, buf.String(), "StartReplay")

	_, err = InitTracing(context.Background(), TracingConfig{})
	require.NoError(t, err)
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported tracing exporter")
}

func TestShutdownWithTimeout_Nil(t *testing.T) {
	require.NotPanics(t, func() { ShutdownWithTimeout(context.Background(), nil) })
}
