package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_StdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{Stdout: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(ctx, "index.catch_up")
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), `"Name": "index.catch_up"`)
	assert.Contains(t, buf.String(), "chessdb")
}

func TestInit_WithoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	shutdown, err := Init(ctx, Config{ServiceName: "chessdb-test"})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(ctx, "noop")
	assert.True(t, span.SpanContext().IsValid(), "spans are still recorded")
	span.End()

	assert.NoError(t, shutdown(ctx))
}
