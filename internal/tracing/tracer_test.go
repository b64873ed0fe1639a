package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false, Exporter: "otlp"})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	require.NotNil(t, p.Tracer())

	_, span := p.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_NoExporterStillRecords(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background()) //nolint:errcheck

	assert.True(t, p.Enabled())
	_, span := p.Tracer().Start(context.Background(), "pipeline.run")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zipkin")
}
