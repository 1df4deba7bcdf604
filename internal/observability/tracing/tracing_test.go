package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupConsoleExportsSpansOnShutdown(t *testing.T) {
	var out bytes.Buffer
	p, err := Setup("api", Config{Exporter: ExporterConsole, SampleRatio: 1}, &out)
	require.NoError(t, err)

	_, span := p.Tracer("test").Start(context.Background(), "pipeline.run")
	assert.True(t, span.IsRecording())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, out.String(), `"pipeline.run"`)
	assert.Contains(t, out.String(), `"service.name"`)
}

func TestSetupZeroRatioDropsSpans(t *testing.T) {
	var out bytes.Buffer
	p, err := Setup("worker", Config{Exporter: ExporterConsole, SampleRatio: 0}, &out)
	require.NoError(t, err)

	_, span := p.Tracer("test").Start(context.Background(), "pipeline.run")
	assert.False(t, span.IsRecording())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.NotContains(t, out.String(), "pipeline.run")
}

func TestSetupNoneIsNoop(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone} {
		p, err := Setup("api", Config{Exporter: exporter, SampleRatio: 1}, nil)
		require.NoError(t, err)

		_, span := p.Tracer("test").Start(context.Background(), "pipeline.run")
		assert.False(t, span.IsRecording())
		span.End()
		assert.NoError(t, p.Shutdown(context.Background()))
	}
}

func TestSetupJaegerBuildsCollectorExporter(t *testing.T) {
	p, err := Setup("api", Config{Exporter: ExporterJaeger, JaegerEndpoint: "http://127.0.0.1:1/api/traces", SampleRatio: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	assert.NotNil(t, p.TracerProvider)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Exporter: "zipkin"}.Validate())
	assert.Error(t, Config{Exporter: ExporterJaeger}.Validate())
	assert.Error(t, Config{Exporter: ExporterConsole, SampleRatio: 1.5}.Validate())
	assert.NoError(t, Config{Exporter: "Console", SampleRatio: 0.25}.Validate())

	var nilProvider *Provider
	assert.NoError(t, nilProvider.Shutdown(context.Background()))
}
