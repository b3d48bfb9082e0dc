package tracing

import (
	"context"
	"io"
	"testing"

	"gamification-service/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestProviderExportsSpansWithServiceName(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp := NewProvider(exporter, "gamification-service")

	_, span := tp.Tracer("test").Start(ctx, "consume progress.module.completed.v1")
	span.End()
	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "consume progress.module.completed.v1", spans[0].Name)
	assert.Contains(t, spans[0].Resource.Attributes(), attribute.String("service.name", "gamification-service"))

	require.NoError(t, tp.Shutdown(ctx))
}

func TestSetupWithoutExporterIsNoop(t *testing.T) {
	shutdown, err := Setup(config.TracingConfig{}, "gamification-service", quietLogger())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(config.TracingConfig{Exporter: "zipkin"}, "gamification-service", quietLogger())
	assert.Error(t, err)
}
