// Package tracing installs the OpenTelemetry tracer provider used by the
// database plugin and the consumer spans.
package tracing

import (
	"context"
	"fmt"
	"os"

	"gamification-service/internal/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ExporterStdout = "stdout"

// ShutdownFunc flushes buffered spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs a global tracer provider for cfg.Exporter. With no exporter
// configured the global no-op provider stays in place.
func Setup(cfg config.TracingConfig, serviceName string, log *logrus.Logger) (ShutdownFunc, error) {
	var exporter sdktrace.SpanExporter

	switch cfg.Exporter {
	case "", "none":
		log.Debug("tracing disabled")
		return noopShutdown, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout span exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", cfg.Exporter)
	}

	tp := NewProvider(exporter, serviceName)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.WithField("exporter", cfg.Exporter).Info("tracing enabled")
	return tp.Shutdown, nil
}

// NewProvider batches spans to exporter under a resource naming the service.
func NewProvider(exporter sdktrace.SpanExporter, serviceName string) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
}
