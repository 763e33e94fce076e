package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc vide et ferme le fournisseur de traces
type ShutdownFunc func(ctx context.Context) error

// InitTracing installe un TracerProvider OTLP/gRPC global.
// Sans endpoint, le fournisseur no-op par défaut d'otel est conservé.
func InitTracing(ctx context.Context, endpoint, serviceName, runID string) (ShutdownFunc, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("erreur création exporteur OTLP: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("run.id", runID),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
