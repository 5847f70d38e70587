// Package observability provides OpenTelemetry tracing, metrics, and audit
// logging for the indexing pipeline.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the vecsync tracer.
	TracerName = "github.com/efebarandurmaz/vecsync"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "vecsync")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "vecsync",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(), // Use TLS in production
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown gracefully shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// SpanKind constants for pipeline operations.
const (
	SpanKindUpsert = "upsert"
	SpanKindRemove = "remove"
	SpanKindSearch = "search"
	SpanKindBatch  = "batch"
	SpanKindEmbed  = "embed"
)

// StartUpsertSpan starts a span for a single-entity upsert.
func StartUpsertSpan(ctx context.Context, entityType, entityID string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "pipeline.upsert",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vecsync.span.kind", SpanKindUpsert),
			attribute.String("vecsync.entity.type", entityType),
			attribute.String("vecsync.entity.id", entityID),
		),
	)
}

// StartRemoveSpan starts a span for an entity removal.
func StartRemoveSpan(ctx context.Context, entityType, entityID string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "pipeline.remove",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vecsync.span.kind", SpanKindRemove),
			attribute.String("vecsync.entity.type", entityType),
			attribute.String("vecsync.entity.id", entityID),
		),
	)
}

// StartSearchSpan starts a span for a similarity search.
func StartSearchSpan(ctx context.Context, entityType string, limit int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "pipeline.search",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vecsync.span.kind", SpanKindSearch),
			attribute.String("vecsync.entity.type", entityType),
			attribute.Int("vecsync.search.limit", limit),
		),
	)
}

// RecordSearchResults records search outcome metrics on a span.
func RecordSearchResults(span trace.Span, hits, enriched int, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("vecsync.search.hits", hits),
		attribute.Int("vecsync.search.enriched", enriched),
		attribute.Int64("vecsync.search.duration_ms", duration.Milliseconds()),
	)
}

// StartBatchSpan starts a span for a batch upsert.
func StartBatchSpan(ctx context.Context, entityType string, itemCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "pipeline.batch_upsert",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("vecsync.span.kind", SpanKindBatch),
			attribute.String("vecsync.entity.type", entityType),
			attribute.Int("vecsync.batch.items", itemCount),
		),
	)
}

// RecordBatchResults records batch outcome metrics on a span.
func RecordBatchResults(span trace.Span, stored, failed, skipped int) {
	span.SetAttributes(
		attribute.Int("vecsync.batch.stored", stored),
		attribute.Int("vecsync.batch.failed", failed),
		attribute.Int("vecsync.batch.skipped", skipped),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d items failed", failed))
	}
}

// StartEmbedSpan starts a span for an embedding provider call.
func StartEmbedSpan(ctx context.Context, provider string, textCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "embed.embed",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("vecsync.span.kind", SpanKindEmbed),
			attribute.String("embed.provider", provider),
			attribute.Int("embed.text_count", textCount),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
