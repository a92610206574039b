// Package tracing owns the process-wide OpenTelemetry tracer provider.
//
// Spans are exported over OTLP/HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is set
// (for example http://collector:4318). Otherwise every tracer is a no-op and
// the helpers below cost nothing.
package tracing

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

var (
	mu          sync.Mutex
	serviceName = "mybudget"
	version     = "dev"
	provider    trace.TracerProvider
	sdkProvider *sdktrace.TracerProvider
)

// SetServiceName overrides the reported service name. Call it before the
// first tracer is handed out; later calls are ignored.
func SetServiceName(name string) {
	mu.Lock()
	defer mu.Unlock()
	if name != "" && provider == nil {
		serviceName = name
	}
}

// SetVersion records the build version on the exported resource.
func SetVersion(v string) {
	mu.Lock()
	defer mu.Unlock()
	if v != "" && provider == nil {
		version = v
	}
}

func currentProvider() trace.TracerProvider {
	mu.Lock()
	defer mu.Unlock()
	if provider == nil {
		provider = buildProvider()
	}
	return provider
}

func buildProvider() trace.TracerProvider {
	endpoint := os.Getenv(EndpointEnv)
	if endpoint == "" {
		return noop.NewTracerProvider()
	}

	ctx := context.Background()
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		otel.Handle(err)
		return noop.NewTracerProvider()
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		res = resource.Default()
	}

	sdkProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(sdkProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return sdkProvider
}

// Tracer returns a named tracer.
func Tracer(name string) trace.Tracer {
	return currentProvider().Tracer(name)
}

// Enabled reports whether spans leave the process.
func Enabled() bool {
	currentProvider()
	mu.Lock()
	defer mu.Unlock()
	return sdkProvider != nil
}

// Shutdown flushes buffered spans. Safe to call when tracing is disabled.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	p := sdkProvider
	mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Shutdown(ctx)
}

// StartOperation opens an internal span named "<component>.<operation>".
func StartOperation(ctx context.Context, component, operation, userID string) (context.Context, trace.Span) {
	ctx, span := Tracer(component).Start(ctx, component+"."+operation,
		trace.WithSpanKind(trace.SpanKindInternal))
	if userID != "" {
		span.SetAttributes(attribute.String("user_id", userID))
	}
	return ctx, span
}

// EndOperation marks span failed when err is non-nil, then ends it.
func EndOperation(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
