// Package telemetry wires the OpenTelemetry tracer provider, propagator,
// and resource the dispatcher instruments its control-plane calls and
// invocation loop iterations with (SPEC_FULL.md section 2.5), grounded on
// advdv-bhttp/blwa/tracing.go's exporter-selection pattern.
package telemetry

import (
	"context"

	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/detectors/aws/lambda"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "rubyruntime-dispatcher"

// NewTracerProvider builds a TracerProvider for the given exporter selector
// ("stdout" or "xrayudp", matching advdv-bhttp's BW_OTEL_EXPORTER values).
// The caller is responsible for calling Shutdown on process exit.
func NewTracerProvider(ctx context.Context, exporterType string) (*sdktrace.TracerProvider, error) {
	exporter, err := newExporter(ctx, exporterType)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, exporterType)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	}
	if exporterType == "xrayudp" {
		opts = append(opts, sdktrace.WithIDGenerator(xray.NewIDGenerator()))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// NewPropagator returns the propagator matching the exporter: the X-Ray
// format when correlating into Lambda's own trace, W3C tracecontext
// otherwise.
func NewPropagator(exporterType string) propagation.TextMapPropagator {
	if exporterType == "xrayudp" {
		return xray.Propagator{}
	}
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newExporter(ctx context.Context, exporterType string) (sdktrace.SpanExporter, error) {
	switch exporterType {
	case "stdout", "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "xrayudp":
		return xrayudp.NewSpanExporter(ctx)
	default:
		return nil, errors.Newf("telemetry: unsupported exporter %q (supported: stdout, xrayudp)", exporterType)
	}
}

func newResource(ctx context.Context, exporterType string) (*resource.Resource, error) {
	if exporterType == "xrayudp" {
		res, err := lambda.NewResourceDetector().Detect(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "telemetry: failed to detect Lambda resource")
		}
		return res, nil
	}
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	), nil
}

// Tracer returns a named tracer from the given provider, or a no-op one
// when tp is nil (local development with telemetry disabled). tp is typed
// concretely, not as trace.TracerProvider, so a nil provider can't get
// boxed into a non-nil interface value and bypass this check.
func Tracer(tp *sdktrace.TracerProvider, name string) trace.Tracer {
	if tp == nil {
		return trace.NewNoopTracerProvider().Tracer(name)
	}
	return tp.Tracer(name)
}
