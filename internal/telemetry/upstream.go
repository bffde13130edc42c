package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const upstreamScopeName = "github.com/ohmylinear/oml/official"

// ToolCaller is the upstream surface the instrumentation wraps. Declared
// here to avoid an import cycle with the packages that use Meter/Tracer.
type ToolCaller interface {
	CallTool(name string, arguments map[string]any) (any, error)
	GetHealth() map[string]any
	Reauth() map[string]any
}

// InstrumentedUpstream wraps a ToolCaller with OTel tracing and metrics.
// Every upstream call gets a span and is counted in oml.official.* metrics.
// Use WrapUpstream to create one; it returns the original caller unchanged
// when telemetry is disabled.
type InstrumentedUpstream struct {
	inner  ToolCaller
	tracer trace.Tracer
	calls  metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapUpstream returns c decorated with OTel instrumentation.
// When telemetry is disabled, c is returned as-is with zero overhead.
func WrapUpstream(c ToolCaller) ToolCaller {
	if !Enabled() {
		return c
	}
	m := Meter(upstreamScopeName)
	calls, _ := m.Int64Counter("oml.official.calls",
		metric.WithDescription("Total upstream MCP tool calls"),
	)
	dur, _ := m.Float64Histogram("oml.official.call.duration",
		metric.WithDescription("Upstream MCP call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("oml.official.errors",
		metric.WithDescription("Total upstream MCP call errors"),
	)
	return &InstrumentedUpstream{
		inner:  c,
		tracer: Tracer(upstreamScopeName),
		calls:  calls,
		dur:    dur,
		errs:   errs,
	}
}

func (u *InstrumentedUpstream) CallTool(name string, arguments map[string]any) (any, error) {
	attrs := []attribute.KeyValue{attribute.String("oml.tool", name)}
	ctx, span := u.tracer.Start(context.Background(), "official.CallTool",
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	u.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	start := time.Now()

	value, err := u.inner.CallTool(name, arguments)

	u.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
	return value, err
}

func (u *InstrumentedUpstream) GetHealth() map[string]any {
	return u.inner.GetHealth()
}

func (u *InstrumentedUpstream) Reauth() map[string]any {
	_, span := u.tracer.Start(context.Background(), "official.Reauth")
	defer span.End()
	return u.inner.Reauth()
}
