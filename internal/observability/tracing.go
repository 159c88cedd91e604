package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer for the runtime's two span kinds:
// provider chat calls (agent.chat) and tool executions (agent.tool_exec).
// It never configures its own OTLP exporter (that needs
// go.opentelemetry.io/otel/exporters/otlp/... and pulls in
// google.golang.org/grpc — see DESIGN.md for why that's not wired). It
// always traces through otel's global TracerProvider, which a hosting
// process can point at a real exporter; absent that, spans are no-ops.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer bound to serviceName under the global
// TracerProvider.
func NewTracer(serviceName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(serviceName)}
}

// TraceProviderCall opens a span for one provider chat call.
func (t *Tracer) TraceProviderCall(ctx context.Context, provider, model string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("agent.chat.%s", provider), trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("model", model),
			attribute.Int("attempt", attempt),
		))
}

// TraceToolExecution opens a span for one tool execution.
func (t *Tracer) TraceToolExecution(ctx context.Context, toolName string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("agent.tool_exec.%s", toolName), trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.Int("attempt", attempt),
		))
}

// End records err (if any) on span and closes it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
