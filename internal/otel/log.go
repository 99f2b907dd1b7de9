package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextFrom returns the trace and span IDs of the span in ctx, or
// empty strings when there is none.
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	if ctx == nil {
		return "", ""
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

func addTraceFields(ctx context.Context, e *zerolog.Event) {
	if traceID, spanID := TraceContextFrom(ctx); traceID != "" {
		e.Str("trace_id", traceID).Str("span_id", spanID)
	}
}

// LogTraceFields returns a zerolog Func hook adding trace_id and span_id
// for the span in ctx:
//
//	log.Warn().Func(otel.LogTraceFields(ctx)).Msg("provider_degraded")
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) { addTraceFields(ctx, e) }
}

// TraceHook adds trace_id and span_id to every event built with .Ctx(ctx).
// The CLI installs it on the global logger.
type TraceHook struct{}

// Run implements zerolog.Hook.
func (TraceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	addTraceFields(e.GetCtx(), e)
}
