// Package scanlog emits structured scan logs that never carry raw PII.
// Every string in a payload, at any depth, is scrubbed against the spans
// detected in that scan before the event is written. An event that still
// carries a detected value after scrubbing is replaced by a bare
// scan_log_suppressed error.
package scanlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/piiscan/internal/classifier"
	piiotel "github.com/dativo-io/piiscan/internal/otel"
	"github.com/dativo-io/piiscan/internal/redact"
	"github.com/dativo-io/piiscan/internal/requestctx"
)

// Logger is bound to one scan: its text and the values detected in it.
type Logger struct {
	ctx    context.Context
	logger zerolog.Logger
	text   string
	spans  []classifier.Span
	values []string
}

// New returns a scan logger writing to the global zerolog logger.
func New(ctx context.Context, text string, spans []classifier.Span) *Logger {
	return NewWithLogger(ctx, log.Logger, text, spans)
}

// NewWithLogger is New with an explicit destination.
func NewWithLogger(ctx context.Context, logger zerolog.Logger, text string, spans []classifier.Span) *Logger {
	values := make([]string, 0, len(spans))
	for _, s := range spans {
		if s.Text != "" {
			values = append(values, s.Text)
		}
	}
	return &Logger{ctx: ctx, logger: logger, text: text, spans: spans, values: values}
}

// Debug logs event at debug level.
func (l *Logger) Debug(event string, details map[string]any) { l.emit(zerolog.DebugLevel, event, details) }

// Info logs event at info level.
func (l *Logger) Info(event string, details map[string]any) { l.emit(zerolog.InfoLevel, event, details) }

// Warn logs event at warn level.
func (l *Logger) Warn(event string, details map[string]any) { l.emit(zerolog.WarnLevel, event, details) }

func (l *Logger) emit(level zerolog.Level, event string, details map[string]any) {
	if l.logger.GetLevel() > level || zerolog.GlobalLevel() > level {
		return
	}

	var redacted string
	if l.text != "" && len(l.spans) > 0 {
		redacted = redact.SanitizeText(l.text, l.spans)
	}
	var fields map[string]any
	if len(details) > 0 {
		fields = Scrub(details, l.values).(map[string]any)
	}

	// Last line of defense: an event that would still carry a detected
	// value is dropped, not written.
	if redact.FirstLeak(payloadStrings(fields, []string{event, redacted}), l.values) >= 0 {
		piiotel.RecordViolation(l.ctx)
		ev := l.logger.Error().Str("event", "scan_log_suppressed")
		if id := requestctx.CorrelationID(l.ctx); id != "" {
			ev = ev.Str("correlation_id", id)
		}
		ev.Msg("scan_log_suppressed")
		return
	}

	ev := l.logger.WithLevel(level).
		Str("event", event).
		Func(piiotel.LogTraceFields(l.ctx))
	if id := requestctx.CorrelationID(l.ctx); id != "" {
		ev = ev.Str("correlation_id", id)
	}
	if redacted != "" {
		ev = ev.Str("redacted_text", redacted)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(event)
}

// payloadStrings collects every string in a scrubbed payload, map keys
// included, appended to base.
func payloadStrings(v any, base []string) []string {
	switch t := v.(type) {
	case string:
		return append(base, t)
	case []any:
		for _, x := range t {
			base = payloadStrings(x, base)
		}
	case map[string]any:
		for k, x := range t {
			base = payloadStrings(x, append(base, k))
		}
	}
	return base
}

// Scrub returns a copy of v in which every string, including map keys and
// nested values, has each of values replaced by its shape mask. Types it
// does not know are round-tripped through JSON first.
func Scrub(v any, values []string) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return redact.ScrubValues(t, values)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = redact.ScrubValues(s, values)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = Scrub(x, values)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[redact.ScrubValues(k, values)] = Scrub(x, values)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[redact.ScrubValues(k, values)] = redact.ScrubValues(x, values)
		}
		return out
	case error:
		return redact.ScrubValues(t.Error(), values)
	case fmt.Stringer:
		return redact.ScrubValues(t.String(), values)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return redact.ScrubValues(fmt.Sprintf("%v", v), values)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return redact.ScrubValues(string(data), values)
	}
	return Scrub(generic, values)
}
