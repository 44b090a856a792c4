package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/duplex"

// SessionIDKey is the span attribute and log key carrying a session's ID.
const SessionIDKey = "session_id"

// Tracer returns the duplex tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSessionSpan starts the span for one session lifecycle operation (Start,
// Stop, LoadAsset). The span is named "engine.Session.<op>" and tagged with
// the session ID so every run of a session can be found in a trace backend.
// The caller ends the span.
func StartSessionSpan(ctx context.Context, sessionID, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	return Tracer().Start(ctx, "engine.Session."+op, trace.WithAttributes(attrs...))
}

// SessionLogger returns the default logger tagged with sessionID and, when
// ctx carries a recording span, its trace_id and span_id. Lifecycle logs use
// it so a log line leads back to the span of the same Start or LoadAsset.
func SessionLogger(ctx context.Context, sessionID string) *slog.Logger {
	l := slog.Default().With(SessionIDKey, sessionID)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
