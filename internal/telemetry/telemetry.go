// Package telemetry defines the logging, metrics, and tracing interfaces
// consumed throughout the core. Components accept these interfaces rather
// than importing a concrete backend so the ambient stack can be swapped
// (clue/OTel in production, noop in tests) without touching business logic.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured key-value log lines scoped to the calling
	// context. Implementations should treat keyvals as alternating key,
	// value pairs (k1, v1, k2, v2, ...).
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges tagged with dimension
	// key-value pairs (k1, v1, k2, v2, ...).
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer starts spans for a unit of work. Implementations wrap an OTel
	// tracer; callers use the returned Span for events and status.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span is the subset of an OTel span the core needs: event annotation,
	// status, error recording, and completion.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)
