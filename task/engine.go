package task

import (
	"context"
	"errors"
	"time"

	"github.com/agentforge/core/internal/hooks"
	"github.com/agentforge/core/internal/toolerrors"
	"github.com/agentforge/core/toolspec"
)

// InputRequiredError is returned by a RunFunc when the agent run paused to
// ask the caller for more information. The task remains non-terminal; the
// caller resumes by appending the user's reply to Task.Messages and calling
// ProcessTask again (spec §4.6 "input_required is not a terminal state").
type InputRequiredError struct {
	Message string
}

func (e *InputRequiredError) Error() string { return e.Message }

// RunFunc performs one agent (or skill) run over t and returns its final
// answer text, or an error. A *InputRequiredError return pauses the task
// without completing it; any other error fails it.
type RunFunc func(ctx context.Context, t Task) (string, error)

// Engine drives RunFunc invocations through the task state machine and
// emits the resulting event stream (spec §4.6, C6).
type Engine struct {
	bufferSize int
	bus        hooks.Bus
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithBus publishes every emitted Event onto bus in addition to the
// returned channel, letting observability subscribers (metrics, audit
// sinks) see the unfiltered internal stream described in
// internal/hooks's package doc.
func WithBus(bus hooks.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// NewEngine constructs an Engine. bufferSize bounds the event channel;
// zero selects a sensible default.
func NewEngine(bufferSize int, opts ...Option) *Engine {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	e := &Engine{bufferSize: bufferSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// hookEvent adapts an Event to the hooks.Event interface for Bus.Publish.
type hookEvent struct{ Event }

func (h hookEvent) Name() string { return "task." + string(h.Kind) }

// ProcessTask runs run against t and streams its lifecycle as typed events
// on the returned channel, which is closed once the run concludes (spec
// §4.6 "submitted→working→(input_required↔working)*→{completed|failed|cancelled}").
// Events after a done event never occur; at most one done event is ever
// sent, and it is always the last event on a terminating call.
func (e *Engine) ProcessTask(ctx context.Context, t Task, run RunFunc) <-chan Event {
	out := make(chan Event, e.bufferSize)

	go func() {
		defer close(out)

		emit(ctx, e.bus, out, Event{
			Kind:       EventStatus,
			TaskID:     t.ID,
			Timestamp:  now(),
			Visibility: toolspec.VisibilitySummary,
			Status:     StateWorking,
		})

		answer, err := run(ctx, t)

		var inputRequired *InputRequiredError
		switch {
		case errors.As(err, &inputRequired):
			emit(ctx, e.bus, out, Event{
				Kind:          EventStatus,
				TaskID:        t.ID,
				Timestamp:     now(),
				Visibility:    toolspec.VisibilitySummary,
				Status:        StateInputRequired,
				StatusMessage: inputRequired.Message,
			})
			// Non-terminal: no done event, caller resumes with a new call.

		case errors.Is(err, context.Canceled):
			emit(ctx, e.bus, out, Event{
				Kind: EventDone, TaskID: t.ID, Timestamp: now(),
				Visibility: toolspec.VisibilitySummary, FinalState: StateCancelled,
			})

		case err != nil:
			emit(ctx, e.bus, out, Event{
				Kind: EventError, TaskID: t.ID, Timestamp: now(),
				Visibility:   toolspec.VisibilityFull,
				ErrorCode:    toolerrors.CodeOf(err),
				ErrorMessage: err.Error(),
			})
			emit(ctx, e.bus, out, Event{
				Kind: EventDone, TaskID: t.ID, Timestamp: now(),
				Visibility: toolspec.VisibilitySummary, FinalState: StateFailed,
			})

		default:
			emit(ctx, e.bus, out, Event{
				Kind: EventMessage, TaskID: t.ID, Timestamp: now(),
				Visibility: toolspec.VisibilitySummary, MessageParts: []string{answer},
			})
			emit(ctx, e.bus, out, Event{
				Kind: EventDone, TaskID: t.ID, Timestamp: now(),
				Visibility: toolspec.VisibilitySummary, FinalState: StateCompleted,
			})
		}
	}()

	return out
}

// emit sends evt on out and, if bus is set, also publishes it to the
// internal hook bus for observability subscribers. ProcessTask's own
// goroutine is the sole sender on out so this never blocks indefinitely
// under normal operation (the channel is sized to hold every event one
// call can produce). A bus publish error is swallowed: a misbehaving
// observability subscriber must never fail the task itself.
func emit(ctx context.Context, bus hooks.Bus, out chan<- Event, evt Event) {
	out <- evt
	if bus != nil {
		_ = bus.Publish(ctx, hookEvent{evt})
	}
}

// now is overridden in tests that need deterministic timestamps; production
// code always uses wall-clock time.
var now = func() time.Time { return time.Now() }
