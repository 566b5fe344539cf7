// Package hooks implements a small in-process, synchronous fan-out event
// bus used internally by the task engine (C6) to notify observability
// subscribers of lifecycle events. It is distinct from, and upstream of,
// the visibility-filtered event stream (C7) handed to external callers:
// the bus carries unfiltered internal signals (every reasoning step,
// every tool dispatch) that observability subscribers such as metrics
// exporters or audit sinks consume directly.
package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Event is the interface every published hook event implements.
	Event interface {
		// Name identifies the kind of event (e.g. "tool_call_scheduled").
		Name() string
	}

	// Bus publishes events to registered subscribers in a fan-out pattern.
	// The bus is thread-safe and supports concurrent Publish, Register, and
	// Close operations.
	//
	// Events are delivered synchronously in the publisher's goroutine, and
	// iteration stops at the first subscriber error. This fail-fast
	// behavior lets critical subscribers (e.g. cost write-through) halt
	// execution on unrecoverable failures. The order in which subscribers
	// receive an event is not defined.
	Bus interface {
		// Publish delivers the event to every currently registered
		// subscriber, in no defined order, stopping at the first error.
		Publish(ctx context.Context, event Event) error
		// Register adds a subscriber and returns a Subscription that can be
		// closed to unregister it.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published events.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a plain function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents an active registration on a Bus.
	Subscription interface {
		// Close removes the subscriber from the bus. Idempotent.
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// NewBus constructs a new in-memory event bus, ready for immediate use.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish delivers the event to every currently registered subscriber,
// stopping at the first error. Subscribers are held in a map, so delivery
// order is not registration order and may differ between calls; which
// subscribers a failing one prevents from running is therefore not
// defined either. A snapshot of
// subscribers is taken before iteration begins so registration changes
// during Publish do not affect the current delivery.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a subscriber and returns a Subscription handle.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus. Idempotent and thread-safe.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
