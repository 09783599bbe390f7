package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/approval-flow/internal/domain/event"
)

// Dispatcher routes events to registered handlers
type Dispatcher interface {
	// Subscribe registers a handler for an event kind
	Subscribe(kind event.Kind, handler Handler)

	// SubscribeNamed registers a handler with a name for debugging.
	// Use AllKinds to receive every event.
	SubscribeNamed(kind event.Kind, name string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(kind event.Kind, name string)

	// Dispatch sends event to all registered handlers synchronously
	// Returns first error encountered (handlers run in order)
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAll dispatches events in order and keeps going after a failure.
	// The joined handler errors are returned.
	DispatchAll(ctx context.Context, events []*event.Event) error

	// DispatchAsync sends event to handlers asynchronously
	// Does not wait for handlers to complete
	DispatchAsync(ctx context.Context, evt *event.Event)

	// DispatchAllAsync runs DispatchAll on a background goroutine, preserving event order
	DispatchAllAsync(ctx context.Context, events []*event.Event)

	// ListHandlers returns registered handlers for an event kind
	ListHandlers(kind event.Kind) []HandlerInfo

	// Close shuts down the dispatcher and waits for async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// eventDispatcher is the concrete implementation of Dispatcher
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Kind][]HandlerInfo
	logger   Logger

	// For async dispatch; accept pairs the closed check with wg.Add
	accept sync.Mutex
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Kind][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler for an event kind with an auto-generated name
func (d *eventDispatcher) Subscribe(kind event.Kind, handler Handler) {
	d.mu.RLock()
	name := fmt.Sprintf("handler-%d", len(d.handlers[kind]))
	d.mu.RUnlock()

	d.SubscribeNamed(kind, name, handler)
}

// SubscribeNamed registers a handler with a specific name for debugging
func (d *eventDispatcher) SubscribeNamed(kind event.Kind, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := HandlerInfo{
		Name:    name,
		Kind:    kind,
		Handler: handler,
	}

	d.handlers[kind] = append(d.handlers[kind], info)

	if d.logger != nil {
		d.logger.Info("Handler registered",
			"event_kind", kind,
			"handler_name", name,
		)
	}
}

// Unsubscribe removes a handler by name
func (d *eventDispatcher) Unsubscribe(kind event.Kind, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	handlers := d.handlers[kind]
	filtered := make([]HandlerInfo, 0, len(handlers))

	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}

	d.handlers[kind] = filtered

	if d.logger != nil {
		d.logger.Info("Handler unregistered",
			"event_kind", kind,
			"handler_name", name,
		)
	}
}

// handlersFor returns the kind-specific handlers followed by the catch-all ones
func (d *eventDispatcher) handlersFor(kind event.Kind) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	specific := d.handlers[kind]
	all := d.handlers[AllKinds]
	out := make([]HandlerInfo, 0, len(specific)+len(all))
	out = append(out, specific...)
	out = append(out, all...)
	return out
}

// Dispatch sends event to all registered handlers synchronously
func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}
	return d.dispatch(ctx, evt)
}

// dispatch delivers without the closed check; async work admitted before
// Close still runs to completion through it
func (d *eventDispatcher) dispatch(ctx context.Context, evt *event.Event) error {
	handlers := d.handlersFor(evt.Kind)

	if d.logger != nil {
		d.logger.Info("Dispatching event",
			"event_kind", evt.Kind,
			"event_id", evt.ID,
			"request_id", evt.RequestID,
			"handler_count", len(handlers),
		)
	}

	for _, info := range handlers {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			if d.logger != nil {
				d.logger.Error("Handler error",
					"event_kind", evt.Kind,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"error", err,
				)
			}
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}

	return nil
}

// DispatchAll dispatches every event even when an earlier one failed
func (d *eventDispatcher) DispatchAll(ctx context.Context, events []*event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}
	return d.dispatchAll(ctx, events)
}

func (d *eventDispatcher) dispatchAll(ctx context.Context, events []*event.Event) error {
	var errs []error
	for _, evt := range events {
		if err := d.dispatch(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("event %s (%s): %w", evt.ID, evt.Kind, err))
		}
	}
	return errors.Join(errs...)
}

// DispatchAsync sends event to handlers asynchronously
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.accept.Lock()
	defer d.accept.Unlock()

	if d.closed.Load() {
		if d.logger != nil {
			d.logger.Error("Cannot dispatch async event, dispatcher is closed",
				"event_kind", evt.Kind,
				"event_id", evt.ID,
			)
		}
		return
	}

	handlers := d.handlersFor(evt.Kind)

	if d.logger != nil {
		d.logger.Info("Dispatching event asynchronously",
			"event_kind", evt.Kind,
			"event_id", evt.ID,
			"handler_count", len(handlers),
		)
	}

	for _, info := range handlers {
		d.wg.Add(1)
		go func(h HandlerInfo) {
			defer d.wg.Done()

			if err := d.safeExecute(ctx, evt, h); err != nil {
				if d.logger != nil {
					d.logger.Error("Async handler error",
						"event_kind", evt.Kind,
						"event_id", evt.ID,
						"handler_name", h.Name,
						"error", err,
					)
				}
			}
		}(info)
	}
}

// DispatchAllAsync delivers a batch in order without blocking the caller
func (d *eventDispatcher) DispatchAllAsync(ctx context.Context, events []*event.Event) {
	if len(events) == 0 {
		return
	}

	d.accept.Lock()
	defer d.accept.Unlock()

	if d.closed.Load() {
		if d.logger != nil {
			d.logger.Error("Cannot dispatch event batch, dispatcher is closed",
				"event_count", len(events),
				"request_id", events[0].RequestID,
			)
		}
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.dispatchAll(ctx, events); err != nil && d.logger != nil {
			d.logger.Error("Event batch delivery failed",
				"request_id", events[0].RequestID,
				"correlation_id", events[0].CorrelationID,
				"error", err,
			)
		}
	}()
}

// ListHandlers returns registered handlers for an event kind
func (d *eventDispatcher) ListHandlers(kind event.Kind) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[kind]
	result := make([]HandlerInfo, len(handlers))

	for i, h := range handlers {
		// The handler function stays internal
		result[i] = HandlerInfo{
			Name:        h.Name,
			Kind:        h.Kind,
			Description: h.Description,
		}
	}

	return result
}

// Close shuts down the dispatcher and waits for async handlers to complete
func (d *eventDispatcher) Close() error {
	d.accept.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.accept.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for async handlers")
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}

	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Handler panic recovered",
					"event_kind", evt.Kind,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler(ctx, evt)
}
