package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/approval-flow/internal/domain/entity"
	"github.com/garyjia/approval-flow/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu      sync.Mutex
	infos   []string
	errors  []string
	entries []map[string]interface{}
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)

	entry := map[string]interface{}{"msg": msg}
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			entry[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
		}
	}
	m.entries = append(m.entries, entry)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)

	entry := map[string]interface{}{"msg": msg, "level": "error"}
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			entry[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
		}
	}
	m.entries = append(m.entries, entry)
}

func (m *mockLogger) InfoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.infos)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func approvedEvent() *event.Event {
	return event.New(event.KindStepApproved, "req-1", "step-1", "alice", entity.RequestStatusInReview, time.Now())
}

func TestNewDispatcher(t *testing.T) {
	t.Run("creates dispatcher without logger", func(t *testing.T) {
		d := NewDispatcher()
		if d == nil {
			t.Fatal("expected non-nil dispatcher")
		}
	})

	t.Run("creates dispatcher with logger", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		if d == nil {
			t.Fatal("expected non-nil dispatcher")
		}
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("subscribes handler with auto-generated name", func(t *testing.T) {
		d := NewDispatcher()
		called := false
		handler := func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		}

		d.Subscribe(event.KindStepApproved, handler)

		evt := approvedEvent()
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if !called {
			t.Error("expected handler to be called")
		}
	})

	t.Run("subscribes multiple handlers to same event type", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		evt := approvedEvent()
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if !called1 || !called2 {
			t.Error("expected both handlers to be called")
		}
	})
}

func TestSubscribeNamed(t *testing.T) {
	t.Run("subscribes handler with custom name", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		handler := func(ctx context.Context, evt *event.Event) error {
			return nil
		}

		d.SubscribeNamed(event.KindStepApproved, "test-handler", handler)

		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})

	t.Run("lists handlers by name", func(t *testing.T) {
		d := NewDispatcher()

		d.SubscribeNamed(event.KindStepApproved, "handler-1", func(ctx context.Context, evt *event.Event) error {
			return nil
		})
		d.SubscribeNamed(event.KindStepApproved, "handler-2", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		handlers := d.ListHandlers(event.KindStepApproved)
		if len(handlers) != 2 {
			t.Fatalf("expected 2 handlers, got %d", len(handlers))
		}

		names := map[string]bool{}
		for _, h := range handlers {
			names[h.Name] = true
		}

		if !names["handler-1"] || !names["handler-2"] {
			t.Error("expected both handlers to be listed")
		}
	})
}

func TestUnsubscribe(t *testing.T) {
	t.Run("removes handler by name", func(t *testing.T) {
		d := NewDispatcher()
		called := false

		d.SubscribeNamed(event.KindStepApproved, "handler-1", func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		d.Unsubscribe(event.KindStepApproved, "handler-1")

		evt := approvedEvent()
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if called {
			t.Error("expected handler not to be called after unsubscribe")
		}
	})

	t.Run("removes only specified handler", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.SubscribeNamed(event.KindStepApproved, "handler-1", func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.SubscribeNamed(event.KindStepApproved, "handler-2", func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		d.Unsubscribe(event.KindStepApproved, "handler-1")

		evt := approvedEvent()
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if called1 {
			t.Error("expected handler-1 not to be called")
		}
		if !called2 {
			t.Error("expected handler-2 to be called")
		}
	})
}

func TestDispatch(t *testing.T) {
	t.Run("dispatches to all handlers synchronously", func(t *testing.T) {
		d := NewDispatcher()
		order := []int{}
		var mu sync.Mutex

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			mu.Lock()
			order = append(order, 1)
			mu.Unlock()
			return nil
		})
		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			mu.Lock()
			order = append(order, 2)
			mu.Unlock()
			return nil
		})

		evt := approvedEvent()
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("expected handlers to run in order [1, 2], got %v", order)
		}
	})

	t.Run("returns first error encountered", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("handler error")
		called := false

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		evt := approvedEvent()
		err := d.Dispatch(context.Background(), evt)

		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error to wrap %v, got %v", expectedErr, err)
		}
		if called {
			t.Error("expected second handler not to be called after first error")
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		d := NewDispatcher()

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			return ctx.Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		evt := approvedEvent()
		err := d.Dispatch(ctx, evt)

		if err == nil {
			t.Fatal("expected error from cancelled context")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			panic("test panic")
		})

		evt := approvedEvent()
		err := d.Dispatch(context.Background(), evt)

		if err == nil {
			t.Fatal("expected error from panic recovery")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged as error")
		}
	})

	t.Run("returns error when dispatcher is closed", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		evt := approvedEvent()
		err := d.Dispatch(context.Background(), evt)

		if err == nil {
			t.Fatal("expected error when dispatching to closed dispatcher")
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("dispatches to handlers asynchronously", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			called.Add(1)
			return nil
		})
		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			called.Add(1)
			return nil
		})

		evt := approvedEvent()
		d.DispatchAsync(context.Background(), evt)

		// Should return immediately without waiting
		if called.Load() > 0 {
			t.Error("expected handlers not to have completed yet")
		}

		// Wait for handlers to complete
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if called.Load() != 2 {
			t.Errorf("expected 2 handlers to be called, got %d", called.Load())
		}
	})

	t.Run("does not block on handler errors", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		evt := approvedEvent()
		d.DispatchAsync(context.Background(), evt)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		// Both handlers should have been called despite error
		if called.Load() != 1 {
			t.Errorf("expected second handler to be called, got %d calls", called.Load())
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error to be logged")
		}
	})

	t.Run("recovers from handler panic asynchronously", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			panic("async panic")
		})

		evt := approvedEvent()
		d.DispatchAsync(context.Background(), evt)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged as error")
		}
	})

	t.Run("does not dispatch when dispatcher is closed", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		evt := approvedEvent()
		d.DispatchAsync(context.Background(), evt)

		// Give time for any goroutines to potentially start
		time.Sleep(50 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected handler not to be called after close")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error log for dispatching to closed dispatcher")
		}
	})
}

func TestListHandlers(t *testing.T) {
	t.Run("returns empty list for unregistered event type", func(t *testing.T) {
		d := NewDispatcher()
		handlers := d.ListHandlers(event.KindStepApproved)
		if len(handlers) != 0 {
			t.Errorf("expected 0 handlers, got %d", len(handlers))
		}
	})

	t.Run("returns handler info without exposing function", func(t *testing.T) {
		d := NewDispatcher()

		d.SubscribeNamed(event.KindStepApproved, "test-handler", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		handlers := d.ListHandlers(event.KindStepApproved)
		if len(handlers) != 1 {
			t.Fatalf("expected 1 handler, got %d", len(handlers))
		}

		h := handlers[0]
		if h.Name != "test-handler" {
			t.Errorf("expected name 'test-handler', got '%s'", h.Name)
		}
		if h.Kind != event.KindStepApproved {
			t.Errorf("expected event kind %s, got %s", event.KindStepApproved, h.Kind)
		}
		if h.Handler != nil {
			t.Error("expected handler function not to be exposed")
		}
	})

	t.Run("returns all handlers for event type", func(t *testing.T) {
		d := NewDispatcher()

		d.SubscribeNamed(event.KindStepApproved, "handler-1", func(ctx context.Context, evt *event.Event) error {
			return nil
		})
		d.SubscribeNamed(event.KindStepApproved, "handler-2", func(ctx context.Context, evt *event.Event) error {
			return nil
		})
		d.SubscribeNamed(event.KindStepRejected, "other-handler", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		handlers := d.ListHandlers(event.KindStepApproved)
		if len(handlers) != 2 {
			t.Fatalf("expected 2 handlers for StepApproved, got %d", len(handlers))
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("waits for async handlers to complete", func(t *testing.T) {
		d := NewDispatcher()
		var completed atomic.Bool

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(50 * time.Millisecond)
			completed.Store(true)
			return nil
		})

		evt := approvedEvent()
		d.DispatchAsync(context.Background(), evt)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if !completed.Load() {
			t.Error("expected async handler to complete before Close returns")
		}
	})

	t.Run("returns error on double close", func(t *testing.T) {
		d := NewDispatcher()

		if err := d.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}

		err := d.Close()
		if err == nil {
			t.Fatal("expected error on second close")
		}
	})

	t.Run("prevents new async dispatches after close", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		evt := approvedEvent()
		d.DispatchAsync(context.Background(), evt)

		time.Sleep(50 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected no handlers to be called after close")
		}
	})
}

func TestConcurrency(t *testing.T) {
	t.Run("handles concurrent subscriptions", func(t *testing.T) {
		d := NewDispatcher()
		var wg sync.WaitGroup

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				d.SubscribeNamed(event.KindStepApproved, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
					return nil
				})
			}(i)
		}

		wg.Wait()

		handlers := d.ListHandlers(event.KindStepApproved)
		if len(handlers) != 10 {
			t.Errorf("expected 10 handlers, got %d", len(handlers))
		}
	})

	t.Run("handles concurrent dispatch", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				evt := approvedEvent()
				d.Dispatch(context.Background(), evt)
			}()
		}

		wg.Wait()

		if called.Load() != 10 {
			t.Errorf("expected 10 handler calls, got %d", called.Load())
		}
	})
}

func TestAllKinds(t *testing.T) {
	t.Run("catch-all handler receives every kind after specific handlers", func(t *testing.T) {
		d := NewDispatcher()
		var mu sync.Mutex
		var seen []string

		d.SubscribeNamed(AllKinds, "audit", func(ctx context.Context, evt *event.Event) error {
			mu.Lock()
			seen = append(seen, "audit:"+evt.Kind.String())
			mu.Unlock()
			return nil
		})
		d.SubscribeNamed(event.KindStepApproved, "inbox", func(ctx context.Context, evt *event.Event) error {
			mu.Lock()
			seen = append(seen, "inbox:"+evt.Kind.String())
			mu.Unlock()
			return nil
		})

		if err := d.Dispatch(context.Background(), approvedEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		completed := event.New(event.KindRequestCompleted, "req-1", "", "alice", entity.RequestStatusApproved, time.Now())
		if err := d.Dispatch(context.Background(), completed); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		want := []string{"inbox:StepApproved", "audit:StepApproved", "audit:RequestCompleted"}
		if fmt.Sprint(seen) != fmt.Sprint(want) {
			t.Errorf("expected %v, got %v", want, seen)
		}
	})
}

func TestDispatchAll(t *testing.T) {
	t.Run("keeps dispatching after a failed event", func(t *testing.T) {
		d := NewDispatcher()
		var delivered atomic.Int32
		failure := errors.New("broker down")

		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			return failure
		})
		d.Subscribe(event.KindRequestCompleted, func(ctx context.Context, evt *event.Event) error {
			delivered.Add(1)
			return nil
		})

		events := event.Correlate([]*event.Event{
			approvedEvent(),
			event.New(event.KindRequestCompleted, "req-1", "", "alice", entity.RequestStatusApproved, time.Now()),
		})

		err := d.DispatchAll(context.Background(), events)
		if !errors.Is(err, failure) {
			t.Errorf("expected joined error to wrap %v, got %v", failure, err)
		}
		if delivered.Load() != 1 {
			t.Errorf("expected completion to be delivered, got %d", delivered.Load())
		}
	})

	t.Run("returns nil when every handler succeeds", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error { return nil })

		if err := d.DispatchAll(context.Background(), []*event.Event{approvedEvent(), approvedEvent()}); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

func TestDispatchAllAsync(t *testing.T) {
	t.Run("delivers the batch in order before Close returns", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var mu sync.Mutex
		var kinds []event.Kind

		d.SubscribeNamed(AllKinds, "recorder", func(ctx context.Context, evt *event.Event) error {
			mu.Lock()
			kinds = append(kinds, evt.Kind)
			mu.Unlock()
			return nil
		})

		d.DispatchAllAsync(context.Background(), []*event.Event{
			approvedEvent(),
			event.New(event.KindRequestCompleted, "req-1", "", "alice", entity.RequestStatusApproved, time.Now()),
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if len(kinds) != 2 || kinds[0] != event.KindStepApproved || kinds[1] != event.KindRequestCompleted {
			t.Errorf("expected [StepApproved RequestCompleted], got %v", kinds)
		}
	})

	t.Run("Close drains a batch already in flight", func(t *testing.T) {
		d := NewDispatcher()
		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		var mu sync.Mutex
		var kinds []event.Kind

		d.SubscribeNamed(AllKinds, "slow", func(ctx context.Context, evt *event.Event) error {
			once.Do(func() {
				close(started)
				<-release
			})
			mu.Lock()
			kinds = append(kinds, evt.Kind)
			mu.Unlock()
			return nil
		})

		d.DispatchAllAsync(context.Background(), []*event.Event{
			approvedEvent(),
			event.New(event.KindRequestCompleted, "req-1", "", "alice", entity.RequestStatusApproved, time.Now()),
		})
		<-started

		closed := make(chan error, 1)
		go func() { closed <- d.Close() }()

		// Close must not return while the first handler is still blocked
		select {
		case <-closed:
			t.Fatal("Close returned before the batch finished")
		case <-time.After(50 * time.Millisecond):
		}
		close(release)

		if err := <-closed; err != nil {
			t.Fatalf("close failed: %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if len(kinds) != 2 || kinds[1] != event.KindRequestCompleted {
			t.Errorf("expected both events delivered, got %v", kinds)
		}
	})

	t.Run("logs instead of delivering after close", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32
		d.Subscribe(event.KindStepApproved, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		d.DispatchAllAsync(context.Background(), []*event.Event{approvedEvent()})

		if called.Load() != 0 {
			t.Error("expected no delivery after close")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected an error log")
		}
	})
}
