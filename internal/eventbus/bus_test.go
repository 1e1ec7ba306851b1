package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewLogbookEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(LogbookEventChanged, func(ctx context.Context, event LogbookEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(LogbookEventChanged, func(ctx context.Context, event LogbookEvent) error {
		calledB = event.InstanceID == "default"
		return nil
	})

	if err := bus.Publish(context.Background(), LogbookEventChanged, LogbookEvent{Type: LogbookEventChanged, InstanceID: "default"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusPublishOnlyMatchingType(t *testing.T) {
	bus := NewLogbookEventBus()
	called := false
	bus.Subscribe(LogbookEventUndone, func(ctx context.Context, event LogbookEvent) error {
		called = true
		return nil
	})

	if err := bus.Publish(context.Background(), LogbookEventRedone, LogbookEvent{Type: LogbookEventRedone}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler for another type not to be called")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewLogbookEventBus()
	called := false
	unsubscribe := bus.Subscribe(LogbookEventChanged, func(ctx context.Context, event LogbookEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), LogbookEventChanged, LogbookEvent{Type: LogbookEventChanged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewLogbookEventBus()
	errA := errors.New("err-a")
	bus.Subscribe(LogbookEventChanged, func(ctx context.Context, event LogbookEvent) error {
		return errA
	})
	bus.Subscribe(LogbookEventChanged, func(ctx context.Context, event LogbookEvent) error {
		return errors.New("err-b")
	})

	err := bus.Publish(context.Background(), LogbookEventChanged, LogbookEvent{Type: LogbookEventChanged})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error to wrap err-a, got %v", err)
	}
}

func TestBusSubscribeNilHandler(t *testing.T) {
	bus := NewLogbookEventBus()
	unsubscribe := bus.Subscribe(LogbookEventChanged, nil)
	unsubscribe()
	if err := bus.Publish(context.Background(), LogbookEventChanged, LogbookEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
