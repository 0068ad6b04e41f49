package stream

import (
	"context"
	"testing"
	"time"

	"coursebase.org/internal/auth"
)

func TestPublishFanOut(t *testing.T) {
	bus := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := bus.Subscribe(ctx)
	second := bus.Subscribe(ctx)

	evt := auth.RoleAssigned{UserID: "u1", RoleID: "r1", Role: "editor", ActorID: "a1"}
	bus.Publish(context.Background(), evt)

	for i, ch := range []<-chan Envelope{first, second} {
		select {
		case env := <-ch:
			if env.Kind != evt.Kind() {
				t.Errorf("subscriber %d: kind = %q, want %q", i, env.Kind, evt.Kind())
			}
			got, ok := env.Event.(auth.RoleAssigned)
			if !ok || got.UserID != "u1" {
				t.Errorf("subscriber %d: event = %+v", i, env.Event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event delivered", i)
		}
	}
}

func TestSubscribeClosesOnContextDone(t *testing.T) {
	bus := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("channel delivered an event instead of closing")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}

	// Publishing after removal must not panic or block.
	bus.Publish(context.Background(), auth.UserCreated{UserID: "u1"})
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	bus := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// More events than the channel buffers; the excess is dropped
		// without blocking the publisher.
		for i := 0; i < 100; i++ {
			bus.Publish(context.Background(), auth.UserCreated{UserID: "u"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if len(ch) == 0 {
		t.Fatal("expected at least one buffered event")
	}
}
