package scenestream

import (
	"context"
	"testing"
	"time"
)

// TestPublishSubscribe delivers one event end to end.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(8, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.Subscribe(ctx, 4)
	bus.Publish(Event{Code: "abc123", Circles: 5, Overlap: 0.12})

	select {
	case e := <-ch:
		if e.Code != "abc123" || e.Circles != 5 {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

// TestRecentRing checks the replay buffer keeps only the newest
// events, oldest first.
func TestRecentRing(t *testing.T) {
	bus := NewBus(2, 8)
	bus.Publish(Event{Code: "old"})
	bus.Publish(Event{Code: "mid"})
	bus.Publish(Event{Code: "new"})

	// Publish is asynchronous; poll until the ring settles.
	deadline := time.Now().Add(time.Second)
	for {
		recent := bus.Recent()
		if len(recent) == 2 && recent[0].Code == "mid" && recent[1].Code == "new" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("ring did not settle: %+v", recent)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestSlowSubscriberKeepsNewest fills a one-slot subscriber and
// expects the older pending event to be evicted for the newer one.
func TestSlowSubscriberKeepsNewest(t *testing.T) {
	bus := NewBus(0, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.Subscribe(ctx, 1)
	bus.Publish(Event{Code: "first"})

	// Wait for the first event to occupy the buffer before
	// overflowing it.
	deadline := time.Now().Add(time.Second)
	for len(ch) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first event never buffered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	bus.Publish(Event{Code: "second"})

	for {
		select {
		case e := <-ch:
			if e.Code == "second" {
				return
			}
			// "first" may still slip through if it was read before
			// eviction; keep draining until the newest shows up.
		case <-time.After(time.Second):
			t.Fatal("newest event never arrived")
		}
	}
}

// TestUnsubscribeOnCancel ends the context and expects the listener
// channel to close without deadlocking the publisher.
func TestUnsubscribeOnCancel(t *testing.T) {
	bus := NewBus(0, 8)
	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx, 1)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				// Publishing after the close must not block or panic.
				bus.Publish(Event{Code: "late"})
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel never closed")
		}
	}
}
