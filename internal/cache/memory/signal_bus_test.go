package memory

import (
	"context"
	"testing"
	"time"
)

func TestPublishPattern(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewSignalBus(0)
	ch, err := bus.Subscribe(ctx, "events:*")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = bus.Publish(ctx, "other", []byte("x"))
	_ = bus.Publish(ctx, "events:market_resolved", []byte("hello"))

	select {
	case got := <-ch:
		if string(got) != "hello" {
			t.Fatalf("got=%q want=hello", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewSignalBus(0)
	ch, _ := bus.Subscribe(ctx, "c")
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected message")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestStreamBoundedAndResumable(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus(3)
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		_ = bus.StreamAppend(ctx, "s", []byte(p))
	}

	all, _ := bus.StreamRead(ctx, "s", "0", 10)
	if len(all) != 3 || string(all[0].Payload) != "c" {
		t.Fatalf("got %d entries starting %q, want 3 starting c", len(all), all[0].Payload)
	}

	rest, _ := bus.StreamRead(ctx, "s", all[0].ID, 1)
	if len(rest) != 1 || string(rest[0].Payload) != "d" {
		t.Fatalf("resume got=%v", rest)
	}

	if none, _ := bus.StreamRead(ctx, "missing", "", 5); len(none) != 0 {
		t.Fatalf("missing stream returned %d entries", len(none))
	}
}
