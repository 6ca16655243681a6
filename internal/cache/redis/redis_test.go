package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, "pm"), mr
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ch, err := bus.Subscribe(ctx, "events")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Publish(ctx, "events", []byte(`{"type":"market_resolved"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-ch:
		if string(msg) != `{"type":"market_resolved"}` {
			t.Fatalf("payload=%s", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestSignalBusStream(t *testing.T) {
	c, mr := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		if err := bus.StreamAppend(ctx, "events", []byte(p)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if !mr.Exists("pm:events") {
		t.Fatalf("stream key not namespaced")
	}

	all, err := bus.StreamRead(ctx, "events", "0", 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 3 || string(all[0].Payload) != "a" {
		t.Fatalf("all=%+v", all)
	}
	rest, err := bus.StreamRead(ctx, "events", all[0].ID, 10)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	if len(rest) != 2 || string(rest[0].Payload) != "b" {
		t.Fatalf("rest=%+v", rest)
	}
	tail, err := bus.StreamTail(ctx, "events", 2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(tail) != 2 || string(tail[0].Payload) != "b" || string(tail[1].Payload) != "c" {
		t.Fatalf("tail=%+v", tail)
	}
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "archive", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, "archive", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire err=%v want ErrLockHeld", err)
	}
	unlock()
	unlock()
	if mr.Exists("pm:lock:archive") {
		t.Fatalf("lock not released")
	}

	// A lock that expired and was retaken must not be released by the old holder.
	stale, err := lm.Acquire(ctx, "archive", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := lm.Acquire(ctx, "archive", time.Minute); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	stale()
	if !mr.Exists("pm:lock:archive") {
		t.Fatalf("stale unlock released the new holder's lock")
	}
}

func TestRateLimiter(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Second)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d rejected", i)
		}
		now = now.Add(time.Millisecond)
	}
	if ok, _ := rl.Allow(ctx, "1.2.3.4", 3, time.Second); ok {
		t.Fatalf("fourth request allowed")
	}
	if ok, _ := rl.Allow(ctx, "5.6.7.8", 3, time.Second); !ok {
		t.Fatalf("other key rejected")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := rl.Allow(ctx, "1.2.3.4", 3, time.Second); !ok {
		t.Fatalf("request after window rejected")
	}
}
