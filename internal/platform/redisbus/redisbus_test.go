package redisbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"hradmin/internal/domain/store"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	return Config{Addr: addr, Timeout: 2 * time.Second}
}

func TestConnectFailsFast(t *testing.T) {
	_, err := Connect(context.Background(), Config{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatal("expected ping failure for closed port")
	}
}

func TestBusDeliversToHub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Connect(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	bus := NewBus(client, "hradmin:test:"+uuid.NewString())
	hub := store.NewHub()
	got := make(chan store.SessionEvent, 1)
	sub := hub.Subscribe(func(evt store.SessionEvent) { got <- evt })
	defer sub.Unsubscribe()

	if err := bus.Run(ctx, hub); err != nil {
		t.Fatalf("run: %v", err)
	}
	hub.Announce(ctx, bus, store.SessionEvent{Type: store.EventSignedOut, SessionID: "s1", UserID: "u1"})

	select {
	case evt := <-got:
		if evt.Type != store.EventSignedOut || evt.SessionID != "s1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("event never arrived")
	}
}

func TestLockerIsExclusive(t *testing.T) {
	ctx := context.Background()
	client, err := Connect(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	locker := NewLocker(client, "hradmin:test:lock:")
	key := uuid.NewString()
	unlock, ok, err := locker.TryLock(ctx, key, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, err := locker.TryLock(ctx, key, 5*time.Second); err != nil || ok {
		t.Fatalf("second lock should be refused: ok=%v err=%v", ok, err)
	}
	unlock()
	unlock2, ok, err := locker.TryLock(ctx, key, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("lock after release: ok=%v err=%v", ok, err)
	}
	unlock2()
}
