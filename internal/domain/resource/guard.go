package resource

import (
	"context"
	"log/slog"
	"time"
)

// Locker takes a lock shared between processes. TryLock must not block; it
// reports ok=false when someone else holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// inflight is a single-slot token: one mutation per manager at a time. When
// a Locker is configured the slot is also claimed there.
type inflight struct {
	slot   chan struct{}
	locker Locker
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func newInflight() *inflight {
	return &inflight{slot: make(chan struct{}, 1), ttl: 30 * time.Second, logger: slog.Default()}
}

func (g *inflight) acquire(ctx context.Context) (func(), error) {
	select {
	case g.slot <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	local := func() { <-g.slot }

	if g.locker == nil || g.key == "" {
		return local, nil
	}
	unlock, ok, err := g.locker.TryLock(ctx, g.key, g.ttl)
	if err != nil {
		g.logger.Warn("shared in-flight lock unavailable", "key", g.key, "err", err)
		return local, nil
	}
	if !ok {
		local()
		return nil, ErrBusy
	}
	return func() {
		unlock()
		local()
	}, nil
}

func (g *inflight) busy() bool {
	return len(g.slot) > 0
}
