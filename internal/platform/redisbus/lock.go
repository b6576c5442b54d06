package redisbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token, so a
// holder whose lock expired cannot release someone else's.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker takes short-lived exclusive locks with SET NX PX.
type Locker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	name := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{name}, token).Err(); err != nil {
			slog.Warn("lock release failed", "key", name, "err", err)
		}
	}
	return unlock, true, nil
}
