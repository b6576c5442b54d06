package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"hradmin/internal/domain/store"
)

// Bus publishes session events on a Redis channel. Every instance runs Run
// to feed the channel into its local hub, so a sign-out on one instance
// reaches listeners on all of them.
type Bus struct {
	client  *redis.Client
	channel string
}

func NewBus(client *redis.Client, channel string) *Bus {
	return &Bus{client: client, channel: channel}
}

func (b *Bus) Publish(ctx context.Context, evt store.SessionEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Run subscribes to the channel and delivers every event to hub until ctx is
// done. It returns once the subscription is confirmed or fails.
func (b *Bus) Run(ctx context.Context, hub *store.Hub) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var evt store.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					slog.Warn("dropping malformed session event", "channel", msg.Channel, "err", err)
					continue
				}
				hub.Publish(evt)
			}
		}
	}()
	return nil
}
