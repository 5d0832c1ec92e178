package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel carrying a user's live notifications.
func Channel(userID string) string {
	return "notifications:user:" + userID
}

// RedisPublisher fans notifications out over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher constructs a publisher.
func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// Publish sends n to the receiver's channel.
func (p *RedisPublisher) Publish(ctx context.Context, n Notification) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(n.ReceiverID), payload).Err()
}

// Subscribe streams notifications for userID until ctx is done. The returned
// channel is closed once the subscription ends.
func (p *RedisPublisher) Subscribe(ctx context.Context, userID string) (<-chan Notification, error) {
	sub := p.client.Subscribe(ctx, Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan Notification)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					if p.logger != nil {
						p.logger.Warn("drop malformed notification", slog.String("channel", msg.Channel), slog.Any("error", err))
					}
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
