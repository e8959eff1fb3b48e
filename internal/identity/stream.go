package identity

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStream subscribes to the pub/sub channel the identity platform
// publishes session notifications on.
type RedisStream struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisStream constructs a stream over the given channel.
func NewRedisStream(client *redis.Client, channel string, logger *slog.Logger) *RedisStream {
	return &RedisStream{client: client, channel: channel, logger: logger}
}

// Subscribe starts consuming notifications. Malformed payloads are logged and
// skipped; the channel closes when ctx is done or the subscription fails.
func (s *RedisStream) Subscribe(ctx context.Context) (<-chan Event, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer func() {
			_ = sub.Close()
		}()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					if s.logger != nil {
						s.logger.Warn("identity stream: drop malformed event", slog.Any("error", err))
					}
					continue
				}
				if ev.Type == "" {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

var _ EventStream = (*RedisStream)(nil)
