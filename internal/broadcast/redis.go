package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/jensholdgaard/sneakerbid/internal/event"
)

// RedisRelay publishes events on a Redis pub/sub channel and feeds every
// message it receives into the local Hub, so subscribers on any replica see
// events produced on any other.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

// NewRedisRelay returns a relay between client's channel and hub.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
	}
}

// Publish sends e to every replica, including this one.
func (r *RedisRelay) Publish(ctx context.Context, e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to redis: %w", err)
	}
	return nil
}

// Run subscribes to the channel and delivers messages to the hub until ctx
// is done. It returns once the subscription is confirmed to have failed or
// ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	r.logger.InfoContext(ctx, "redis relay subscribed", slog.String("channel", r.channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var e event.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.logger.WarnContext(ctx, "discarding malformed relay message", slog.Any("error", err))
				continue
			}
			r.hub.Deliver(e)
		}
	}
}
