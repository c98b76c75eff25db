package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"onboarding/internal/journey/models"
)

// RedisHub shares journey documents between instances over a Redis pub/sub
// channel. Publish goes to Redis; Run relays every message on the channel to
// the local Hub that holds this instance's subscribers.
type RedisHub struct {
	client  *redis.Client
	channel string
	local   *Hub
	logger  *slog.Logger
}

func NewRedisHub(client *redis.Client, channel string, local *Hub, logger *slog.Logger) *RedisHub {
	return &RedisHub{client: client, channel: channel, local: local, logger: logger}
}

func (h *RedisHub) Publish(ctx context.Context, j *models.Journey) error {
	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal journey: %w", err)
	}
	if err := h.client.Publish(ctx, h.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish journey: %w", err)
	}
	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan *models.Journey, func()) {
	return h.local.Subscribe(ctx, userID)
}

// Run relays channel messages to local subscribers until ctx ends.
func (h *RedisHub) Run(ctx context.Context) error {
	pubsub := h.client.Subscribe(ctx, h.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.channel, err)
	}

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var j models.Journey
			if err := json.Unmarshal([]byte(msg.Payload), &j); err != nil {
				h.logger.WarnContext(ctx, "dropping malformed journey message",
					"channel", h.channel,
					"error", err,
				)
				continue
			}
			_ = h.local.Publish(ctx, &j)
		}
	}
}
