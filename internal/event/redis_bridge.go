package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 2 * time.Second

// RedisBridge fans events out to every API instance through a redis
// pub/sub channel. Each instance feeds what it receives into its local hub,
// including the events it published itself.
type RedisBridge struct {
	client  *redis.Client
	channel string
	local   EventSender
}

func NewRedisBridge(client *redis.Client, channel string, local EventSender) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		local:   local,
	}
}

// Broadcast publishes the event to redis. If redis is unreachable the event
// is still delivered to this instance's connections.
func (b *RedisBridge) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err = b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Msg("failed to publish event to redis, delivering locally")
		b.local.Broadcast(event)
	}
}

// Run relays events from redis to the local hub until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	log.Info().Str("channel", b.channel).Msg("event bridge subscribed ✅")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Msg("discarding malformed event from redis")
				continue
			}
			b.local.Broadcast(event)
		}
	}
}
