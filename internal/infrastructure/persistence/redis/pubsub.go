package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/habitloop/habitloop-core/internal/infrastructure/messaging"
)

// PubSub adapts go-redis Pub/Sub to the event bus transport interface.
type PubSub struct {
	client *redis.Client
}

// NewPubSub creates a PubSub transport.
func NewPubSub(client *redis.Client) *PubSub {
	return &PubSub{client: client}
}

// Publish sends a message to the channel.
func (p *PubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe listens on the channel until ctx is cancelled.
func (p *PubSub) Subscribe(ctx context.Context, channel string) (<-chan messaging.PubSubMessage, error) {
	sub := p.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan messaging.PubSubMessage)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- messaging.PubSubMessage{Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
