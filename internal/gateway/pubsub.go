package gateway

import (
	"context"
	"log"

	goredis "github.com/go-redis/redis/v8"
)

// eventPattern matches every channel the Redis event writer publishes to.
const eventPattern = "events:*"

// PubSubRouter routes Redis PubSub messages to the broadcaster. Used when
// the gateway runs in a separate process from the engine.
type PubSubRouter struct {
	hub *Hub
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{hub: hub}
}

// Run subscribes to the event channels and routes messages.
// Blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context, rdb *goredis.Client) {
	pubsub := rdb.PSubscribe(ctx, eventPattern)
	defer pubsub.Close()

	log.Printf("[gateway] subscribed to %s", eventPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.hub.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
