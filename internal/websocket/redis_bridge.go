package websocket

import (
	"context"

	"upforit/internal/events"
)

// UserChannelPattern matches every per-user notice channel.
const UserChannelPattern = "channel:user:*"

// RedisBridge relays notices published by any server instance to the sockets held
// by this one.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{UserChannelPattern}, func(channel string, payload []byte) {
		b.hub.Broadcast(channel, payload)
	})
}
