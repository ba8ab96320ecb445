package websocket

import (
	"context"
	"encoding/json"
	"sync"
)

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opSubscribe
	opUnsubscribe
)

// op is a membership change. All of them go through one queue so a client's
// subscribe can never be applied after its unregister.
type op struct {
	kind    opKind
	client  *Client
	channel string
}

// Hub fans channel payloads out to the sockets subscribed to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[string]map[*Client]struct{}

	ops chan op
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		channels: make(map[string]map[*Client]struct{}),
		ops:      make(chan op, 512),
	}
}

// Run applies membership changes until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-h.ops:
			h.apply(o)
		}
	}
}

func (h *Hub) Register(c *Client)   { h.ops <- op{kind: opRegister, client: c} }
func (h *Hub) Unregister(c *Client) { h.ops <- op{kind: opUnregister, client: c} }

func (h *Hub) Subscribe(c *Client, channel string) {
	h.ops <- op{kind: opSubscribe, client: c, channel: channel}
}

func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.ops <- op{kind: opUnsubscribe, client: c, channel: channel}
}

func (h *Hub) apply(o op) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch o.kind {
	case opRegister:
		h.clients[o.client.ID] = o.client
	case opUnregister:
		if _, ok := h.clients[o.client.ID]; !ok {
			return
		}
		for _, ch := range o.client.Channels() {
			h.detach(o.client, ch)
		}
		delete(h.clients, o.client.ID)
		close(o.client.Send)
	case opSubscribe:
		if _, ok := h.clients[o.client.ID]; !ok {
			return
		}
		subs := h.channels[o.channel]
		if subs == nil {
			subs = make(map[*Client]struct{})
			h.channels[o.channel] = subs
		}
		subs[o.client] = struct{}{}
		o.client.subscribe(o.channel)
	case opUnsubscribe:
		h.detach(o.client, o.channel)
	}
}

// detach requires h.mu.
func (h *Hub) detach(c *Client, channel string) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	c.unsubscribe(channel)
}

// Broadcast sends payload to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		c.SendMessage(payload)
	}
}

// PublishJSON delivers v to the local subscribers of channel. It lets the hub stand
// in for redis when the server runs without one.
func (h *Hub) PublishJSON(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(channel, data)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
