package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg := <-c.Send:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("nothing delivered")
		return ""
	}
}

func TestHub_DeliversToSubscribers(t *testing.T) {
	hub := runHub(t)
	ann := NewClient(nil, "ann")
	bob := NewClient(nil, "bob")
	hub.Register(ann)
	hub.Register(bob)
	hub.Subscribe(ann, "channel:user:ann")
	hub.Subscribe(bob, "channel:user:bob")
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("channel:user:ann") == 1 && hub.SubscriberCount("channel:user:bob") == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, hub.PublishJSON(context.Background(), "channel:user:ann", map[string]int{"badge": 2}))

	assert.JSONEq(t, `{"badge":2}`, receive(t, ann))
	assert.Empty(t, bob.Send)
	assert.Equal(t, []string{"channel:user:ann"}, ann.Channels())
}

func TestHub_UnregisterClosesAndDetaches(t *testing.T) {
	hub := runHub(t)
	c := NewClient(nil, "ann")
	hub.Register(c)
	hub.Subscribe(c, "channel:user:ann")
	hub.Unregister(c)
	// Late subscribes for a gone client are ignored.
	hub.Subscribe(c, "channel:user:ann")

	select {
	case _, open := <-c.Send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("send channel never closed")
	}
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.SubscriberCount("channel:user:ann"))
	assert.Empty(t, c.Channels())
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := runHub(t)
	c := NewClient(nil, "ann")
	hub.Register(c)
	hub.Subscribe(c, "a")
	hub.Subscribe(c, "b")
	hub.Unsubscribe(c, "a")

	// b lands before the unsubscribe, so both holding means all three ops applied.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount("a") == 0 && hub.SubscriberCount("b") == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"b"}, c.Channels())
}

func TestClient_SendMessageDropsWhenFull(t *testing.T) {
	c := NewClient(nil, "ann")
	for range cap(c.Send) + 5 {
		c.SendMessage([]byte("x"))
	}
	assert.Len(t, c.Send, cap(c.Send))
}

type fakeSubscriber struct {
	patterns []string
	messages map[string]string
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	s.patterns = channels
	for ch, payload := range s.messages {
		handler(ch, []byte(payload))
	}
	return nil
}

func TestRedisBridge_RelaysUserNotices(t *testing.T) {
	hub := runHub(t)
	c := NewClient(nil, "ann")
	hub.Register(c)
	hub.Subscribe(c, "channel:user:ann")
	require.Eventually(t, func() bool { return hub.SubscriberCount("channel:user:ann") == 1 }, time.Second, time.Millisecond)

	sub := &fakeSubscriber{messages: map[string]string{
		"channel:user:ann": `{"type":"badge.updated","badge":1}`,
		"channel:user:bob": `{"type":"badge.updated","badge":7}`,
	}}
	require.NoError(t, NewRedisBridge(sub, hub).Run(context.Background()))

	assert.Equal(t, []string{UserChannelPattern}, sub.patterns)
	assert.JSONEq(t, `{"type":"badge.updated","badge":1}`, receive(t, c))
	assert.Empty(t, c.Send)
}
