package memory

import (
	"context"
	"slices"
	"sync"

	"upforit/internal/domain/conversation"
)

// Cache is the in-process counterpart of the redis CacheStore. It counts
// last-message writes so callers can observe write-back behaviour.
type Cache struct {
	mu                sync.Mutex
	lastMessages      map[string]*conversation.LastMessage
	chatLists         map[string][]conversation.Summary
	lastMessageWrites map[string]int
}

func NewCache() *Cache {
	return &Cache{
		lastMessages:      make(map[string]*conversation.LastMessage),
		chatLists:         make(map[string][]conversation.Summary),
		lastMessageWrites: make(map[string]int),
	}
}

func copyLastMessage(m *conversation.LastMessage) *conversation.LastMessage {
	if m == nil {
		return nil
	}
	out := *m
	return &out
}

func (c *Cache) GetLastMessage(ctx context.Context, conversationID string) (*conversation.LastMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.lastMessages[conversationID]
	return copyLastMessage(m), ok, nil
}

func (c *Cache) SetLastMessage(ctx context.Context, conversationID string, m *conversation.LastMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastMessages[conversationID] = copyLastMessage(m)
	c.lastMessageWrites[conversationID]++
	return nil
}

// LastMessageWrites reports how many times the preview for conversationID was stored.
func (c *Cache) LastMessageWrites(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessageWrites[conversationID]
}

func (c *Cache) GetChatList(ctx context.Context, userID string) ([]conversation.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.chatLists[userID]
	if !ok {
		return nil, nil
	}
	return cloneSummaries(items), nil
}

func (c *Cache) SetChatList(ctx context.Context, userID string, items []conversation.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatLists[userID] = cloneSummaries(items)
	return nil
}

func cloneSummaries(items []conversation.Summary) []conversation.Summary {
	out := slices.Clone(items)
	for i := range out {
		out[i].LastMessage = copyLastMessage(out[i].LastMessage)
	}
	if out == nil {
		out = []conversation.Summary{}
	}
	return out
}
