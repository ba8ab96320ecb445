package redis

import (
	"context"
	"fmt"
	"time"

	"upforit/internal/domain/conversation"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - conversation:{conv_id}:last_message - last message preview, refreshed on every aggregation
// - user:{user_id}:chats - the user's merged chat list for instant paint

// CacheConfig contains configuration for caching
type CacheConfig struct {
	LastMessageTTL time.Duration
	ChatListTTL    time.Duration
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		LastMessageTTL: 7 * 24 * time.Hour,
		ChatListTTL:    7 * 24 * time.Hour,
	}
}

// CacheStore handles caching in Redis
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

// NewCacheStore creates a new cache store
func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	return &CacheStore{
		client: client,
		config: config,
	}
}

func lastMessageKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:last_message", conversationID)
}

func chatListKey(userID string) string {
	return fmt.Sprintf("user:%s:chats", userID)
}

// --- Last message cache ---

// GetLastMessage returns the cached preview. found is false on a cache miss; a hit
// with a nil preview means the conversation was cached as empty.
func (c *CacheStore) GetLastMessage(ctx context.Context, conversationID string) (*conversation.LastMessage, bool, error) {
	data, err := c.client.Get(ctx, lastMessageKey(conversationID)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, err
	}
	m, err := conversation.DecodeLastMessage(data)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// SetLastMessage stores a preview, nil included.
func (c *CacheStore) SetLastMessage(ctx context.Context, conversationID string, m *conversation.LastMessage) error {
	data, err := conversation.EncodeLastMessage(m)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, lastMessageKey(conversationID), data, c.config.LastMessageTTL).Err()
}

// --- Chat list cache ---

// GetChatList returns the cached chat list, nil on a miss.
func (c *CacheStore) GetChatList(ctx context.Context, userID string) ([]conversation.Summary, error) {
	data, err := c.client.Get(ctx, chatListKey(userID)).Bytes()
	if err == goredis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}
	return conversation.DecodeSummaries(data)
}

// SetChatList stores the merged, unfiltered chat list.
func (c *CacheStore) SetChatList(ctx context.Context, userID string, items []conversation.Summary) error {
	data, err := conversation.EncodeSummaries(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, chatListKey(userID), data, c.config.ChatListTTL).Err()
}

// --- Utility Methods ---

// Ping checks if Redis is available
func (c *CacheStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
