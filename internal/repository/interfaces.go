package repository

import (
	"context"
	"time"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/crew"
	"upforit/internal/domain/outbox"
	"upforit/internal/domain/user"
)

// MaxDirectoryBatch caps the number of ids accepted by a single GetUsersByIDs call.
const MaxDirectoryBatch = 10

type UserRepository interface {
	Upsert(ctx context.Context, u *user.User) error
	GetUserByID(ctx context.Context, id string) (user.User, error)
	// GetUsersByIDs returns the users that exist among ids, in no particular order.
	// It rejects more than MaxDirectoryBatch ids with ErrInvalidInput.
	GetUsersByIDs(ctx context.Context, ids []string) ([]user.User, error)

	AddPushToken(ctx context.Context, userID, token string) error
	RemovePushToken(ctx context.Context, userID, token string) error

	SetActiveChat(ctx context.Context, userID, conversationID string, active bool) error

	// MutateBadge runs fn against a locked copy of the user. When fn returns true the
	// badge (and only the badge) is written back before the lock is released.
	MutateBadge(ctx context.Context, userID string, fn func(u *user.User) (bool, error)) (user.User, error)
}

type CrewRepository interface {
	Create(ctx context.Context, c *crew.Crew) error
	GetByID(ctx context.Context, id string) (crew.Crew, error)
	Delete(ctx context.Context, id string) error
	GetUserCrews(ctx context.Context, userID string) ([]crew.Crew, error)

	AddMember(ctx context.Context, m *crew.Member) error
	RemoveMember(ctx context.Context, crewID, userID string) error
	GetMemberIDs(ctx context.Context, crewID string) ([]string, error)
	IsMember(ctx context.Context, crewID, userID string) (bool, error)

	// SetAvailability stores the flag and returns the previous value (false when unset).
	SetAvailability(ctx context.Context, a crew.Availability) (bool, error)
	GetAvailability(ctx context.Context, crewID, date string) ([]crew.Availability, error)
	IsUpForIt(ctx context.Context, crewID, date, userID string) (bool, error)
}

type ConversationRepository interface {
	// CreateIfNotExists stores c unless a conversation with the same id exists, in which
	// case c is overwritten with the stored one.
	CreateIfNotExists(ctx context.Context, c *conversation.Conversation) (bool, error)
	GetByID(ctx context.Context, id string) (conversation.Conversation, error)
	AddMember(ctx context.Context, conversationID, userID string) error

	GetDirectConversations(ctx context.Context, userID string) ([]conversation.Conversation, error)
	GetGroupConversations(ctx context.Context, userID string) ([]conversation.Conversation, error)

	MarkRead(ctx context.Context, userID, conversationID string, at time.Time) error
}

type MessageRepository interface {
	// Create assigns CreatedAt; it strictly increases within a conversation.
	Create(ctx context.Context, m *conversation.Message) error
	GetLatest(ctx context.Context, conversationID string) (conversation.Message, error)
	// List returns up to limit messages older than before, newest first. A zero before
	// starts from the latest message.
	List(ctx context.Context, conversationID string, before time.Time, limit int) ([]conversation.Message, error)

	CountUnread(ctx context.Context, conversationID, userID string) (int, error)
	CountUnreadTotal(ctx context.Context, userID string) (int, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *outbox.OutboxEvent) error
	GetPending(ctx context.Context, limit, maxRetries int) ([]outbox.OutboxEvent, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errorMsg string) error
	IncrementRetry(ctx context.Context, id string) error
}

// Store groups the repositories so that services can run several writes in one
// transaction.
type Store interface {
	Users() UserRepository
	Crews() CrewRepository
	Conversations() ConversationRepository
	Messages() MessageRepository
	Outbox() OutboxRepository

	WithTx(ctx context.Context, fn func(tx Store) error) error
}
