package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"upforit/internal/domain/conversation"
	"upforit/internal/events"
	"upforit/internal/proxy"
	"upforit/internal/redis"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
	"upforit/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxMessageRunes = 2000

type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID string) (*redis.RateLimitResult, error)
}

// MessageService appends messages. Each message and its message.created event are
// committed together.
type MessageService struct {
	store   repository.Store
	access  *proxy.AccessControl
	limiter MessageLimiter
	log     *logger.Logger
}

func NewMessageService(store repository.Store, limiter MessageLimiter, l *logger.Logger) *MessageService {
	if l == nil {
		l = logger.NewNop()
	}
	return &MessageService{
		store:   store,
		access:  proxy.NewAccessControl(store),
		limiter: limiter,
		log:     l,
	}
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxMessageRunes {
		return "", upforit_errors.ErrInvalidInput
	}
	return text, nil
}

// SendDirect sends to recipientID, creating the direct conversation on first use.
func (s *MessageService) SendDirect(ctx context.Context, senderID, recipientID, text string) (conversation.Message, error) {
	text, err := validateText(text)
	if err != nil {
		return conversation.Message{}, err
	}
	if recipientID == "" || senderID == recipientID {
		return conversation.Message{}, upforit_errors.ErrInvalidInput
	}
	if err := s.allow(ctx, senderID); err != nil {
		return conversation.Message{}, err
	}

	var msg conversation.Message
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		conv := conversation.Conversation{
			ID:        conversation.DirectConversationID(senderID, recipientID),
			Kind:      conversation.KindDirect,
			MemberIDs: []string{senderID, recipientID},
		}
		if _, err := tx.Conversations().CreateIfNotExists(ctx, &conv); err != nil {
			return err
		}
		var err error
		msg, err = s.appendMessage(ctx, tx, conv, senderID, text)
		return err
	})
	return msg, err
}

// Send appends to an existing conversation the sender belongs to.
func (s *MessageService) Send(ctx context.Context, senderID, conversationID, text string) (conversation.Message, error) {
	text, err := validateText(text)
	if err != nil {
		return conversation.Message{}, err
	}
	conv, err := s.access.CanSendMessage(ctx, senderID, conversationID)
	if err != nil {
		return conversation.Message{}, err
	}
	if err := s.allow(ctx, senderID); err != nil {
		return conversation.Message{}, err
	}

	var msg conversation.Message
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		msg, err = s.appendMessage(ctx, tx, conv, senderID, text)
		return err
	})
	return msg, err
}

func (s *MessageService) appendMessage(ctx context.Context, tx repository.Store, conv conversation.Conversation, senderID, text string) (conversation.Message, error) {
	msg := conversation.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Text:           text,
	}
	if err := tx.Messages().Create(ctx, &msg); err != nil {
		return conversation.Message{}, err
	}

	payload := events.MessageCreated{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		Kind:           string(conv.Kind),
		SenderID:       senderID,
		Text:           text,
		CrewID:         conv.CrewID,
		Date:           conv.Date,
	}
	if err := createOutboxEvent(ctx, tx.Outbox(), events.AggregateMessage, events.EventTypeMessageCreated, conv.ID, payload); err != nil {
		return conversation.Message{}, err
	}
	return msg, nil
}

func (s *MessageService) allow(ctx context.Context, senderID string) error {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.AllowMessage(ctx, senderID)
	if err != nil {
		s.log.WarnCtx(ctx, "message rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return upforit_errors.ErrRateLimited
	}
	return nil
}

// ListMessages pages backwards from before, newest first.
func (s *MessageService) ListMessages(ctx context.Context, userID, conversationID string, before time.Time, limit int) ([]conversation.Message, error) {
	if _, err := s.access.CanViewConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Messages().List(ctx, conversationID, before, limit)
}
