package services

import (
	"context"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/crew"
	"upforit/internal/proxy"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
)

type ConversationService struct {
	store  repository.Store
	access *proxy.AccessControl
}

func NewConversationService(store repository.Store) *ConversationService {
	return &ConversationService{store: store, access: proxy.NewAccessControl(store)}
}

func (s *ConversationService) GetByID(ctx context.Context, userID, conversationID string) (conversation.Conversation, error) {
	return s.access.CanViewConversation(ctx, userID, conversationID)
}

// StartDirect returns the direct conversation with otherID, creating it if needed.
func (s *ConversationService) StartDirect(ctx context.Context, userID, otherID string) (conversation.Conversation, error) {
	if otherID == "" || userID == otherID {
		return conversation.Conversation{}, upforit_errors.ErrInvalidInput
	}
	conv := conversation.Conversation{
		ID:        conversation.DirectConversationID(userID, otherID),
		Kind:      conversation.KindDirect,
		MemberIDs: []string{userID, otherID},
	}
	if _, err := s.store.Conversations().CreateIfNotExists(ctx, &conv); err != nil {
		return conversation.Conversation{}, err
	}
	return conv, nil
}

// CreateGroupChat opens the chat for one crew night. Only members who are up for it
// may open it, and it starts with everyone up for it. Calling it again returns the
// existing chat.
func (s *ConversationService) CreateGroupChat(ctx context.Context, userID, crewID, date string) (conversation.Conversation, bool, error) {
	if _, err := crew.ParseDate(date); err != nil {
		return conversation.Conversation{}, false, err
	}
	if _, err := s.access.CanViewCrew(ctx, userID, crewID); err != nil {
		return conversation.Conversation{}, false, err
	}
	up, err := s.store.Crews().IsUpForIt(ctx, crewID, date, userID)
	if err != nil {
		return conversation.Conversation{}, false, err
	}
	if !up {
		return conversation.Conversation{}, false, upforit_errors.ErrPermissionDenied
	}

	flags, err := s.store.Crews().GetAvailability(ctx, crewID, date)
	if err != nil {
		return conversation.Conversation{}, false, err
	}
	members := make([]string, 0, len(flags))
	for _, a := range flags {
		if a.UpForIt {
			members = append(members, a.UserID)
		}
	}

	conv := conversation.Conversation{
		ID:        conversation.GroupConversationID(crewID, date),
		Kind:      conversation.KindGroup,
		CrewID:    crewID,
		Date:      date,
		MemberIDs: members,
	}
	created, err := s.store.Conversations().CreateIfNotExists(ctx, &conv)
	if err != nil {
		return conversation.Conversation{}, false, err
	}
	return conv, created, nil
}
