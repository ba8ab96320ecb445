package proxy

import (
	"context"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/crew"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
)

// AccessControl answers "may this user touch that resource" and hands back the
// loaded resource so callers do not fetch it twice.
type AccessControl struct {
	store repository.Store
}

func NewAccessControl(store repository.Store) *AccessControl {
	return &AccessControl{store: store}
}

func (a *AccessControl) CanViewConversation(ctx context.Context, userID, conversationID string) (conversation.Conversation, error) {
	return a.ensureParticipant(ctx, conversationID, userID)
}

func (a *AccessControl) CanSendMessage(ctx context.Context, userID, conversationID string) (conversation.Conversation, error) {
	return a.ensureParticipant(ctx, conversationID, userID)
}

// CanManageCrew allows the crew owner only.
func (a *AccessControl) CanManageCrew(ctx context.Context, userID, crewID string) (crew.Crew, error) {
	c, err := a.store.Crews().GetByID(ctx, crewID)
	if err != nil {
		return crew.Crew{}, err
	}
	if c.OwnerID != userID {
		return crew.Crew{}, upforit_errors.ErrPermissionDenied
	}
	return c, nil
}

func (a *AccessControl) CanViewCrew(ctx context.Context, userID, crewID string) (crew.Crew, error) {
	c, err := a.store.Crews().GetByID(ctx, crewID)
	if err != nil {
		return crew.Crew{}, err
	}
	ok, err := a.store.Crews().IsMember(ctx, crewID, userID)
	if err != nil {
		return crew.Crew{}, err
	}
	if !ok {
		return crew.Crew{}, upforit_errors.ErrPermissionDenied
	}
	return c, nil
}

func (a *AccessControl) ensureParticipant(ctx context.Context, conversationID, userID string) (conversation.Conversation, error) {
	conv, err := a.store.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if !conv.HasMember(userID) {
		return conversation.Conversation{}, upforit_errors.ErrPermissionDenied
	}
	return conv, nil
}
