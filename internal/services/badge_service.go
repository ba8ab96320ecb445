package services

import (
	"context"
	"errors"

	"upforit/internal/domain/user"
	"upforit/internal/events"
	"upforit/internal/proxy"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
	"upforit/pkg/logger"

	"go.uber.org/zap"
)

// NoticePublisher pushes small realtime notices to a pub/sub channel.
type NoticePublisher interface {
	PublishJSON(ctx context.Context, channel string, v any) error
}

// BadgeResult is the outcome of MaybeIncrementBadge. Suppressed means the recipient
// was viewing the conversation and the badge was left untouched.
type BadgeResult struct {
	Badge      int
	Suppressed bool
}

const NoticeBadgeUpdated = "badge.updated"

type BadgeNotice struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Badge  int    `json:"badge"`
}

type BadgeService struct {
	store   repository.Store
	access  *proxy.AccessControl
	notices NoticePublisher
	log     *logger.Logger
}

func NewBadgeService(store repository.Store, notices NoticePublisher, l *logger.Logger) *BadgeService {
	if l == nil {
		l = logger.NewNop()
	}
	return &BadgeService{
		store:   store,
		access:  proxy.NewAccessControl(store),
		notices: notices,
		log:     l,
	}
}

// MaybeIncrementBadge bumps the recipient's badge by one unless the recipient has
// conversationID open. The check and the write happen under one lock on the user.
func (s *BadgeService) MaybeIncrementBadge(ctx context.Context, recipientID, conversationID string) (BadgeResult, error) {
	suppressed := false
	u, err := s.store.Users().MutateBadge(ctx, recipientID, func(u *user.User) (bool, error) {
		if u.IsViewing(conversationID) {
			suppressed = true
			return false, nil
		}
		u.BadgeCount = max(u.BadgeCount, 0) + 1
		return true, nil
	})
	if err != nil {
		return BadgeResult{}, err
	}
	if suppressed {
		return BadgeResult{Badge: u.BadgeCount, Suppressed: true}, nil
	}

	s.notify(ctx, u.ID, u.BadgeCount)
	return BadgeResult{Badge: u.BadgeCount}, nil
}

// RecomputeBadge replaces the badge with the user's total unread count.
func (s *BadgeService) RecomputeBadge(ctx context.Context, userID string) (int, error) {
	var badge int
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		u, err := tx.Users().MutateBadge(ctx, userID, func(u *user.User) (bool, error) {
			total, err := tx.Messages().CountUnreadTotal(ctx, userID)
			if err != nil {
				return false, err
			}
			u.BadgeCount = total
			return true, nil
		})
		badge = u.BadgeCount
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(ctx, userID, badge)
	return badge, nil
}

func (s *BadgeService) Badge(ctx context.Context, userID string) (int, error) {
	u, err := s.store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return max(u.BadgeCount, 0), nil
}

// OpenConversation records that the user is looking at the conversation: pushes and
// increments for it are suppressed until CloseConversation.
func (s *BadgeService) OpenConversation(ctx context.Context, userID, conversationID string) (int, error) {
	if err := s.requireMember(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	if err := s.store.Users().SetActiveChat(ctx, userID, conversationID, true); err != nil {
		return 0, err
	}
	return s.MarkRead(ctx, userID, conversationID)
}

// CloseConversation ends viewing. Messages that arrived while the conversation was
// open were seen, so the watermark moves up to the latest one first. A user who is
// no longer a member still gets the conversation cleared from ActiveChats.
func (s *BadgeService) CloseConversation(ctx context.Context, userID, conversationID string) error {
	_, err := s.MarkRead(ctx, userID, conversationID)
	if err != nil && !errors.Is(err, upforit_errors.ErrPermissionDenied) && !errors.Is(err, upforit_errors.ErrNotFound) {
		return err
	}
	return s.store.Users().SetActiveChat(ctx, userID, conversationID, false)
}

// MarkRead moves the read watermark to the latest stored message and recomputes the
// badge. The watermark comes from the message timestamp, never the app clock, so it
// cannot run ahead of messages the store has not handed out yet.
func (s *BadgeService) MarkRead(ctx context.Context, userID, conversationID string) (int, error) {
	if err := s.requireMember(ctx, userID, conversationID); err != nil {
		return 0, err
	}

	latest, err := s.store.Messages().GetLatest(ctx, conversationID)
	switch {
	case err == nil:
		if err := s.store.Conversations().MarkRead(ctx, userID, conversationID, latest.CreatedAt); err != nil {
			return 0, err
		}
	case !errors.Is(err, upforit_errors.ErrNotFound):
		return 0, err
	}
	return s.RecomputeBadge(ctx, userID)
}

func (s *BadgeService) requireMember(ctx context.Context, userID, conversationID string) error {
	_, err := s.access.CanViewConversation(ctx, userID, conversationID)
	return err
}

func (s *BadgeService) notify(ctx context.Context, userID string, badge int) {
	if s.notices == nil {
		return
	}
	notice := BadgeNotice{Type: NoticeBadgeUpdated, UserID: userID, Badge: badge}
	if err := s.notices.PublishJSON(ctx, events.UserChannel(userID), notice); err != nil {
		s.log.WarnCtx(ctx, "badge notice publish failed", zap.String("user_id", userID), zap.Error(err))
	}
}
