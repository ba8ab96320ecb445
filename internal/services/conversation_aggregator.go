package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/crew"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
	"upforit/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChatCache holds last-message previews per conversation and the merged chat list
// per user. GetChatList returns nil on a miss.
type ChatCache interface {
	GetLastMessage(ctx context.Context, conversationID string) (*conversation.LastMessage, bool, error)
	SetLastMessage(ctx context.Context, conversationID string, m *conversation.LastMessage) error
	GetChatList(ctx context.Context, userID string) ([]conversation.Summary, error)
	SetChatList(ctx context.Context, userID string, items []conversation.Summary) error
}

const defaultRowWorkers = 8

// ConversationAggregator builds a user's chat list out of their direct and group
// conversations.
type ConversationAggregator struct {
	store      repository.Store
	cache      ChatCache
	resolver   *RecipientResolver
	log        *logger.Logger
	rowWorkers int

	// background cache reconciliation
	bg sync.WaitGroup
}

func NewConversationAggregator(store repository.Store, cache ChatCache, rowWorkers int, l *logger.Logger) *ConversationAggregator {
	if l == nil {
		l = logger.NewNop()
	}
	if rowWorkers <= 0 {
		rowWorkers = defaultRowWorkers
	}
	return &ConversationAggregator{
		store:      store,
		cache:      cache,
		resolver:   NewRecipientResolver(store.Users(), l),
		log:        l,
		rowWorkers: rowWorkers,
	}
}

// Cached returns the list persisted by the last BuildConversationList. It may be stale
// and is nil when nothing was cached yet.
func (a *ConversationAggregator) Cached(ctx context.Context, userID string) ([]conversation.Summary, error) {
	return a.cache.GetChatList(ctx, userID)
}

// BuildConversationList aggregates, sorts and caches the full list, then returns the
// rows whose title matches filter.
func (a *ConversationAggregator) BuildConversationList(ctx context.Context, userID, filter string) ([]conversation.Summary, error) {
	var direct, group []conversation.Conversation
	var g errgroup.Group
	g.Go(func() error {
		var err error
		direct, err = a.store.Conversations().GetDirectConversations(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		group, err = a.store.Conversations().GetGroupConversations(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := append(direct, group...)
	names := a.memberNames(ctx, all)

	rows := make([]conversation.Summary, len(all))
	var rg errgroup.Group
	rg.SetLimit(a.rowWorkers)
	for i, conv := range all {
		rg.Go(func() error {
			rows[i] = a.buildRow(ctx, userID, conv, names)
			return nil
		})
	}
	_ = rg.Wait()

	conversation.SortSummaries(rows)

	if err := a.cache.SetChatList(ctx, userID, rows); err != nil {
		a.log.WarnCtx(ctx, "chat list cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return conversation.FilterSummaries(rows, filter), nil
}

// Wait blocks until background cache reconciliation has finished.
func (a *ConversationAggregator) Wait() {
	a.bg.Wait()
}

func (a *ConversationAggregator) buildRow(ctx context.Context, userID string, conv conversation.Conversation, names map[string]string) conversation.Summary {
	row := conversation.Summary{
		ConversationID: conv.ID,
		Kind:           conv.Kind,
		CrewID:         conv.CrewID,
		Date:           conv.Date,
		Title:          a.title(ctx, userID, conv, names),
	}

	row.LastMessage = a.lastMessage(ctx, conv.ID, names)

	unread, err := a.store.Messages().CountUnread(ctx, conv.ID, userID)
	if err != nil {
		a.log.WarnCtx(ctx, "unread count failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		unread = 0
	}
	row.Unread = unread
	return row
}

func (a *ConversationAggregator) title(ctx context.Context, userID string, conv conversation.Conversation, names map[string]string) string {
	if conv.Kind == conversation.KindGroup {
		c, err := a.store.Crews().GetByID(ctx, conv.CrewID)
		if err != nil {
			a.log.WarnCtx(ctx, "crew lookup failed", zap.String("crew_id", conv.CrewID), zap.Error(err))
			return crew.FormatDate(conv.Date)
		}
		return groupTitle(c.Name, conv.Date)
	}

	others := conv.OtherMembers(userID)
	parts := make([]string, 0, len(others))
	for _, id := range others {
		parts = append(parts, nameOf(names, id))
	}
	return strings.Join(parts, ", ")
}

// lastMessage serves the cached preview when there is one and reconciles it in the
// background. On a miss it fetches and stores the preview.
func (a *ConversationAggregator) lastMessage(ctx context.Context, conversationID string, names map[string]string) *conversation.LastMessage {
	cached, found, err := a.cache.GetLastMessage(ctx, conversationID)
	if err != nil {
		a.log.WarnCtx(ctx, "last message cache read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		found = false
	}
	if found {
		a.reconcile(ctx, conversationID, cached, names)
		return cached
	}

	fresh, err := a.fetchLastMessage(ctx, conversationID, names)
	if err != nil {
		a.log.WarnCtx(ctx, "last message fetch failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	if err := a.cache.SetLastMessage(ctx, conversationID, fresh); err != nil {
		a.log.WarnCtx(ctx, "last message cache write failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return fresh
}

// reconcile re-fetches the preview and writes it back only when the value changed.
// It outlives the request that started it.
func (a *ConversationAggregator) reconcile(ctx context.Context, conversationID string, cached *conversation.LastMessage, names map[string]string) {
	bgCtx := context.WithoutCancel(ctx)
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fresh, err := a.fetchLastMessage(bgCtx, conversationID, names)
		if err != nil {
			a.log.WarnCtx(bgCtx, "last message refresh failed", zap.String("conversation_id", conversationID), zap.Error(err))
			return
		}
		if fresh.Equal(cached) {
			return
		}
		if err := a.cache.SetLastMessage(bgCtx, conversationID, fresh); err != nil {
			a.log.WarnCtx(bgCtx, "last message cache write failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}()
}

func (a *ConversationAggregator) fetchLastMessage(ctx context.Context, conversationID string, names map[string]string) (*conversation.LastMessage, error) {
	m, err := a.store.Messages().GetLatest(ctx, conversationID)
	if errors.Is(err, upforit_errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation.LastMessage{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		SenderName: nameOf(names, m.SenderID),
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}, nil
}

// memberNames resolves display names for every member of convs in directory batches.
func (a *ConversationAggregator) memberNames(ctx context.Context, convs []conversation.Conversation) map[string]string {
	var ids []string
	for _, c := range convs {
		ids = append(ids, c.MemberIDs...)
	}
	names := make(map[string]string)
	for _, u := range a.resolver.Lookup(ctx, ids) {
		names[u.ID] = u.Name()
	}
	return names
}

func nameOf(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return id
}
