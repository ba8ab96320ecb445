package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/user"
	"upforit/internal/events"
	upforit_errors "upforit/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybeIncrementBadge_ConcurrentIncrementsAreNotLost(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "uma")

	const n = 64
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.badges.MaybeIncrementBadge(f.ctx, "uma", fmt.Sprintf("conv-%d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, f.badge(t, "uma"))
}

func TestMaybeIncrementBadge_SuppressedWhileViewing(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "uma")
	require.NoError(t, f.store.Users().SetActiveChat(f.ctx, "uma", "conv-x", true))

	res, err := f.badges.MaybeIncrementBadge(f.ctx, "uma", "conv-x")
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.Equal(t, 0, f.badge(t, "uma"))

	res, err = f.badges.MaybeIncrementBadge(f.ctx, "uma", "conv-y")
	require.NoError(t, err)
	assert.False(t, res.Suppressed)
	assert.Equal(t, 1, res.Badge)
}

func TestMaybeIncrementBadge_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.badges.MaybeIncrementBadge(f.ctx, "ghost", "conv-x")
	assert.ErrorIs(t, err, upforit_errors.ErrNotFound)
}

func TestMaybeIncrementBadge_NeverNegative(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "uma")

	_, err := f.store.Users().MutateBadge(f.ctx, "uma", func(u *user.User) (bool, error) {
		u.BadgeCount = -4
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.badge(t, "uma"))

	res, err := f.badges.MaybeIncrementBadge(f.ctx, "uma", "conv-x")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Badge)
}

func TestMaybeIncrementBadge_PublishesNotice(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "uma")

	_, err := f.badges.MaybeIncrementBadge(f.ctx, "uma", "conv-x")
	require.NoError(t, err)

	channel, notice := f.notices.last()
	assert.Equal(t, events.UserChannel("uma"), channel)
	assert.Equal(t, BadgeNotice{Type: NoticeBadgeUpdated, UserID: "uma", Badge: 1}, notice)
}

func TestMarkRead_RecomputesFromUnread(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann")
	f.addUser(t, "bob")
	f.addUser(t, "cat")

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.messages.SendDirect(f.ctx, "ann", "bob", text)
		require.NoError(t, err)
	}
	_, err := f.messages.SendDirect(f.ctx, "cat", "bob", "hey")
	require.NoError(t, err)

	badge, err := f.badges.RecomputeBadge(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 4, badge)

	badge, err = f.badges.MarkRead(f.ctx, "bob", conversation.DirectConversationID("ann", "bob"))
	require.NoError(t, err)
	assert.Equal(t, 1, badge)
	assert.Equal(t, 1, f.badge(t, "bob"))
}

func TestMarkRead_RequiresMembership(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann")
	f.addUser(t, "bob")
	f.addUser(t, "eve")
	_, err := f.messages.SendDirect(f.ctx, "ann", "bob", "hi")
	require.NoError(t, err)

	_, err = f.badges.MarkRead(f.ctx, "eve", conversation.DirectConversationID("ann", "bob"))
	assert.ErrorIs(t, err, upforit_errors.ErrPermissionDenied)

	_, err = f.badges.OpenConversation(f.ctx, "eve", "missing")
	assert.ErrorIs(t, err, upforit_errors.ErrNotFound)
}

func TestOpenAndCloseConversation(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann")
	f.addUser(t, "bob")
	convID := conversation.DirectConversationID("ann", "bob")
	_, err := f.messages.SendDirect(f.ctx, "ann", "bob", "hi")
	require.NoError(t, err)

	badge, err := f.badges.OpenConversation(f.ctx, "bob", convID)
	require.NoError(t, err)
	assert.Equal(t, 0, badge)

	u, err := f.store.Users().GetUserByID(f.ctx, "bob")
	require.NoError(t, err)
	assert.True(t, u.IsViewing(convID))

	require.NoError(t, f.badges.CloseConversation(f.ctx, "bob", convID))
	u, err = f.store.Users().GetUserByID(f.ctx, "bob")
	require.NoError(t, err)
	assert.False(t, u.IsViewing(convID))
}

func TestCloseConversation_MessagesSeenWhileOpenStayRead(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann")
	f.addUser(t, "bob")
	convID := conversation.DirectConversationID("ann", "bob")
	_, err := f.conversations.StartDirect(f.ctx, "ann", "bob")
	require.NoError(t, err)

	_, err = f.badges.OpenConversation(f.ctx, "bob", convID)
	require.NoError(t, err)
	_, err = f.messages.SendDirect(f.ctx, "ann", "bob", "seen live")
	require.NoError(t, err)
	f.deliver(t)
	assert.Equal(t, 0, f.badge(t, "bob"))

	require.NoError(t, f.badges.CloseConversation(f.ctx, "bob", convID))

	unread, err := f.store.Messages().CountUnread(f.ctx, convID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
	badge, err := f.badges.RecomputeBadge(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, badge)

	// Once closed, new messages count again.
	_, err = f.messages.SendDirect(f.ctx, "ann", "bob", "after close")
	require.NoError(t, err)
	f.deliver(t)
	assert.Equal(t, 1, f.badge(t, "bob"))
}

func TestCloseConversation_ClearsViewingAfterLeaving(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann")
	require.NoError(t, f.store.Users().SetActiveChat(f.ctx, "ann", "gone", true))

	require.NoError(t, f.badges.CloseConversation(f.ctx, "ann", "gone"))

	u, err := f.store.Users().GetUserByID(f.ctx, "ann")
	require.NoError(t, err)
	assert.False(t, u.IsViewing("gone"))
}

func TestMarkRead_WatermarkFollowsStoredMessages(t *testing.T) {
	f := newFixture(t)
	// The store's clock runs an hour behind the app host.
	f.store.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
	f.addUser(t, "ann")
	f.addUser(t, "bob")
	convID := conversation.DirectConversationID("ann", "bob")

	_, err := f.messages.SendDirect(f.ctx, "ann", "bob", "first")
	require.NoError(t, err)
	badge, err := f.badges.MarkRead(f.ctx, "bob", convID)
	require.NoError(t, err)
	assert.Equal(t, 0, badge)

	_, err = f.messages.SendDirect(f.ctx, "ann", "bob", "unseen")
	require.NoError(t, err)

	unread, err := f.store.Messages().CountUnread(f.ctx, convID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
	badge, err = f.badges.RecomputeBadge(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, badge)
}
