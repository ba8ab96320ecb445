package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/crew"
	"upforit/internal/domain/user"
	upforit_errors "upforit/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUsers(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.Users().Upsert(context.Background(), &user.User{ID: id, DisplayName: id}))
	}
}

func TestGetUsersByIDs_BatchLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	var ids []string
	for i := range 11 {
		ids = append(ids, fmt.Sprintf("u%d", i))
	}
	seedUsers(t, s, ids...)

	_, err := s.Users().GetUsersByIDs(ctx, ids)
	assert.ErrorIs(t, err, upforit_errors.ErrInvalidInput)

	got, err := s.Users().GetUsersByIDs(ctx, append(ids[:9], "ghost"))
	require.NoError(t, err)
	assert.Len(t, got, 9)
}

func TestMutateBadge_ClampsAndSkipsUnwritten(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUsers(t, s, "ann")

	u, err := s.Users().MutateBadge(ctx, "ann", func(u *user.User) (bool, error) {
		u.BadgeCount = -3
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, u.BadgeCount)

	_, err = s.Users().MutateBadge(ctx, "ann", func(u *user.User) (bool, error) {
		u.BadgeCount = 99
		return false, nil
	})
	require.NoError(t, err)
	stored, err := s.Users().GetUserByID(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.BadgeCount)

	_, err = s.Users().MutateBadge(ctx, "ghost", func(u *user.User) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, upforit_errors.ErrNotFound)
}

func TestUpsert_KeepsBadgeAndTokens(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUsers(t, s, "ann")
	require.NoError(t, s.Users().AddPushToken(ctx, "ann", "ExponentPushToken[a]"))
	require.NoError(t, s.Users().AddPushToken(ctx, "ann", "ExponentPushToken[a]"))
	_, err := s.Users().MutateBadge(ctx, "ann", func(u *user.User) (bool, error) {
		u.BadgeCount = 4
		return true, nil
	})
	require.NoError(t, err)

	u := user.User{ID: "ann", DisplayName: "Annie"}
	require.NoError(t, s.Users().Upsert(ctx, &u))
	assert.Equal(t, "Annie", u.DisplayName)
	assert.Equal(t, 4, u.BadgeCount)
	assert.Equal(t, []string{"ExponentPushToken[a]"}, u.PushTokens)
}

func TestMessages_TimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUsers(t, s, "ann", "bob")
	fixed := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	conv := conversation.Conversation{ID: "ann_bob", Kind: conversation.KindDirect, MemberIDs: []string{"bob", "ann", "bob"}}
	created, err := s.Conversations().CreateIfNotExists(ctx, &conv)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"ann", "bob"}, conv.MemberIDs)

	var prev time.Time
	for i := range 5 {
		m := conversation.Message{ID: fmt.Sprint(i), ConversationID: conv.ID, SenderID: "ann", Text: "x"}
		require.NoError(t, s.Messages().Create(ctx, &m))
		assert.True(t, m.CreatedAt.After(prev))
		prev = m.CreatedAt
	}

	latest, err := s.Messages().GetLatest(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "4", latest.ID)
}

func TestCountUnread_UsesReadWatermark(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUsers(t, s, "ann", "bob")
	conv := conversation.Conversation{ID: "ann_bob", Kind: conversation.KindDirect, MemberIDs: []string{"ann", "bob"}}
	_, err := s.Conversations().CreateIfNotExists(ctx, &conv)
	require.NoError(t, err)

	send := func(sender string) conversation.Message {
		m := conversation.Message{ConversationID: conv.ID, SenderID: sender, Text: "x"}
		require.NoError(t, s.Messages().Create(ctx, &m))
		return m
	}
	send("ann")
	second := send("ann")
	send("bob")

	n, err := s.Messages().CountUnread(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "own messages never count")

	require.NoError(t, s.Conversations().MarkRead(ctx, "bob", conv.ID, second.CreatedAt))
	n, err = s.Messages().CountUnread(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// The watermark never moves backwards.
	require.NoError(t, s.Conversations().MarkRead(ctx, "bob", conv.ID, time.Time{}))
	send("ann")
	total, err := s.Messages().CountUnreadTotal(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestCrews_AvailabilityAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedUsers(t, s, "ann", "bob")

	require.ErrorIs(t, s.Crews().Create(ctx, &crew.Crew{ID: "c1", Name: "Crew", OwnerID: "ghost"}), upforit_errors.ErrNotFound)
	require.NoError(t, s.Crews().Create(ctx, &crew.Crew{ID: "c1", Name: "Crew", OwnerID: "ann"}))
	require.NoError(t, s.Crews().AddMember(ctx, &crew.Member{CrewID: "c1", UserID: "ann"}))
	assert.ErrorIs(t, s.Crews().AddMember(ctx, &crew.Member{CrewID: "c1", UserID: "ann"}), upforit_errors.ErrAlreadyExists)

	prev, err := s.Crews().SetAvailability(ctx, crew.Availability{CrewID: "c1", Date: "2025-06-01", UserID: "bob", UpForIt: true})
	require.NoError(t, err)
	assert.False(t, prev)
	prev, err = s.Crews().SetAvailability(ctx, crew.Availability{CrewID: "c1", Date: "2025-06-01", UserID: "ann", UpForIt: true})
	require.NoError(t, err)
	assert.False(t, prev)
	prev, err = s.Crews().SetAvailability(ctx, crew.Availability{CrewID: "c1", Date: "2025-06-01", UserID: "bob", UpForIt: false})
	require.NoError(t, err)
	assert.True(t, prev)

	flags, err := s.Crews().GetAvailability(ctx, "c1", "2025-06-01")
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, "ann", flags[0].UserID)

	group := conversation.Conversation{ID: "c1_2025-06-01", Kind: conversation.KindGroup, CrewID: "c1", Date: "2025-06-01", MemberIDs: []string{"ann"}}
	_, err = s.Conversations().CreateIfNotExists(ctx, &group)
	require.NoError(t, err)

	require.NoError(t, s.Crews().Delete(ctx, "c1"))
	_, err = s.Conversations().GetByID(ctx, group.ID)
	assert.ErrorIs(t, err, upforit_errors.ErrNotFound)
	up, err := s.Crews().IsUpForIt(ctx, "c1", "2025-06-01", "ann")
	require.NoError(t, err)
	assert.False(t, up)
}

func TestCache_CountsLastMessageWrites(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	_, found, err := c.GetLastMessage(ctx, "x")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetLastMessage(ctx, "x", nil))
	m, found, err := c.GetLastMessage(ctx, "x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, m)
	assert.Equal(t, 1, c.LastMessageWrites("x"))

	list, err := c.GetChatList(ctx, "ann")
	require.NoError(t, err)
	assert.Nil(t, list)
	require.NoError(t, c.SetChatList(ctx, "ann", nil))
	list, err = c.GetChatList(ctx, "ann")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	g := NewGuard()

	ok, err := g.Claim(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = g.Claim(ctx, "e1")
	assert.False(t, ok)

	require.NoError(t, g.Release(ctx, "e1"))
	ok, _ = g.Claim(ctx, "e1")
	assert.True(t, ok)
}
