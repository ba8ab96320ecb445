package services

import (
	"testing"

	"upforit/internal/domain/conversation"
	upforit_errors "upforit/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartDirect_IsSymmetric(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann")
	f.addUser(t, "bob")

	a, err := f.conversations.StartDirect(f.ctx, "ann", "bob")
	require.NoError(t, err)
	b, err := f.conversations.StartDirect(f.ctx, "bob", "ann")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, conversation.KindDirect, a.Kind)
	assert.Equal(t, []string{"ann", "bob"}, b.MemberIDs)

	_, err = f.conversations.StartDirect(f.ctx, "ann", "ann")
	assert.ErrorIs(t, err, upforit_errors.ErrInvalidInput)
}

func TestCreateGroupChat(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"ann", "bob", "cat", "eve"} {
		f.addUser(t, id)
	}
	c := f.addCrew(t, "Crew", "ann", "bob", "cat")

	_, _, err := f.conversations.CreateGroupChat(f.ctx, "ann", c.ID, testDate)
	assert.ErrorIs(t, err, upforit_errors.ErrPermissionDenied, "only members up for it may open the chat")
	_, _, err = f.conversations.CreateGroupChat(f.ctx, "eve", c.ID, testDate)
	assert.ErrorIs(t, err, upforit_errors.ErrPermissionDenied)
	_, _, err = f.conversations.CreateGroupChat(f.ctx, "ann", c.ID, "someday")
	assert.ErrorIs(t, err, upforit_errors.ErrInvalidInput)

	require.NoError(t, f.crews.SetAvailability(f.ctx, "ann", c.ID, testDate, true))
	require.NoError(t, f.crews.SetAvailability(f.ctx, "cat", c.ID, testDate, true))

	conv, created, err := f.conversations.CreateGroupChat(f.ctx, "cat", c.ID, testDate)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, conversation.GroupConversationID(c.ID, testDate), conv.ID)
	assert.Equal(t, []string{"ann", "cat"}, conv.MemberIDs)

	again, created, err := f.conversations.CreateGroupChat(f.ctx, "ann", c.ID, testDate)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
}
