package services

import (
	"testing"
	"time"

	"upforit/internal/domain/conversation"
	"upforit/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type aggregatorFixture struct {
	*fixture
	cache      *memory.Cache
	aggregator *ConversationAggregator
}

func newAggregatorFixture(t *testing.T) *aggregatorFixture {
	f := newFixture(t)
	cache := memory.NewCache()
	return &aggregatorFixture{
		fixture:    f,
		cache:      cache,
		aggregator: NewConversationAggregator(f.store, cache, 2, nil),
	}
}

// seedInbox gives uma four direct conversations created in the order cyd, abe,
// nia, bea. Messages arrive abe, then bea, then cyd; nia never writes.
func (f *aggregatorFixture) seedInbox(t *testing.T) {
	t.Helper()
	f.addUser(t, "uma")
	for _, id := range []string{"cyd", "abe", "nia", "bea"} {
		f.addUser(t, id)
		_, err := f.conversations.StartDirect(f.ctx, "uma", id)
		require.NoError(t, err)
	}
	for _, id := range []string{"abe", "bea", "cyd"} {
		_, err := f.messages.SendDirect(f.ctx, id, "uma", "hi from "+id)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
}

func titles(rows []conversation.Summary) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Title)
	}
	return out
}

func TestBuildConversationList_OrdersByLastMessage(t *testing.T) {
	f := newAggregatorFixture(t)
	f.seedInbox(t)

	rows, err := f.aggregator.BuildConversationList(f.ctx, "uma", "")
	require.NoError(t, err)
	f.aggregator.Wait()

	assert.Equal(t, []string{"Cyd", "Bea", "Abe", "Nia"}, titles(rows))
	assert.Nil(t, rows[3].LastMessage)
	require.NotNil(t, rows[0].LastMessage)
	assert.Equal(t, "hi from cyd", rows[0].LastMessage.Text)
	assert.Equal(t, "Cyd", rows[0].LastMessage.SenderName)
	for _, r := range rows[:3] {
		assert.Equal(t, 1, r.Unread)
	}
	assert.Equal(t, 0, rows[3].Unread)
}

func TestBuildConversationList_FilterIgnoresCase(t *testing.T) {
	f := newAggregatorFixture(t)
	f.seedInbox(t)

	rows, err := f.aggregator.BuildConversationList(f.ctx, "uma", "BE")
	require.NoError(t, err)
	f.aggregator.Wait()
	assert.Equal(t, []string{"Bea", "Abe"}, titles(rows))

	cached, err := f.aggregator.Cached(f.ctx, "uma")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cyd", "Bea", "Abe", "Nia"}, titles(cached), "the cache keeps the unfiltered list")

	rows, err = f.aggregator.BuildConversationList(f.ctx, "uma", "zzz")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuildConversationList_CacheWriteBackOnlyOnChange(t *testing.T) {
	f := newAggregatorFixture(t)
	f.seedInbox(t)
	abe := conversation.DirectConversationID("uma", "abe")
	nia := conversation.DirectConversationID("uma", "nia")

	_, err := f.aggregator.BuildConversationList(f.ctx, "uma", "")
	require.NoError(t, err)
	f.aggregator.Wait()
	assert.Equal(t, 1, f.cache.LastMessageWrites(abe))
	assert.Equal(t, 1, f.cache.LastMessageWrites(nia), "empty conversations are cached too")

	_, err = f.aggregator.BuildConversationList(f.ctx, "uma", "")
	require.NoError(t, err)
	f.aggregator.Wait()
	assert.Equal(t, 1, f.cache.LastMessageWrites(abe))
	assert.Equal(t, 1, f.cache.LastMessageWrites(nia))

	time.Sleep(2 * time.Millisecond)
	_, err = f.messages.SendDirect(f.ctx, "abe", "uma", "still on?")
	require.NoError(t, err)

	// The cached preview is served first and refreshed behind the response.
	rows, err := f.aggregator.BuildConversationList(f.ctx, "uma", "abe")
	require.NoError(t, err)
	f.aggregator.Wait()
	require.Len(t, rows, 1)
	assert.Equal(t, "hi from abe", rows[0].LastMessage.Text)
	assert.Equal(t, 2, rows[0].Unread, "unread always comes from the store")
	assert.Equal(t, 2, f.cache.LastMessageWrites(abe))

	rows, err = f.aggregator.BuildConversationList(f.ctx, "uma", "")
	require.NoError(t, err)
	f.aggregator.Wait()
	assert.Equal(t, "Abe", rows[0].Title)
	assert.Equal(t, "still on?", rows[0].LastMessage.Text)
	assert.Equal(t, 2, f.cache.LastMessageWrites(abe))
}

func TestCached_MissBeforeFirstBuild(t *testing.T) {
	f := newAggregatorFixture(t)

	rows, err := f.aggregator.Cached(f.ctx, "uma")
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestBuildConversationList_MergesGroupChats(t *testing.T) {
	f := newAggregatorFixture(t)
	for _, id := range []string{"ann", "bob", "cat"} {
		f.addUser(t, id)
	}
	c := f.addCrew(t, "Rowing Club", "ann", "bob", "cat")
	require.NoError(t, f.crews.SetAvailability(f.ctx, "ann", c.ID, testDate, true))
	require.NoError(t, f.crews.SetAvailability(f.ctx, "bob", c.ID, testDate, true))
	group, _, err := f.conversations.CreateGroupChat(f.ctx, "ann", c.ID, testDate)
	require.NoError(t, err)
	_, err = f.conversations.StartDirect(f.ctx, "ann", "cat")
	require.NoError(t, err)
	_, err = f.messages.Send(f.ctx, "bob", group.ID, "8pm?")
	require.NoError(t, err)

	rows, err := f.aggregator.BuildConversationList(f.ctx, "ann", "")
	require.NoError(t, err)
	f.aggregator.Wait()

	require.Len(t, rows, 2)
	assert.Equal(t, conversation.KindGroup, rows[0].Kind)
	assert.Equal(t, "Rowing Club - Sun 1 Jun", rows[0].Title)
	assert.Equal(t, testDate, rows[0].Date)
	assert.Equal(t, "Bob", rows[0].LastMessage.SenderName)
	assert.Equal(t, 1, rows[0].Unread)
	assert.Equal(t, "Cat", rows[1].Title)
	assert.Nil(t, rows[1].LastMessage)
}
