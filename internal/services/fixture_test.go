package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"upforit/internal/domain/crew"
	"upforit/internal/domain/outbox"
	"upforit/internal/domain/user"
	"upforit/internal/events"
	"upforit/internal/push"
	"upforit/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

const testDate = "2025-06-01"

// fixture wires the services against the in-memory store the way cmd/api does,
// minus the network transports.
type fixture struct {
	ctx     context.Context
	store   *memory.Store
	pushes  *push.Recorder
	notices *noticeRecorder
	router  *events.Router

	badges        *BadgeService
	notifications *NotificationService
	crews         *CrewService
	messages      *MessageService
	conversations *ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	pushes := push.NewRecorder()
	notices := &noticeRecorder{}

	badges := NewBadgeService(store, notices, nil)
	notifications := NewNotificationService(store, badges, pushes, nil, nil)
	router := events.NewRouter(memory.NewGuard(), nil)
	notifications.RegisterHandlers(router)

	return &fixture{
		ctx:           context.Background(),
		store:         store,
		pushes:        pushes,
		notices:       notices,
		router:        router,
		badges:        badges,
		notifications: notifications,
		crews:         NewCrewService(store, nil),
		messages:      NewMessageService(store, nil, nil),
		conversations: NewConversationService(store),
	}
}

func pushToken(userID string) string {
	return "ExponentPushToken[" + userID + "]"
}

// addUser creates a user named after id with one valid push token.
func (f *fixture) addUser(t *testing.T, id string) user.User {
	t.Helper()
	u := user.User{ID: id, DisplayName: strings.ToUpper(id[:1]) + id[1:]}
	require.NoError(t, f.store.Users().Upsert(f.ctx, &u))
	require.NoError(t, f.store.Users().AddPushToken(f.ctx, id, pushToken(id)))
	return u
}

// addCrew creates a crew owned by owner and joins the other members.
func (f *fixture) addCrew(t *testing.T, name, owner string, members ...string) crew.Crew {
	t.Helper()
	c, err := f.crews.CreateCrew(f.ctx, owner, name)
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, f.crews.JoinCrew(f.ctx, m, c.ID))
	}
	return c
}

// deliver pushes every pending outbox row through the router, as the outbox
// processor and a change-stream source would.
func (f *fixture) deliver(t *testing.T) int {
	t.Helper()
	pending, err := f.store.Outbox().GetPending(f.ctx, 1000, 5)
	require.NoError(t, err)
	for _, e := range pending {
		require.NoError(t, f.router.Dispatch(f.ctx, envelopeOf(e)))
		require.NoError(t, f.store.Outbox().MarkCompleted(f.ctx, e.ID))
	}
	return len(pending)
}

// discard marks everything pending as published without handling it.
func (f *fixture) discard(t *testing.T) {
	t.Helper()
	pending, err := f.store.Outbox().GetPending(f.ctx, 1000, 5)
	require.NoError(t, err)
	for _, e := range pending {
		require.NoError(t, f.store.Outbox().MarkCompleted(f.ctx, e.ID))
	}
}

func (f *fixture) pending(t *testing.T, eventType string) []outbox.OutboxEvent {
	t.Helper()
	all, err := f.store.Outbox().GetPending(f.ctx, 1000, 5)
	require.NoError(t, err)
	var out []outbox.OutboxEvent
	for _, e := range all {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) badge(t *testing.T, userID string) int {
	t.Helper()
	n, err := f.badges.Badge(f.ctx, userID)
	require.NoError(t, err)
	return n
}

func envelopeOf(e outbox.OutboxEvent) events.Envelope {
	return events.Envelope{
		ID:            e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OccurredAt:    e.CreatedAt,
		Payload:       e.Payload,
	}
}

// pushedTo lists the device tokens of the recorded messages.
func pushedTo(msgs []push.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.To)
	}
	return out
}

type noticeRecorder struct {
	mu       sync.Mutex
	channels []string
	notices  []any
}

func (n *noticeRecorder) PublishJSON(ctx context.Context, channel string, v any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, channel)
	n.notices = append(n.notices, v)
	return nil
}

func (n *noticeRecorder) last() (string, any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return "", nil
	}
	return n.channels[len(n.channels)-1], n.notices[len(n.notices)-1]
}
