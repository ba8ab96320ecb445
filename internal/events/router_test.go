package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	upforit_errors "upforit/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newSetGuard() *setGuard {
	return &setGuard{seen: make(map[string]bool)}
}

func (g *setGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[eventID] {
		return false, nil
	}
	g.seen[eventID] = true
	return true, nil
}

func (g *setGuard) Release(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, eventID)
	return nil
}

func rawEnvelope(t *testing.T, id, eventType string, payload any) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Envelope{
		ID:          id,
		EventType:   eventType,
		OccurredAt:  time.Now().UTC(),
		Payload:     body,
		AggregateID: "agg",
	})
	require.NoError(t, err)
	return raw
}

func TestRouter_DispatchesByType(t *testing.T) {
	router := NewRouter(nil, nil)
	var got MessageCreated
	router.Register(EventTypeMessageCreated, func(ctx context.Context, env Envelope) error {
		return env.DecodePayload(&got)
	})

	want := MessageCreated{MessageID: "m1", ConversationID: "a_b", Kind: ConversationKindDirect, SenderID: "a", Text: "hi"}
	require.NoError(t, router.Handle(context.Background(), rawEnvelope(t, "e1", EventTypeMessageCreated, want)))
	assert.Equal(t, want, got)
}

func TestRouter_AcknowledgesWhatItCannotUse(t *testing.T) {
	router := NewRouter(nil, nil)
	calls := 0
	router.Register(EventTypeCrewDeleted, func(ctx context.Context, env Envelope) error {
		calls++
		return upforit_errors.ErrInvalidInput
	})
	ctx := context.Background()

	assert.NoError(t, router.Handle(ctx, []byte("{not json")))
	assert.NoError(t, router.Handle(ctx, []byte(`{"event_type":"crew.deleted"}`)))
	assert.NoError(t, router.Handle(ctx, rawEnvelope(t, "e1", "crew.renamed", map[string]string{})))
	assert.NoError(t, router.Handle(ctx, rawEnvelope(t, "e2", EventTypeCrewDeleted, map[string]string{})))
	assert.Equal(t, 1, calls)
}

func TestRouter_GuardSkipsRedelivery(t *testing.T) {
	router := NewRouter(newSetGuard(), nil)
	calls := 0
	router.Register(EventTypeAvailabilityChanged, func(ctx context.Context, env Envelope) error {
		calls++
		return nil
	})
	raw := rawEnvelope(t, "e1", EventTypeAvailabilityChanged, AvailabilityChanged{CrewID: "c", Date: "2025-06-01", UserID: "u"})

	require.NoError(t, router.Handle(context.Background(), raw))
	require.NoError(t, router.Handle(context.Background(), raw))
	assert.Equal(t, 1, calls)
}

func TestRouter_FailureReleasesGuard(t *testing.T) {
	router := NewRouter(newSetGuard(), nil)
	boom := errors.New("store down")
	calls := 0
	router.Register(EventTypeMessageCreated, func(ctx context.Context, env Envelope) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	})
	raw := rawEnvelope(t, "e1", EventTypeMessageCreated, map[string]string{})

	assert.ErrorIs(t, router.Handle(context.Background(), raw), boom)
	assert.NoError(t, router.Handle(context.Background(), raw))
	assert.NoError(t, router.Handle(context.Background(), raw))
	assert.Equal(t, 2, calls)
}

func TestRouter_GuardOutageStillProcesses(t *testing.T) {
	guard := newSetGuard()
	guard.err = errors.New("redis down")
	router := NewRouter(guard, nil)
	calls := 0
	router.Register(EventTypeCrewMemberJoined, func(ctx context.Context, env Envelope) error {
		calls++
		return nil
	})

	require.NoError(t, router.Handle(context.Background(), rawEnvelope(t, "e1", EventTypeCrewMemberJoined, map[string]string{})))
	assert.Equal(t, 1, calls)
}

func TestDecodePayload_Invalid(t *testing.T) {
	var ev MessageCreated
	assert.ErrorIs(t, Envelope{EventType: EventTypeMessageCreated}.DecodePayload(&ev), upforit_errors.ErrInvalidInput)
	assert.ErrorIs(t, Envelope{Payload: []byte(`[1,2]`)}.DecodePayload(&ev), upforit_errors.ErrInvalidInput)
}

func TestPayloadValidation(t *testing.T) {
	assert.ErrorIs(t, MessageCreated{MessageID: "m", ConversationID: "c", SenderID: "s", Kind: "broadcast"}.Validate(), upforit_errors.ErrInvalidInput)
	assert.ErrorIs(t, MembershipChanged{CrewID: "c"}.Validate(), upforit_errors.ErrInvalidInput)
	assert.NoError(t, AvailabilityChanged{CrewID: "c", Date: "d", UserID: "u"}.Validate())

	assert.True(t, AvailabilityChanged{UpForIt: true}.BecameUpForIt())
	assert.False(t, AvailabilityChanged{UpForIt: true, WasUpForIt: true}.BecameUpForIt())
	assert.False(t, AvailabilityChanged{WasUpForIt: true}.BecameUpForIt())
}

func TestChannels(t *testing.T) {
	assert.Equal(t, "channel:user:ann", UserChannel("ann"))
	assert.Equal(t, "channel:changes:crew", ChangeChannel(Envelope{AggregateType: AggregateCrew}))
	assert.Equal(t, "channel:changes:system", ChangeChannel(Envelope{AggregateType: "billing"}))
}
