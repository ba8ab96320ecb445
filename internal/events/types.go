package events

import (
	upforit_errors "upforit/pkg/errors"
)

// Event types follow the format: domain.action
const (
	EventTypeMessageCreated      = "message.created"
	EventTypeCrewMemberJoined    = "crew.member_joined"
	EventTypeCrewMemberLeft      = "crew.member_left"
	EventTypeCrewDeleted         = "crew.deleted"
	EventTypeAvailabilityChanged = "availability.changed"
)

// Aggregate types, used for routing on the change stream.
const (
	AggregateMessage      = "message"
	AggregateCrew         = "crew"
	AggregateAvailability = "availability"
)

const (
	ConversationKindDirect = "direct"
	ConversationKindGroup  = "group"
)

// MessageCreated is emitted once per message appended to a conversation.
type MessageCreated struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"`
	SenderID       string `json:"sender_id"`
	Text           string `json:"text"`
	CrewID         string `json:"crew_id,omitempty"`
	Date           string `json:"date,omitempty"`
}

func (e MessageCreated) Validate() error {
	if e.MessageID == "" || e.ConversationID == "" || e.SenderID == "" {
		return upforit_errors.ErrInvalidInput
	}
	if e.Kind != ConversationKindDirect && e.Kind != ConversationKindGroup {
		return upforit_errors.ErrInvalidInput
	}
	return nil
}

// MembershipChanged describes a join, leave or crew deletion. Members is the
// membership as it was before the change.
type MembershipChanged struct {
	CrewID   string   `json:"crew_id"`
	CrewName string   `json:"crew_name"`
	ActorID  string   `json:"actor_id"`
	Members  []string `json:"members"`
}

func (e MembershipChanged) Validate() error {
	if e.CrewID == "" || e.ActorID == "" {
		return upforit_errors.ErrInvalidInput
	}
	return nil
}

// AvailabilityChanged is emitted whenever a member writes their "up for it" flag.
type AvailabilityChanged struct {
	CrewID     string `json:"crew_id"`
	Date       string `json:"date"`
	UserID     string `json:"user_id"`
	UpForIt    bool   `json:"up_for_it"`
	WasUpForIt bool   `json:"was_up_for_it"`
}

func (e AvailabilityChanged) Validate() error {
	if e.CrewID == "" || e.Date == "" || e.UserID == "" {
		return upforit_errors.ErrInvalidInput
	}
	return nil
}

// BecameUpForIt reports a transition from not-up to up.
func (e AvailabilityChanged) BecameUpForIt() bool {
	return e.UpForIt && !e.WasUpForIt
}
