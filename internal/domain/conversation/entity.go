package conversation

import (
	"sort"
	"strings"
	"time"
)

type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

const idSeparator = "_"

// Conversation represents the conversations table
type Conversation struct {
	ID        string
	Kind      Kind
	CrewID    string
	Date      string
	MemberIDs []string
	CreatedAt time.Time
}

// Message represents the messages table. Messages are immutable once stored.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	CreatedAt      time.Time
}

// ReadState represents the read_states table. It is the only definition of "read":
// a message is unread for a user when it was sent by someone else after LastReadAt.
type ReadState struct {
	UserID         string
	ConversationID string
	LastReadAt     time.Time
}

// DirectConversationID derives the id of the 1:1 conversation between a and b.
// The result does not depend on argument order.
func DirectConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, idSeparator)
}

// GroupConversationID derives the id of the group chat for one crew and date.
func GroupConversationID(crewID, date string) string {
	return crewID + idSeparator + date
}

// OtherMembers returns MemberIDs without userID.
func (c Conversation) OtherMembers(userID string) []string {
	out := make([]string, 0, len(c.MemberIDs))
	for _, id := range c.MemberIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// HasMember reports whether userID belongs to the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
