package conversation

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// sortableTime is fixed width so cached timestamps compare correctly as strings.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// LastMessage is the denormalised preview shown in the chat list.
type LastMessage struct {
	MessageID  string
	SenderID   string
	SenderName string
	Text       string
	CreatedAt  time.Time
}

// Equal compares previews by value.
func (m *LastMessage) Equal(other *LastMessage) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.MessageID == other.MessageID &&
		m.SenderID == other.SenderID &&
		m.SenderName == other.SenderName &&
		m.Text == other.Text &&
		m.CreatedAt.Equal(other.CreatedAt)
}

// Summary is one row of a user's conversation list.
type Summary struct {
	ConversationID string
	Kind           Kind
	Title          string
	CrewID         string
	Date           string
	LastMessage    *LastMessage
	Unread         int
}

// SortSummaries orders rows by last message time, newest first. Rows without
// messages go last and keep their relative order.
func SortSummaries(items []Summary) {
	slices.SortStableFunc(items, func(a, b Summary) int {
		switch {
		case a.LastMessage == nil && b.LastMessage == nil:
			return 0
		case a.LastMessage == nil:
			return 1
		case b.LastMessage == nil:
			return -1
		}
		return b.LastMessage.CreatedAt.Compare(a.LastMessage.CreatedAt)
	})
}

// FilterSummaries keeps rows whose title contains query, ignoring case.
func FilterSummaries(items []Summary, query string) []Summary {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items
	}
	out := make([]Summary, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Title), query) {
			out = append(out, item)
		}
	}
	return out
}

type cachedLastMessage struct {
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at"`
}

type cachedSummary struct {
	ConversationID string             `json:"conversation_id"`
	Kind           Kind               `json:"kind"`
	Title          string             `json:"title"`
	CrewID         string             `json:"crew_id,omitempty"`
	Date           string             `json:"date,omitempty"`
	LastMessage    *cachedLastMessage `json:"last_message,omitempty"`
	Unread         int                `json:"unread"`
}

func toCachedLastMessage(m *LastMessage) *cachedLastMessage {
	if m == nil {
		return nil
	}
	return &cachedLastMessage{
		MessageID:  m.MessageID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt.UTC().Format(sortableTime),
	}
}

func fromCachedLastMessage(c *cachedLastMessage) (*LastMessage, error) {
	if c == nil {
		return nil, nil
	}
	at, err := time.Parse(sortableTime, c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &LastMessage{
		MessageID:  c.MessageID,
		SenderID:   c.SenderID,
		SenderName: c.SenderName,
		Text:       c.Text,
		CreatedAt:  at,
	}, nil
}

// EncodeLastMessage serialises a preview for the metadata cache.
func EncodeLastMessage(m *LastMessage) ([]byte, error) {
	return json.Marshal(toCachedLastMessage(m))
}

// DecodeLastMessage is the inverse of EncodeLastMessage. A JSON null yields nil.
func DecodeLastMessage(data []byte) (*LastMessage, error) {
	var c *cachedLastMessage
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return fromCachedLastMessage(c)
}

// EncodeSummaries serialises a chat list for the chat-list cache.
func EncodeSummaries(items []Summary) ([]byte, error) {
	out := make([]cachedSummary, 0, len(items))
	for _, item := range items {
		out = append(out, cachedSummary{
			ConversationID: item.ConversationID,
			Kind:           item.Kind,
			Title:          item.Title,
			CrewID:         item.CrewID,
			Date:           item.Date,
			LastMessage:    toCachedLastMessage(item.LastMessage),
			Unread:         item.Unread,
		})
	}
	return json.Marshal(out)
}

// DecodeSummaries is the inverse of EncodeSummaries.
func DecodeSummaries(data []byte) ([]Summary, error) {
	var cached []cachedSummary
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(cached))
	for _, c := range cached {
		last, err := fromCachedLastMessage(c.LastMessage)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{
			ConversationID: c.ConversationID,
			Kind:           c.Kind,
			Title:          c.Title,
			CrewID:         c.CrewID,
			Date:           c.Date,
			LastMessage:    last,
			Unread:         c.Unread,
		})
	}
	return out, nil
}
