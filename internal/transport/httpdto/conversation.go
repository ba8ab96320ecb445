package httpdto

import (
	"time"

	"upforit/internal/domain/conversation"
)

type LastMessageDTO struct {
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type ConversationSummaryDTO struct {
	ConversationID string          `json:"conversation_id"`
	Kind           string          `json:"kind"`
	Title          string          `json:"title"`
	CrewID         string          `json:"crew_id,omitempty"`
	Date           string          `json:"date,omitempty"`
	LastMessage    *LastMessageDTO `json:"last_message,omitempty"`
	Unread         int             `json:"unread"`
}

type ConversationListResponse struct {
	Conversations []ConversationSummaryDTO `json:"conversations"`
	Cached        bool                     `json:"cached"`
}

type ConversationDTO struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CrewID    string    `json:"crew_id,omitempty"`
	Date      string    `json:"date,omitempty"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

type StartDirectRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type CreateGroupChatRequest struct {
	CrewID string `json:"crew_id" binding:"required"`
	Date   string `json:"date" binding:"required"`
}

type BadgeResponse struct {
	Badge int `json:"badge"`
}

func FromConversation(c conversation.Conversation) ConversationDTO {
	members := c.MemberIDs
	if members == nil {
		members = []string{}
	}
	return ConversationDTO{
		ID:        c.ID,
		Kind:      string(c.Kind),
		CrewID:    c.CrewID,
		Date:      c.Date,
		MemberIDs: members,
		CreatedAt: c.CreatedAt,
	}
}

func FromSummaries(items []conversation.Summary) []ConversationSummaryDTO {
	out := make([]ConversationSummaryDTO, 0, len(items))
	for _, item := range items {
		dto := ConversationSummaryDTO{
			ConversationID: item.ConversationID,
			Kind:           string(item.Kind),
			Title:          item.Title,
			CrewID:         item.CrewID,
			Date:           item.Date,
			Unread:         item.Unread,
		}
		if m := item.LastMessage; m != nil {
			dto.LastMessage = &LastMessageDTO{
				MessageID:  m.MessageID,
				SenderID:   m.SenderID,
				SenderName: m.SenderName,
				Text:       m.Text,
				CreatedAt:  m.CreatedAt,
			}
		}
		out = append(out, dto)
	}
	return out
}
