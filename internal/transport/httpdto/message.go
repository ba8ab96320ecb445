package httpdto

import (
	"time"

	"upforit/internal/domain/conversation"
)

type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

type SendDirectRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	Text        string `json:"text" binding:"required"`
}

type MessageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

type ListMessagesResponse struct {
	Messages []MessageDTO `json:"messages"`
}

func FromMessage(m conversation.Message) MessageDTO {
	return MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
	}
}

func FromMessages(ms []conversation.Message) []MessageDTO {
	out := make([]MessageDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMessage(m))
	}
	return out
}
