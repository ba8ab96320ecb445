package repository

import (
	"context"
	"time"

	"upforit/internal/domain/conversation"
	upforit_errors "upforit/pkg/errors"
)

type PostgresMessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

// Create lets the database stamp created_at. The conversation row is locked so that
// timestamps are strictly increasing per conversation.
func (r *PostgresMessageRepository) Create(ctx context.Context, m *conversation.Message) error {
	if m.Text == "" {
		return upforit_errors.ErrInvalidInput
	}
	return WithTx(ctx, r.db, func(tx DBTX) error {
		if _, err := tx.Exec(ctx, `
            SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE
        `, m.ConversationID); err != nil {
			return err
		}

		var last time.Time
		if err := tx.QueryRow(ctx, `
            SELECT COALESCE(max(created_at), 'epoch'::timestamptz)
            FROM messages
            WHERE conversation_id = $1
        `, m.ConversationID).Scan(&last); err != nil {
			return err
		}

		return translate(tx.QueryRow(ctx, `
            INSERT INTO messages (id, conversation_id, sender_id, text, created_at)
            VALUES ($1, $2, $3, $4, GREATEST(clock_timestamp(), $5::timestamptz + interval '1 microsecond'))
            RETURNING created_at
        `, m.ID, m.ConversationID, m.SenderID, m.Text, last).Scan(&m.CreatedAt))
	})
}

func (r *PostgresMessageRepository) GetLatest(ctx context.Context, conversationID string) (conversation.Message, error) {
	var m conversation.Message
	err := r.db.QueryRow(ctx, `
        SELECT id, conversation_id, sender_id, text, created_at
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at DESC
        LIMIT 1
    `, conversationID).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.CreatedAt)
	if err != nil {
		return conversation.Message{}, translate(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) List(ctx context.Context, conversationID string, before time.Time, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var beforeArg any
	if !before.IsZero() {
		beforeArg = before
	}
	rows, err := r.db.Query(ctx, `
        SELECT id, conversation_id, sender_id, text, created_at
        FROM messages
        WHERE conversation_id = $1
          AND ($2::timestamptz IS NULL OR created_at < $2)
        ORDER BY created_at DESC
        LIMIT $3
    `, conversationID, beforeArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conversation.Message
	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepository) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
        SELECT count(*)
        FROM messages m
        LEFT JOIN read_states rs
          ON rs.conversation_id = m.conversation_id AND rs.user_id = $2
        WHERE m.conversation_id = $1
          AND m.sender_id <> $2
          AND (rs.last_read_at IS NULL OR m.created_at > rs.last_read_at)
    `, conversationID, userID).Scan(&n)
	return n, err
}

func (r *PostgresMessageRepository) CountUnreadTotal(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
        SELECT count(*)
        FROM conversation_members cm
        JOIN messages m ON m.conversation_id = cm.conversation_id
        LEFT JOIN read_states rs
          ON rs.conversation_id = cm.conversation_id AND rs.user_id = cm.user_id
        WHERE cm.user_id = $1
          AND m.sender_id <> $1
          AND (rs.last_read_at IS NULL OR m.created_at > rs.last_read_at)
    `, userID).Scan(&n)
	return n, err
}
