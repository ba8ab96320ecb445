package repository

import (
	"context"
	"time"

	"upforit/internal/domain/conversation"

	"github.com/jackc/pgx/v5"
)

type PostgresConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

const conversationSelect = `
        SELECT c.id, c.kind, COALESCE(c.crew_id, ''), c.date, c.created_at,
               COALESCE(array_agg(m.user_id ORDER BY m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
        FROM conversations c
        LEFT JOIN conversation_members m ON m.conversation_id = c.id`

func scanConversation(row pgx.Row) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := row.Scan(&c.ID, &c.Kind, &c.CrewID, &c.Date, &c.CreatedAt, &c.MemberIDs)
	return c, err
}

func (r *PostgresConversationRepository) CreateIfNotExists(ctx context.Context, c *conversation.Conversation) (bool, error) {
	created := false
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		var crewID any
		if c.CrewID != "" {
			crewID = c.CrewID
		}
		res, err := tx.Exec(ctx, `
            INSERT INTO conversations (id, kind, crew_id, date, created_at)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (id) DO NOTHING
        `, c.ID, c.Kind, crewID, c.Date, c.CreatedAt)
		if err != nil {
			return translate(err)
		}

		if res.RowsAffected() == 1 {
			created = true
			for _, userID := range c.MemberIDs {
				if _, err := tx.Exec(ctx, `
                    INSERT INTO conversation_members (conversation_id, user_id)
                    VALUES ($1, $2)
                    ON CONFLICT DO NOTHING
                `, c.ID, userID); err != nil {
					return translate(err)
				}
			}
		}

		stored, err := scanConversation(tx.QueryRow(ctx, conversationSelect+`
            WHERE c.id = $1
            GROUP BY c.id
        `, c.ID))
		if err != nil {
			return translate(err)
		}
		*c = stored
		return nil
	})
	return created, err
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id string) (conversation.Conversation, error) {
	c, err := scanConversation(r.db.QueryRow(ctx, conversationSelect+`
        WHERE c.id = $1
        GROUP BY c.id
    `, id))
	if err != nil {
		return conversation.Conversation{}, translate(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) AddMember(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO conversation_members (conversation_id, user_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `, conversationID, userID)
	return translate(err)
}

func (r *PostgresConversationRepository) GetDirectConversations(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	return r.listByKind(ctx, userID, conversation.KindDirect)
}

func (r *PostgresConversationRepository) GetGroupConversations(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	return r.listByKind(ctx, userID, conversation.KindGroup)
}

func (r *PostgresConversationRepository) listByKind(ctx context.Context, userID string, kind conversation.Kind) ([]conversation.Conversation, error) {
	rows, err := r.db.Query(ctx, conversationSelect+`
        WHERE c.kind = $2
          AND EXISTS (
              SELECT 1 FROM conversation_members own
              WHERE own.conversation_id = c.id AND own.user_id = $1
          )
        GROUP BY c.id
        ORDER BY c.created_at ASC, c.id ASC
    `, userID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conversation.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresConversationRepository) MarkRead(ctx context.Context, userID, conversationID string, at time.Time) error {
	// GREATEST keeps the watermark monotonic under concurrent opens.
	_, err := r.db.Exec(ctx, `
        INSERT INTO read_states (user_id, conversation_id, last_read_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, conversation_id) DO UPDATE
        SET last_read_at = GREATEST(read_states.last_read_at, EXCLUDED.last_read_at)
    `, userID, conversationID, at)
	return translate(err)
}
