package repository

import (
	"context"
	"time"

	"upforit/internal/domain/user"
	upforit_errors "upforit/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type PostgresUserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) UserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `u.id, u.display_name, u.avatar_url, u.badge_count, u.active_chats,
        COALESCE(array_agg(t.token ORDER BY t.created_at) FILTER (WHERE t.token IS NOT NULL), '{}'),
        u.created_at, u.updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.DisplayName,
		&u.AvatarURL,
		&u.BadgeCount,
		&u.ActiveChats,
		&u.PushTokens,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (r *PostgresUserRepository) Upsert(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `
        INSERT INTO users (id, display_name, avatar_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT (id) DO UPDATE
        SET display_name = EXCLUDED.display_name,
            avatar_url = EXCLUDED.avatar_url,
            updated_at = EXCLUDED.updated_at
        RETURNING badge_count, active_chats, created_at, updated_at
    `, u.ID, u.DisplayName, u.AvatarURL, now).Scan(&u.BadgeCount, &u.ActiveChats, &u.CreatedAt, &u.UpdatedAt)
	return translate(err)
}

func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `
        SELECT `+userColumns+`
        FROM users u
        LEFT JOIN push_tokens t ON t.user_id = u.id
        WHERE u.id = $1
        GROUP BY u.id
    `, id))
	if err != nil {
		return user.User{}, translate(err)
	}
	return u, nil
}

func (r *PostgresUserRepository) GetUsersByIDs(ctx context.Context, ids []string) ([]user.User, error) {
	if len(ids) > MaxDirectoryBatch {
		return nil, upforit_errors.ErrInvalidInput
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
        SELECT `+userColumns+`
        FROM users u
        LEFT JOIN push_tokens t ON t.user_id = u.id
        WHERE u.id = ANY($1)
        GROUP BY u.id
    `, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PostgresUserRepository) AddPushToken(ctx context.Context, userID, token string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO push_tokens (user_id, token, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, token) DO NOTHING
    `, userID, token, time.Now().UTC())
	return translate(err)
}

func (r *PostgresUserRepository) RemovePushToken(ctx context.Context, userID, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM push_tokens WHERE user_id = $1 AND token = $2`, userID, token)
	return err
}

func (r *PostgresUserRepository) SetActiveChat(ctx context.Context, userID, conversationID string, active bool) error {
	res, err := r.db.Exec(ctx, `
        UPDATE users
        SET active_chats = CASE
                WHEN NOT $3 THEN array_remove(active_chats, $2)
                WHEN $2 = ANY(active_chats) THEN active_chats
                ELSE array_append(active_chats, $2)
            END,
            updated_at = $4
        WHERE id = $1
    `, userID, conversationID, active, time.Now().UTC())
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return upforit_errors.ErrNotFound
	}
	return nil
}

// MutateBadge holds a row lock on the user for the duration of fn.
func (r *PostgresUserRepository) MutateBadge(ctx context.Context, userID string, fn func(u *user.User) (bool, error)) (user.User, error) {
	var out user.User
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		var u user.User
		err := tx.QueryRow(ctx, `
            SELECT id, display_name, avatar_url, badge_count, active_chats, created_at, updated_at
            FROM users
            WHERE id = $1
            FOR UPDATE
        `, userID).Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.BadgeCount, &u.ActiveChats, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return translate(err)
		}

		write, err := fn(&u)
		if err != nil {
			return err
		}
		if write {
			if u.BadgeCount < 0 {
				u.BadgeCount = 0
			}
			u.UpdatedAt = time.Now().UTC()
			if _, err := tx.Exec(ctx, `
                UPDATE users SET badge_count = $2, updated_at = $3 WHERE id = $1
            `, userID, u.BadgeCount, u.UpdatedAt); err != nil {
				return err
			}
		}
		out = u
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return out, nil
}
