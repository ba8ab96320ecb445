package repository

import (
	"context"
	"time"

	"upforit/internal/domain/crew"
	upforit_errors "upforit/pkg/errors"
)

type PostgresCrewRepository struct {
	db DBTX
}

func NewCrewRepository(db DBTX) CrewRepository {
	return &PostgresCrewRepository{db: db}
}

func (r *PostgresCrewRepository) Create(ctx context.Context, c *crew.Crew) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO crews (id, name, owner_id, created_at)
        VALUES ($1, $2, $3, $4)
    `, c.ID, c.Name, c.OwnerID, c.CreatedAt)
	return translate(err)
}

func (r *PostgresCrewRepository) GetByID(ctx context.Context, id string) (crew.Crew, error) {
	var c crew.Crew
	err := r.db.QueryRow(ctx, `
        SELECT id, name, owner_id, created_at FROM crews WHERE id = $1
    `, id).Scan(&c.ID, &c.Name, &c.OwnerID, &c.CreatedAt)
	if err != nil {
		return crew.Crew{}, translate(err)
	}
	return c, nil
}

func (r *PostgresCrewRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Exec(ctx, `DELETE FROM crews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return upforit_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresCrewRepository) GetUserCrews(ctx context.Context, userID string) ([]crew.Crew, error) {
	rows, err := r.db.Query(ctx, `
        SELECT c.id, c.name, c.owner_id, c.created_at
        FROM crews c
        JOIN crew_members m ON m.crew_id = c.id
        WHERE m.user_id = $1
        ORDER BY c.name ASC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crews []crew.Crew
	for rows.Next() {
		var c crew.Crew
		if err := rows.Scan(&c.ID, &c.Name, &c.OwnerID, &c.CreatedAt); err != nil {
			return nil, err
		}
		crews = append(crews, c)
	}
	return crews, rows.Err()
}

func (r *PostgresCrewRepository) AddMember(ctx context.Context, m *crew.Member) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO crew_members (crew_id, user_id, joined_at)
        VALUES ($1, $2, $3)
    `, m.CrewID, m.UserID, m.JoinedAt)
	return translate(err)
}

func (r *PostgresCrewRepository) RemoveMember(ctx context.Context, crewID, userID string) error {
	res, err := r.db.Exec(ctx, `
        DELETE FROM crew_members WHERE crew_id = $1 AND user_id = $2
    `, crewID, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return upforit_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresCrewRepository) GetMemberIDs(ctx context.Context, crewID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
        SELECT user_id FROM crew_members WHERE crew_id = $1 ORDER BY joined_at ASC, user_id ASC
    `, crewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresCrewRepository) IsMember(ctx context.Context, crewID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM crew_members WHERE crew_id = $1 AND user_id = $2)
    `, crewID, userID).Scan(&ok)
	return ok, err
}

func (r *PostgresCrewRepository) SetAvailability(ctx context.Context, a crew.Availability) (bool, error) {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	// The CTE reads the row as it was before the upsert.
	var previous bool
	err := r.db.QueryRow(ctx, `
        WITH prev AS (
            SELECT up_for_it FROM availability
            WHERE crew_id = $1 AND date = $2 AND user_id = $3
        ), upsert AS (
            INSERT INTO availability (crew_id, date, user_id, up_for_it, updated_at)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (crew_id, date, user_id) DO UPDATE
            SET up_for_it = EXCLUDED.up_for_it, updated_at = EXCLUDED.updated_at
        )
        SELECT COALESCE((SELECT up_for_it FROM prev), false)
    `, a.CrewID, a.Date, a.UserID, a.UpForIt, a.UpdatedAt).Scan(&previous)
	if err != nil {
		return false, translate(err)
	}
	return previous, nil
}

func (r *PostgresCrewRepository) GetAvailability(ctx context.Context, crewID, date string) ([]crew.Availability, error) {
	rows, err := r.db.Query(ctx, `
        SELECT crew_id, date, user_id, up_for_it, updated_at
        FROM availability
        WHERE crew_id = $1 AND date = $2
        ORDER BY user_id ASC
    `, crewID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []crew.Availability
	for rows.Next() {
		var a crew.Availability
		if err := rows.Scan(&a.CrewID, &a.Date, &a.UserID, &a.UpForIt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresCrewRepository) IsUpForIt(ctx context.Context, crewID, date, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM availability
            WHERE crew_id = $1 AND date = $2 AND user_id = $3 AND up_for_it
        )
    `, crewID, date, userID).Scan(&ok)
	return ok, err
}
