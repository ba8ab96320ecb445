package repository

import (
	"context"
	"time"

	"upforit/internal/domain/outbox"
)

type outboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(ctx context.Context, event *outbox.OutboxEvent) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = outbox.StatusPending
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO outbox_events (id, event_type, aggregate_type, aggregate_id, payload, status, retry_count, error, created_at, updated_at, processed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `,
		event.ID,
		event.EventType,
		event.AggregateType,
		event.AggregateID,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.Error,
		event.CreatedAt,
		event.UpdatedAt,
		event.ProcessedAt,
	)
	return translate(err)
}

// GetPending returns PENDING rows and FAILED rows that still have retries left.
func (r *outboxRepository) GetPending(ctx context.Context, limit, maxRetries int) ([]outbox.OutboxEvent, error) {
	var events []outbox.OutboxEvent
	rows, err := r.db.Query(ctx, `
        SELECT id, event_type, aggregate_type, aggregate_id, payload, status, retry_count, error, created_at, updated_at, processed_at
        FROM outbox_events
        WHERE status IN ($1, $2) AND retry_count < $3
        ORDER BY created_at ASC
        LIMIT $4
    `, outbox.StatusPending, outbox.StatusFailed, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var event outbox.OutboxEvent
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.AggregateType,
			&event.AggregateID,
			&event.Payload,
			&event.Status,
			&event.RetryCount,
			&event.Error,
			&event.CreatedAt,
			&event.UpdatedAt,
			&event.ProcessedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE outbox_events
        SET status = $1, updated_at = $2
        WHERE id = $3
    `, outbox.StatusProcessing, time.Now().UTC(), id)
	return err
}

func (r *outboxRepository) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
        UPDATE outbox_events
        SET status = $1, processed_at = $2, updated_at = $3, error = ''
        WHERE id = $4
    `, outbox.StatusCompleted, &now, now, id)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE outbox_events
        SET status = $1, error = $2, updated_at = $3
        WHERE id = $4
    `, outbox.StatusFailed, errorMsg, time.Now().UTC(), id)
	return err
}

func (r *outboxRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE outbox_events
        SET retry_count = retry_count + 1
        WHERE id = $1
    `, id)
	return err
}
