package services

import (
	"context"

	"upforit/internal/domain/outbox"
	"upforit/internal/repository"
)

// createOutboxEvent stages a change event on repo, which callers pass from inside
// the transaction that performs the write the event describes.
func createOutboxEvent(ctx context.Context, repo repository.OutboxRepository, aggregateType, eventType, aggregateID string, payload any) error {
	e, err := outbox.NewEvent(eventType, aggregateType, aggregateID, payload)
	if err != nil {
		return err
	}
	return repo.Create(ctx, e)
}
