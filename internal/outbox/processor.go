package outbox

import (
	"context"
	"encoding/json"
	"time"

	"upforit/internal/events"
	"upforit/internal/repository"
	"upforit/pkg/logger"

	"go.uber.org/zap"
)

// Processor moves committed outbox rows onto the change stream.
type Processor struct {
	repo       repository.OutboxRepository
	publisher  events.Publisher
	log        *logger.Logger
	batchSize  int
	interval   time.Duration
	maxRetries int
}

func NewProcessor(repo repository.OutboxRepository, publisher events.Publisher, l *logger.Logger, batchSize int, interval time.Duration, maxRetries int) *Processor {
	if l == nil {
		l = logger.NewNop()
	}
	return &Processor{
		repo:       repo,
		publisher:  publisher,
		log:        l,
		batchSize:  batchSize,
		interval:   interval,
		maxRetries: maxRetries,
	}
}

func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publishes one batch of pending rows and returns how many were published.
func (p *Processor) ProcessBatch(ctx context.Context) int {
	batch, err := p.repo.GetPending(ctx, p.batchSize, p.maxRetries)
	if err != nil {
		p.log.ErrorCtx(ctx, "outbox fetch failed", zap.Error(err))
		return 0
	}

	published := 0
	for _, e := range batch {
		if err := p.repo.MarkProcessing(ctx, e.ID); err != nil {
			p.log.WarnCtx(ctx, "outbox mark processing failed", zap.String("event_id", e.ID), zap.Error(err))
		}

		env := events.Envelope{
			ID:            e.ID,
			EventType:     e.EventType,
			AggregateType: e.AggregateType,
			AggregateID:   e.AggregateID,
			OccurredAt:    e.CreatedAt.UTC(),
			Payload:       json.RawMessage(e.Payload),
		}

		if publishErr := p.publisher.Publish(ctx, env); publishErr != nil {
			p.log.WarnCtx(ctx, "outbox publish failed",
				zap.String("event_id", e.ID),
				zap.String("event_type", e.EventType),
				zap.Int("attempt", e.RetryCount+1),
				zap.Error(publishErr))
			if err := p.repo.IncrementRetry(ctx, e.ID); err != nil {
				p.log.WarnCtx(ctx, "outbox increment retry failed", zap.String("event_id", e.ID), zap.Error(err))
			}
			if err := p.repo.MarkFailed(ctx, e.ID, publishErr.Error()); err != nil {
				p.log.WarnCtx(ctx, "outbox failure not recorded", zap.String("event_id", e.ID), zap.Error(err))
			}
			continue
		}

		if err := p.repo.MarkCompleted(ctx, e.ID); err != nil {
			p.log.WarnCtx(ctx, "outbox mark completed failed", zap.String("event_id", e.ID), zap.Error(err))
		}
		published++
	}
	return published
}
