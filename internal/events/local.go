package events

import (
	"context"
	"encoding/json"

	"upforit/pkg/logger"

	"go.uber.org/zap"
)

// LocalBus is an in-process Publisher and Source for single-node development. A
// full buffer blocks Publish, which leaves the outbox row pending for the next poll
// once ctx expires.
type LocalBus struct {
	ch  chan []byte
	log *logger.Logger
}

func NewLocalBus(buffer int, l *logger.Logger) *LocalBus {
	if l == nil {
		l = logger.NewNop()
	}
	return &LocalBus{ch: make(chan []byte, buffer), log: l}
}

func (b *LocalBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case b.ch <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run hands each record to handle. There is no redelivery: a failed record is
// logged and dropped.
func (b *LocalBus) Run(ctx context.Context, handle func(ctx context.Context, raw []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-b.ch:
			if err := handle(ctx, raw); err != nil {
				b.log.WarnCtx(ctx, "change event dropped", zap.Int("bytes", len(raw)), zap.Error(err))
			}
		}
	}
}
