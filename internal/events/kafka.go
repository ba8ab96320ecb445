package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"upforit/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes change events to a topic keyed by aggregate id, so events of
// one aggregate stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.AggregateID),
		Value: b,
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

// KafkaSource consumes the change topic in a consumer group. A message is committed
// only after the handler accepts it, and a failing message is retried in place:
// committing a later offset would mark it done for the group.
type KafkaSource struct {
	reader       messageReader
	log          *logger.Logger
	retryBackoff time.Duration
	maxBackoff   time.Duration
}

func NewKafkaSource(brokers []string, topic, groupID string, l *logger.Logger) *KafkaSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newKafkaSource(r, l)
}

func newKafkaSource(r messageReader, l *logger.Logger) *KafkaSource {
	if l == nil {
		l = logger.NewNop()
	}
	return &KafkaSource{reader: r, log: l, retryBackoff: defaultRetryBackoff, maxBackoff: maxRetryBackoff}
}

func (s *KafkaSource) Run(ctx context.Context, handle func(ctx context.Context, raw []byte) error) error {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			s.log.ErrorCtx(ctx, "kafka fetch failed", zap.Error(err))
			if !sleepCtx(ctx, s.retryBackoff) {
				return ctx.Err()
			}
			continue
		}
		if err := s.handleUntilDone(ctx, m, handle); err != nil {
			return err
		}
		if err := s.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The next successful commit covers this offset too.
			s.log.ErrorCtx(ctx, "kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handleUntilDone retries m with doubling backoff until handle succeeds or ctx ends.
func (s *KafkaSource) handleUntilDone(ctx context.Context, m kafka.Message, handle func(ctx context.Context, raw []byte) error) error {
	backoff := s.retryBackoff
	for attempt := 1; ; attempt++ {
		err := handle(ctx, m.Value)
		if err == nil {
			return nil
		}
		s.log.WarnCtx(ctx, "change event failed, retrying",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
