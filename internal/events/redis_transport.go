package events

import (
	"context"
	"encoding/json"

	"upforit/pkg/logger"

	"go.uber.org/zap"
)

// ChannelPublisher is the raw pub/sub publisher (internal/redis.Publisher).
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes change events over redis pub/sub. Redis pub/sub is
// fire-and-forget, so this transport suits single-node and development setups.
type RedisPublisher struct {
	pub ChannelPublisher
}

func NewRedisPublisher(pub ChannelPublisher) *RedisPublisher {
	return &RedisPublisher{pub: pub}
}

func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.pub.Publish(ctx, ChangeChannel(env), data)
}

// RedisSource feeds change events received on the change channels to the router.
type RedisSource struct {
	sub Subscriber
	log *logger.Logger
}

func NewRedisSource(sub Subscriber, l *logger.Logger) *RedisSource {
	if l == nil {
		l = logger.NewNop()
	}
	return &RedisSource{sub: sub, log: l}
}

func (s *RedisSource) Run(ctx context.Context, handle func(ctx context.Context, raw []byte) error) error {
	return s.sub.Subscribe(ctx, []string{changeChannelPattern}, func(channel string, payload []byte) {
		if err := handle(ctx, payload); err != nil {
			s.log.WarnCtx(ctx, "change event failed", zap.String("channel", channel), zap.Error(err))
		}
	})
}
