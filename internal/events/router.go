package events

import (
	"context"
	"errors"
	"sync"

	upforit_errors "upforit/pkg/errors"
	"upforit/pkg/logger"

	"go.uber.org/zap"
)

// HandlerFunc handles one decoded change event.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Guard remembers which event ids were already handled so redelivered events are
// processed at most once.
type Guard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Router dispatches change events to the handler registered for their type.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	guard    Guard
	log      *logger.Logger
}

func NewRouter(guard Guard, l *logger.Logger) *Router {
	if l == nil {
		l = logger.NewNop()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		guard:    guard,
		log:      l,
	}
}

func (r *Router) Register(eventType string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

// Handle decodes raw and runs the matching handler. Malformed or unknown events are
// logged and acknowledged. Any other handler error is returned so the source can
// redeliver, and the event is released from the guard.
func (r *Router) Handle(ctx context.Context, raw []byte) error {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		r.log.WarnCtx(ctx, "dropping malformed change event", zap.Error(err))
		return nil
	}
	return r.Dispatch(ctx, env)
}

func (r *Router) Dispatch(ctx context.Context, env Envelope) error {
	ctx = context.WithValue(ctx, logger.EventIdKey, env.ID)

	r.mu.RLock()
	h, ok := r.handlers[env.EventType]
	r.mu.RUnlock()
	if !ok {
		r.log.InfoCtx(ctx, "no handler for change event", zap.String("event_type", env.EventType))
		return nil
	}

	if r.guard != nil {
		claimed, err := r.guard.Claim(ctx, env.ID)
		if err != nil {
			r.log.WarnCtx(ctx, "event guard unavailable, processing anyway", zap.Error(err))
		} else if !claimed {
			r.log.InfoCtx(ctx, "skipping redelivered change event", zap.String("event_type", env.EventType))
			return nil
		}
	}

	if err := h(ctx, env); err != nil {
		if errors.Is(err, upforit_errors.ErrInvalidInput) {
			r.log.WarnCtx(ctx, "invalid change event", zap.String("event_type", env.EventType), zap.Error(err))
			return nil
		}
		if r.guard != nil {
			if relErr := r.guard.Release(ctx, env.ID); relErr != nil {
				r.log.WarnCtx(ctx, "event guard release failed", zap.Error(relErr))
			}
		}
		r.log.ErrorCtx(ctx, "change event handler failed", zap.String("event_type", env.EventType), zap.Error(err))
		return err
	}
	return nil
}
