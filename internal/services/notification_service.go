package services

import (
	"context"
	"errors"
	"fmt"

	"upforit/internal/domain/crew"
	"upforit/internal/domain/user"
	"upforit/internal/events"
	"upforit/internal/push"
	"upforit/internal/redis"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
	"upforit/pkg/logger"

	"go.uber.org/zap"
)

// ThresholdUpForIt is the number of members that makes a night worth announcing.
const ThresholdUpForIt = 3

// Push payload types carried in Message.Data["type"].
const (
	PushTypeMessage    = "message"
	PushTypeMembership = "membership"
	PushTypeThreshold  = "threshold"
	PushTypePoke       = "poke"
)

type PokeLimiter interface {
	AllowPoke(ctx context.Context, userID, crewID, date string) (*redis.RateLimitResult, error)
}

// NotificationService turns change events into badge increments and push messages.
type NotificationService struct {
	store    repository.Store
	badges   *BadgeService
	resolver *RecipientResolver
	sender   push.Sender
	limiter  PokeLimiter
	log      *logger.Logger
}

func NewNotificationService(store repository.Store, badges *BadgeService, sender push.Sender, limiter PokeLimiter, l *logger.Logger) *NotificationService {
	if l == nil {
		l = logger.NewNop()
	}
	return &NotificationService{
		store:    store,
		badges:   badges,
		resolver: NewRecipientResolver(store.Users(), l),
		sender:   sender,
		limiter:  limiter,
		log:      l,
	}
}

func (s *NotificationService) RegisterHandlers(router *events.Router) {
	router.Register(events.EventTypeMessageCreated, s.onMessageCreated)
	router.Register(events.EventTypeCrewMemberJoined, s.onMembershipChanged)
	router.Register(events.EventTypeCrewMemberLeft, s.onMembershipChanged)
	router.Register(events.EventTypeCrewDeleted, s.onMembershipChanged)
	router.Register(events.EventTypeAvailabilityChanged, s.onAvailabilityChanged)
}

func (s *NotificationService) onMessageCreated(ctx context.Context, env events.Envelope) error {
	var ev events.MessageCreated
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Kind == events.ConversationKindDirect {
		return s.HandleDirectMessage(ctx, ev)
	}
	return s.HandleGroupMessage(ctx, ev)
}

func (s *NotificationService) onMembershipChanged(ctx context.Context, env events.Envelope) error {
	var ev events.MembershipChanged
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}
	return s.HandleMembershipChanged(ctx, env.EventType, ev)
}

func (s *NotificationService) onAvailabilityChanged(ctx context.Context, env events.Envelope) error {
	var ev events.AvailabilityChanged
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}
	return s.HandleAvailabilityChanged(ctx, ev)
}

// HandleDirectMessage notifies the other participant of a direct conversation.
func (s *NotificationService) HandleDirectMessage(ctx context.Context, ev events.MessageCreated) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	conv, err := s.store.Conversations().GetByID(ctx, ev.ConversationID)
	if err != nil {
		if errors.Is(err, upforit_errors.ErrNotFound) {
			return fmt.Errorf("direct conversation %s: %w", ev.ConversationID, upforit_errors.ErrInvalidInput)
		}
		return err
	}
	title := s.displayName(ctx, ev.SenderID)
	return s.notifyMessage(ctx, ev, conv.OtherMembers(ev.SenderID), title, ev.Text)
}

// HandleGroupMessage notifies every group chat member except the sender.
func (s *NotificationService) HandleGroupMessage(ctx context.Context, ev events.MessageCreated) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	conv, err := s.store.Conversations().GetByID(ctx, ev.ConversationID)
	if err != nil {
		if errors.Is(err, upforit_errors.ErrNotFound) {
			return fmt.Errorf("group conversation %s: %w", ev.ConversationID, upforit_errors.ErrInvalidInput)
		}
		return err
	}
	title := crew.FormatDate(conv.Date)
	if c, err := s.store.Crews().GetByID(ctx, conv.CrewID); err == nil {
		title = groupTitle(c.Name, conv.Date)
	}
	body := s.displayName(ctx, ev.SenderID) + ": " + ev.Text
	return s.notifyMessage(ctx, ev, conv.OtherMembers(ev.SenderID), title, body)
}

// notifyMessage increments each recipient's badge and pushes to the ones that were
// not suppressed. It fails only when no recipient could be processed at all, so a
// redelivery never double-counts an applied increment.
func (s *NotificationService) notifyMessage(ctx context.Context, ev events.MessageCreated, recipientIDs []string, title, body string) error {
	recipientIDs = dedupe(recipientIDs)
	badges := make(map[string]int, len(recipientIDs))
	var (
		failed  int
		lastErr error
	)
	for _, id := range recipientIDs {
		res, err := s.badges.MaybeIncrementBadge(ctx, id, ev.ConversationID)
		switch {
		case errors.Is(err, upforit_errors.ErrNotFound):
			s.log.WarnCtx(ctx, "message recipient not found", zap.String("recipient_id", id))
			continue
		case err != nil:
			s.log.ErrorCtx(ctx, "badge increment failed", zap.String("recipient_id", id), zap.Error(err))
			failed++
			lastErr = err
			continue
		case res.Suppressed:
			continue
		}
		badges[id] = res.Badge
	}
	if failed > 0 && failed == len(recipientIDs) {
		return lastErr
	}
	if len(badges) == 0 {
		return nil
	}

	ids := make([]string, 0, len(badges))
	for id := range badges {
		ids = append(ids, id)
	}
	recipients := s.resolver.Lookup(ctx, ids)
	s.deliver(ctx, recipients, func(u user.User) push.Message {
		badge := badges[u.ID]
		return push.Message{
			Title: title,
			Body:  body,
			Badge: &badge,
			Sound: "default",
			Data: map[string]string{
				"type":           PushTypeMessage,
				"conversationId": ev.ConversationID,
				"kind":           ev.Kind,
			},
		}
	})
	return nil
}

// HandleMembershipChanged tells the affected members about a join, leave or deletion.
// Members in the event is the membership before the change.
func (s *NotificationService) HandleMembershipChanged(ctx context.Context, eventType string, ev events.MembershipChanged) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	actor := s.displayName(ctx, ev.ActorID)
	var body string
	switch eventType {
	case events.EventTypeCrewMemberJoined:
		body = actor + " joined the crew"
	case events.EventTypeCrewMemberLeft:
		body = actor + " left the crew"
	case events.EventTypeCrewDeleted:
		body = "The crew was deleted"
	default:
		return fmt.Errorf("membership event %q: %w", eventType, upforit_errors.ErrInvalidInput)
	}

	var ids []string
	for _, id := range ev.Members {
		if id != ev.ActorID {
			ids = append(ids, id)
		}
	}
	recipients := s.resolver.Lookup(ctx, ids)
	s.deliver(ctx, recipients, func(u user.User) push.Message {
		return push.Message{
			Title: ev.CrewName,
			Body:  body,
			Badge: knownBadge(u),
			Data: map[string]string{
				"type":   PushTypeMembership,
				"crewId": ev.CrewID,
				"event":  eventType,
			},
		}
	})
	return nil
}

// HandleAvailabilityChanged announces a night once ThresholdUpForIt members are up
// for it. Every qualifying flip notifies again.
func (s *NotificationService) HandleAvailabilityChanged(ctx context.Context, ev events.AvailabilityChanged) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if !ev.BecameUpForIt() {
		return nil
	}

	c, err := s.store.Crews().GetByID(ctx, ev.CrewID)
	if err != nil {
		if errors.Is(err, upforit_errors.ErrNotFound) {
			return nil
		}
		return err
	}
	up, notUp, err := s.partitionMembers(ctx, ev.CrewID, ev.Date)
	if err != nil {
		return err
	}
	if len(up) < ThresholdUpForIt || len(notUp) == 0 {
		return nil
	}

	body := fmt.Sprintf("%d people are up for it on %s. Are you?", len(up), crew.FormatDate(ev.Date))
	s.log.InfoCtx(ctx, "up-for-it threshold reached",
		zap.String("crew_id", ev.CrewID), zap.String("date", ev.Date), zap.Int("up", len(up)))

	recipients := s.resolver.Lookup(ctx, notUp)
	s.deliver(ctx, recipients, func(u user.User) push.Message {
		return push.Message{
			Title: c.Name,
			Body:  body,
			Badge: knownBadge(u),
			Sound: "default",
			Data: map[string]string{
				"type":   PushTypeThreshold,
				"crewId": ev.CrewID,
				"date":   ev.Date,
			},
		}
	})
	return nil
}

// PokeResult reports how many members were nudged.
type PokeResult struct {
	Recipients int
	Pushes     int
}

// Poke nudges the crew members who are not yet up for it. Only members who are up for
// it themselves may poke.
func (s *NotificationService) Poke(ctx context.Context, senderID, crewID, date string) (PokeResult, error) {
	if _, err := crew.ParseDate(date); err != nil {
		return PokeResult{}, err
	}
	c, err := s.store.Crews().GetByID(ctx, crewID)
	if err != nil {
		return PokeResult{}, err
	}
	up, err := s.store.Crews().IsUpForIt(ctx, crewID, date, senderID)
	if err != nil {
		return PokeResult{}, err
	}
	if !up {
		return PokeResult{}, upforit_errors.ErrPermissionDenied
	}
	member, err := s.store.Crews().IsMember(ctx, crewID, senderID)
	if err != nil {
		return PokeResult{}, err
	}
	if !member {
		return PokeResult{}, upforit_errors.ErrPermissionDenied
	}

	_, notUp, err := s.partitionMembers(ctx, crewID, date)
	if err != nil {
		return PokeResult{}, err
	}
	targets := make([]string, 0, len(notUp))
	for _, id := range notUp {
		if id != senderID {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return PokeResult{}, nil
	}

	if s.limiter != nil {
		res, err := s.limiter.AllowPoke(ctx, senderID, crewID, date)
		switch {
		case err != nil:
			s.log.WarnCtx(ctx, "poke rate limiter unavailable", zap.Error(err))
		case !res.Allowed:
			return PokeResult{}, upforit_errors.ErrRateLimited
		}
	}

	body := fmt.Sprintf("%s is up for it on %s. Are you?", s.displayName(ctx, senderID), crew.FormatDate(date))
	recipients := s.resolver.Lookup(ctx, targets)
	pushes := s.deliver(ctx, recipients, func(u user.User) push.Message {
		return push.Message{
			Title: c.Name,
			Body:  body,
			Badge: knownBadge(u),
			Sound: "default",
			Data: map[string]string{
				"type":     PushTypePoke,
				"crewId":   crewID,
				"date":     date,
				"senderId": senderID,
			},
		}
	})
	return PokeResult{Recipients: len(targets), Pushes: pushes}, nil
}

// partitionMembers splits the current crew members by their flag for date.
func (s *NotificationService) partitionMembers(ctx context.Context, crewID, date string) (up, notUp []string, err error) {
	members, err := s.store.Crews().GetMemberIDs(ctx, crewID)
	if err != nil {
		return nil, nil, err
	}
	flags, err := s.store.Crews().GetAvailability(ctx, crewID, date)
	if err != nil {
		return nil, nil, err
	}
	isUp := make(map[string]bool, len(flags))
	for _, a := range flags {
		isUp[a.UserID] = a.UpForIt
	}
	for _, id := range members {
		if isUp[id] {
			up = append(up, id)
		} else {
			notUp = append(notUp, id)
		}
	}
	return up, notUp, nil
}

// deliver sends one message per valid token and returns how many were handed to the
// relay. Failures are logged only. Tokens the relay reports as unregistered are
// removed from their owner.
func (s *NotificationService) deliver(ctx context.Context, recipients []user.User, compose func(u user.User) push.Message) int {
	msgs, owners := buildMessages(recipients, compose)
	if len(msgs) == 0 {
		return 0
	}

	tickets, err := s.sender.Send(ctx, msgs)
	if err != nil {
		s.log.WarnCtx(ctx, "push delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
	}
	for _, t := range tickets {
		if t.Error != push.ErrorDeviceNotRegistered {
			continue
		}
		if owner, ok := owners[t.To]; ok {
			if err := s.store.Users().RemovePushToken(ctx, owner, t.To); err != nil {
				s.log.WarnCtx(ctx, "stale push token cleanup failed", zap.String("user_id", owner), zap.Error(err))
			}
		}
	}
	return len(msgs)
}

func (s *NotificationService) displayName(ctx context.Context, userID string) string {
	u, err := s.store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return userID
	}
	return u.Name()
}

func knownBadge(u user.User) *int {
	badge := max(u.BadgeCount, 0)
	return &badge
}

func groupTitle(crewName, date string) string {
	return crewName + " - " + crew.FormatDate(date)
}
