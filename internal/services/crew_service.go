package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/crew"
	"upforit/internal/events"
	"upforit/internal/proxy"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
	"upforit/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCrewNameRunes = 64

// CrewService manages crews, their members and per-date availability. Every change
// that others are notified about is staged in the outbox in the same transaction.
type CrewService struct {
	store  repository.Store
	access *proxy.AccessControl
	log    *logger.Logger
}

func NewCrewService(store repository.Store, l *logger.Logger) *CrewService {
	if l == nil {
		l = logger.NewNop()
	}
	return &CrewService{store: store, access: proxy.NewAccessControl(store), log: l}
}

func (s *CrewService) CreateCrew(ctx context.Context, ownerID, name string) (crew.Crew, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxCrewNameRunes {
		return crew.Crew{}, upforit_errors.ErrInvalidInput
	}
	c := crew.Crew{ID: uuid.NewString(), Name: name, OwnerID: ownerID}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Crews().Create(ctx, &c); err != nil {
			return err
		}
		return tx.Crews().AddMember(ctx, &crew.Member{CrewID: c.ID, UserID: ownerID})
	})
	if err != nil {
		return crew.Crew{}, err
	}
	s.log.InfoCtx(ctx, "crew created", zap.String("crew_id", c.ID))
	return c, nil
}

func (s *CrewService) JoinCrew(ctx context.Context, userID, crewID string) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		c, err := tx.Crews().GetByID(ctx, crewID)
		if err != nil {
			return err
		}
		before, err := tx.Crews().GetMemberIDs(ctx, crewID)
		if err != nil {
			return err
		}
		if err := tx.Crews().AddMember(ctx, &crew.Member{CrewID: crewID, UserID: userID}); err != nil {
			if errors.Is(err, upforit_errors.ErrAlreadyExists) {
				return upforit_errors.ErrConflict
			}
			return err
		}
		return stageMembership(ctx, tx, events.EventTypeCrewMemberJoined, c, userID, before)
	})
}

// LeaveCrew removes userID. The owner cannot leave; they delete the crew instead.
func (s *CrewService) LeaveCrew(ctx context.Context, userID, crewID string) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		c, err := tx.Crews().GetByID(ctx, crewID)
		if err != nil {
			return err
		}
		if c.OwnerID == userID {
			return upforit_errors.ErrConflict
		}
		before, err := tx.Crews().GetMemberIDs(ctx, crewID)
		if err != nil {
			return err
		}
		if err := tx.Crews().RemoveMember(ctx, crewID, userID); err != nil {
			return err
		}
		return stageMembership(ctx, tx, events.EventTypeCrewMemberLeft, c, userID, before)
	})
}

func (s *CrewService) DeleteCrew(ctx context.Context, userID, crewID string) error {
	c, err := s.access.CanManageCrew(ctx, userID, crewID)
	if err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		before, err := tx.Crews().GetMemberIDs(ctx, crewID)
		if err != nil {
			return err
		}
		if err := tx.Crews().Delete(ctx, crewID); err != nil {
			return err
		}
		return stageMembership(ctx, tx, events.EventTypeCrewDeleted, c, userID, before)
	})
}

func stageMembership(ctx context.Context, tx repository.Store, eventType string, c crew.Crew, actorID string, before []string) error {
	payload := events.MembershipChanged{
		CrewID:   c.ID,
		CrewName: c.Name,
		ActorID:  actorID,
		Members:  before,
	}
	return createOutboxEvent(ctx, tx.Outbox(), events.AggregateCrew, eventType, c.ID, payload)
}

func (s *CrewService) ListCrews(ctx context.Context, userID string) ([]crew.Crew, error) {
	return s.store.Crews().GetUserCrews(ctx, userID)
}

func (s *CrewService) GetMembers(ctx context.Context, userID, crewID string) ([]string, error) {
	if _, err := s.access.CanViewCrew(ctx, userID, crewID); err != nil {
		return nil, err
	}
	return s.store.Crews().GetMemberIDs(ctx, crewID)
}

// SetAvailability records userID's flag for crewID on date. A member who becomes up
// for it joins that night's group chat if one has been opened.
func (s *CrewService) SetAvailability(ctx context.Context, userID, crewID, date string, upForIt bool) error {
	if _, err := crew.ParseDate(date); err != nil {
		return err
	}
	if _, err := s.access.CanViewCrew(ctx, userID, crewID); err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(tx repository.Store) error {
		prev, err := tx.Crews().SetAvailability(ctx, crew.Availability{
			CrewID:    crewID,
			Date:      date,
			UserID:    userID,
			UpForIt:   upForIt,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		if upForIt && !prev {
			convID := conversation.GroupConversationID(crewID, date)
			_, err := tx.Conversations().GetByID(ctx, convID)
			switch {
			case err == nil:
				if err := tx.Conversations().AddMember(ctx, convID, userID); err != nil {
					return err
				}
			case !errors.Is(err, upforit_errors.ErrNotFound):
				return err
			}
		}

		payload := events.AvailabilityChanged{
			CrewID:     crewID,
			Date:       date,
			UserID:     userID,
			UpForIt:    upForIt,
			WasUpForIt: prev,
		}
		return createOutboxEvent(ctx, tx.Outbox(), events.AggregateAvailability, events.EventTypeAvailabilityChanged, crewID+"_"+date, payload)
	})
}

func (s *CrewService) GetAvailability(ctx context.Context, userID, crewID, date string) ([]crew.Availability, error) {
	if _, err := crew.ParseDate(date); err != nil {
		return nil, err
	}
	if _, err := s.access.CanViewCrew(ctx, userID, crewID); err != nil {
		return nil, err
	}
	return s.store.Crews().GetAvailability(ctx, crewID, date)
}
