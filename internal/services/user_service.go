package services

import (
	"context"
	"errors"
	"strings"

	"upforit/internal/domain/user"
	"upforit/internal/push"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
)

const maxDisplayName = 64

type UserService struct {
	repo repository.UserRepository
}

func NewUserService(repo repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// EnsureProfile creates the user on first sight and keeps the display name current.
// An empty name keeps the stored one.
func (s *UserService) EnsureProfile(ctx context.Context, userID, displayName string) (user.User, error) {
	displayName = strings.TrimSpace(displayName)
	if userID == "" || len(displayName) > maxDisplayName {
		return user.User{}, upforit_errors.ErrInvalidInput
	}

	existing, err := s.repo.GetUserByID(ctx, userID)
	switch {
	case err == nil:
		if displayName == "" || displayName == existing.DisplayName {
			return existing, nil
		}
		existing.DisplayName = displayName
		if err := s.repo.Upsert(ctx, &existing); err != nil {
			return user.User{}, err
		}
		return s.repo.GetUserByID(ctx, userID)
	case !errors.Is(err, upforit_errors.ErrNotFound):
		return user.User{}, err
	}

	u := user.User{ID: userID, DisplayName: displayName}
	if err := s.repo.Upsert(ctx, &u); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (user.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *UserService) RegisterPushToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if !push.ValidToken(token) {
		return upforit_errors.ErrInvalidInput
	}
	return s.repo.AddPushToken(ctx, userID, token)
}

func (s *UserService) UnregisterPushToken(ctx context.Context, userID, token string) error {
	return s.repo.RemovePushToken(ctx, userID, strings.TrimSpace(token))
}
