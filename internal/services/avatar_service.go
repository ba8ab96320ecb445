package services

import (
	"context"
	"fmt"
	"strings"

	"upforit/internal/domain/user"
	"upforit/internal/repository"
	"upforit/internal/storage"
	upforit_errors "upforit/pkg/errors"

	"github.com/google/uuid"
)

// ObjectPresigner is the slice of the S3 client used for avatars.
type ObjectPresigner interface {
	PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (string, map[string]string, error)
	FileURL(key string) string
}

type AvatarUpload struct {
	UploadURL string
	UploadKey string
	PublicURL string
	Headers   map[string]string
}

type AvatarService struct {
	users   repository.UserRepository
	storage ObjectPresigner
}

func NewAvatarService(users repository.UserRepository, storage ObjectPresigner) *AvatarService {
	return &AvatarService{users: users, storage: storage}
}

func avatarPrefix(userID string) string {
	return fmt.Sprintf("avatars/%s/", userID)
}

// PresignAvatar reserves a fresh object key under the user's avatar prefix.
func (s *AvatarService) PresignAvatar(ctx context.Context, userID, contentType string, size int64) (AvatarUpload, error) {
	if s.storage == nil {
		return AvatarUpload{}, upforit_errors.ErrServiceUnavailable
	}
	if userID == "" || size <= 0 || size > storage.MaxAvatarBytes {
		return AvatarUpload{}, upforit_errors.ErrInvalidInput
	}
	ext, err := storage.AvatarExtension(contentType)
	if err != nil {
		return AvatarUpload{}, upforit_errors.ErrInvalidInput
	}

	key := avatarPrefix(userID) + uuid.NewString() + ext
	url, headers, err := s.storage.PresignPut(ctx, key, contentType, size)
	if err != nil {
		return AvatarUpload{}, err
	}
	return AvatarUpload{
		UploadURL: url,
		UploadKey: key,
		PublicURL: s.storage.FileURL(key),
		Headers:   headers,
	}, nil
}

// ConfirmAvatar points the profile at an uploaded object. Keys outside the user's
// own prefix are rejected.
func (s *AvatarService) ConfirmAvatar(ctx context.Context, userID, key string) (user.User, error) {
	if s.storage == nil {
		return user.User{}, upforit_errors.ErrServiceUnavailable
	}
	if !strings.HasPrefix(key, avatarPrefix(userID)) || strings.Contains(key, "..") {
		return user.User{}, upforit_errors.ErrPermissionDenied
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	u.AvatarURL = s.storage.FileURL(key)
	if err := s.users.Upsert(ctx, &u); err != nil {
		return user.User{}, err
	}
	return u, nil
}
