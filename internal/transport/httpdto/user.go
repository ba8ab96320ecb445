package httpdto

import (
	"time"

	"upforit/internal/domain/user"
)

// UpdateProfileRequest is used for PUT /v1/me
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// UserDTO represents the caller's own profile. Push tokens are never echoed back.
type UserDTO struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	BadgeCount  int       `json:"badge_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type PushTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type AvatarPresignRequest struct {
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size" binding:"required"`
}

type AvatarPresignResponse struct {
	UploadURL string            `json:"upload_url"`
	UploadKey string            `json:"upload_key"`
	PublicURL string            `json:"public_url"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type AvatarConfirmRequest struct {
	UploadKey string `json:"upload_key" binding:"required"`
}

func FromUser(u user.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		BadgeCount:  u.BadgeCount,
		CreatedAt:   u.CreatedAt,
	}
}
