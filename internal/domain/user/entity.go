package user

import (
	"slices"
	"time"
)

// User represents the users table
type User struct {
	ID          string
	DisplayName string
	AvatarURL   string
	PushTokens  []string
	BadgeCount  int
	ActiveChats []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsViewing reports whether the user currently has conversationID open.
func (u User) IsViewing(conversationID string) bool {
	return slices.Contains(u.ActiveChats, conversationID)
}

// Name falls back to the id when no display name was set.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}
