package push

import (
	"context"
	"strings"
)

// Message is one Expo push notification addressed to a single device token.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
	Badge *int              `json:"badge,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

// Ticket is the relay's per-message answer, in request order.
type Ticket struct {
	To      string
	Status  string
	ID      string
	Message string
	Error   string
}

const (
	TicketOK    = "ok"
	TicketError = "error"

	// ErrorDeviceNotRegistered marks a token the device has given up.
	ErrorDeviceNotRegistered = "DeviceNotRegistered"
)

// Sender delivers push messages.
type Sender interface {
	Send(ctx context.Context, msgs []Message) ([]Ticket, error)
}

var tokenPrefixes = []string{"ExponentPushToken[", "ExpoPushToken["}

// ValidToken reports whether token is a well formed Expo push token.
func ValidToken(token string) bool {
	for _, prefix := range tokenPrefixes {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") && len(token) > len(prefix)+1 {
			return true
		}
	}
	return false
}
