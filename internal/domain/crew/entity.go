package crew

import (
	"time"

	upforit_errors "upforit/pkg/errors"
)

// DateLayout is the calendar-date format used for availability and group chats.
const DateLayout = "2006-01-02"

// Crew represents the crews table
type Crew struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// Member represents the crew_members table
type Member struct {
	CrewID   string
	UserID   string
	JoinedAt time.Time
}

// Availability represents the availability table: a member's "up for it" flag for one date.
type Availability struct {
	CrewID    string
	Date      string
	UserID    string
	UpForIt   bool
	UpdatedAt time.Time
}

// ParseDate validates a YYYY-MM-DD date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, upforit_errors.ErrInvalidInput
	}
	return t, nil
}

// FormatDate renders a date for notification and chat titles, e.g. "Sun 1 Jun".
func FormatDate(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("Mon 2 Jan")
}
