package events

import "fmt"

const changeChannelPattern = "channel:changes:*"

// ChangeChannel is the redis channel a change event is published on.
func ChangeChannel(env Envelope) string {
	switch env.AggregateType {
	case AggregateMessage, AggregateCrew, AggregateAvailability:
		return "channel:changes:" + env.AggregateType
	default:
		return "channel:changes:system"
	}
}

// UserChannel carries realtime notices (badge updates) for one user.
func UserChannel(userID string) string {
	return fmt.Sprintf("channel:user:%s", userID)
}
