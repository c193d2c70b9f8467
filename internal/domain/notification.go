package domain

import "time"

// Notification delivery channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// NotificationJob is a single outbound message owned by the dispatcher
// until delivered or exhausted. Attempts only ever increases; Priority
// drops with each failed attempt so fresh jobs go first.
type NotificationJob struct {
	JobID         string    `json:"id"`
	Recipient     string    `json:"recipient"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	Channel       string    `json:"channel"`
	Priority      int       `json:"priority"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}
