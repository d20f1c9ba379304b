package domain

import "time"

// NotificationType names a lifecycle or delivery event.
type NotificationType string

const (
	NotifyRegistered     NotificationType = "registered"
	NotifyUnregistered   NotificationType = "unregistered"
	NotifyUpdated        NotificationType = "updated"
	NotifyDelivered      NotificationType = "delivered"
	NotifyFailed         NotificationType = "failed"
	NotifyRateLimited    NotificationType = "rate-limited"
	NotifyRetryScheduled NotificationType = "retry-scheduled"
	NotifyRetryExhausted NotificationType = "retry-exhausted"
	NotifyDispatchError  NotificationType = "dispatch-error"
)

// Notification is published on every lifecycle change and delivery outcome.
type Notification struct {
	Type      NotificationType `json:"type"`
	TargetID  string           `json:"target_id,omitempty"`
	EventName string           `json:"event,omitempty"`
	JobID     string           `json:"job_id,omitempty"`
	Attempt   int              `json:"attempt,omitempty"`
	Delay     time.Duration    `json:"delay,omitempty"`
	Result    *DeliveryResult  `json:"result,omitempty"`
	Target    *Target          `json:"target,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
