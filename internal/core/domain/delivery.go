package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryState is the outcome of a single delivery attempt.
type DeliveryState string

const (
	DeliveryPending     DeliveryState = "pending"
	DeliveryRateLimited DeliveryState = "rate_limited"
	DeliveryDelivered   DeliveryState = "delivered"
	DeliveryFailed      DeliveryState = "failed"
	DeliveryExhausted   DeliveryState = "exhausted"
)

// DeliveryResult describes one attempt against one target.
type DeliveryResult struct {
	TargetID     string        `json:"target_id"`
	EventName    string        `json:"event"`
	JobID        string        `json:"job_id,omitempty"`
	DeliveryID   string        `json:"delivery_id"`
	Attempt      int           `json:"attempt"`
	State        DeliveryState `json:"state"`
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseBody string        `json:"response_body,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
}

// DeliveryStats aggregates attempts per target. Rate-limited results are not
// counted.
type DeliveryStats struct {
	TargetID        string        `json:"target_id"`
	TotalCalls      int64         `json:"total_calls"`
	SuccessCount    int64         `json:"success_count"`
	FailureCount    int64         `json:"failure_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	LastCalledAt    *time.Time    `json:"last_called_at,omitempty"`
}

// DeliveryLog is the persisted record of a DeliveryResult.
type DeliveryLog struct {
	ID         uuid.UUID     `json:"id"`
	TargetID   string        `json:"target_id"`
	EventName  string        `json:"event"`
	JobID      *string       `json:"job_id,omitempty"`
	DeliveryID string        `json:"delivery_id"`
	Attempt    int           `json:"attempt"`
	State      DeliveryState `json:"state"`
	StatusCode *int          `json:"status_code,omitempty"`
	LastError  *string       `json:"last_error,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at"`
}

// NewDeliveryLog maps a result onto its persisted form.
func NewDeliveryLog(r DeliveryResult) *DeliveryLog {
	l := &DeliveryLog{
		ID:         uuid.New(),
		TargetID:   r.TargetID,
		EventName:  r.EventName,
		DeliveryID: r.DeliveryID,
		Attempt:    r.Attempt,
		State:      r.State,
		DurationMs: r.Duration.Milliseconds(),
		CreatedAt:  r.Timestamp,
	}
	if r.JobID != "" {
		job := r.JobID
		l.JobID = &job
	}
	if r.StatusCode != 0 {
		code := r.StatusCode
		l.StatusCode = &code
	}
	if r.Error != "" {
		msg := r.Error
		l.LastError = &msg
	}
	return l
}
