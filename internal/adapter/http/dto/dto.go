package dto

import (
	"encoding/json"
	"strings"
	"time"

	"event-dispatcher/internal/core/domain"
)

// TokenRequest is the request body for operator token issuance.
type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required,max=100"`
	ClientSecret string `json:"client_secret" binding:"required,max=256"`
}

// TokenResponse is the response body for a successful token issuance.
type TokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// AuthRequest carries target credentials. Which fields are required depends
// on Type; domain validation reports the missing ones.
type AuthRequest struct {
	Type        string `json:"type" binding:"required,oneof=basic bearer api_key oauth2"`
	Username    string `json:"username,omitempty" binding:"max=256"`
	Password    string `json:"password,omitempty" binding:"max=256"`
	Token       string `json:"token,omitempty" binding:"max=4096"`
	Header      string `json:"header,omitempty" binding:"omitempty,header_name"`
	Key         string `json:"key,omitempty" binding:"max=4096"`
	AccessToken string `json:"access_token,omitempty" binding:"max=4096"`
}

func (r *AuthRequest) toDomain() (domain.Auth, error) {
	return domain.AuthSpec{
		Type:        domain.AuthType(r.Type),
		Username:    r.Username,
		Password:    r.Password,
		Token:       r.Token,
		Header:      r.Header,
		Key:         r.Key,
		AccessToken: r.AccessToken,
	}.Build()
}

// RetryRequest configures retries. Delays are in milliseconds.
type RetryRequest struct {
	MaxAttempts int    `json:"max_attempts" binding:"min=0,max=50"`
	Backoff     string `json:"backoff" binding:"required,oneof=fixed linear exponential"`
	BaseDelayMs int64  `json:"base_delay_ms" binding:"min=0"`
}

func (r *RetryRequest) toDomain() *domain.RetryPolicy {
	return &domain.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Backoff:     domain.BackoffStrategy(r.Backoff),
		BaseDelay:   time.Duration(r.BaseDelayMs) * time.Millisecond,
	}
}

// RateLimitRequest configures the per-target fixed window.
type RateLimitRequest struct {
	Max      int64 `json:"max" binding:"required,gt=0"`
	WindowMs int64 `json:"window_ms" binding:"required,gt=0"`
}

func (r *RateLimitRequest) toDomain() *domain.RateLimitPolicy {
	return &domain.RateLimitPolicy{
		Max:    r.Max,
		Window: time.Duration(r.WindowMs) * time.Millisecond,
	}
}

// CreateTargetRequest is the request body for target registration.
type CreateTargetRequest struct {
	Name           string            `json:"name" binding:"max=100"`
	URL            string            `json:"url" binding:"required,max=2048,http_url"`
	Event          string            `json:"event" binding:"required,max=200,event_filter"`
	Method         string            `json:"method,omitempty" binding:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers        map[string]string `json:"headers,omitempty" binding:"omitempty,max=50,dive,keys,header_name,endkeys,max=4096"`
	Auth           *AuthRequest      `json:"auth,omitempty"`
	Retry          *RetryRequest     `json:"retry,omitempty"`
	RateLimit      *RateLimitRequest `json:"rate_limit,omitempty"`
	Signing        bool              `json:"signing"`
	SigningVersion string            `json:"signing_version,omitempty" binding:"omitempty,max=16,safe_id"`
}

// ToDomain converts the request into an unregistered target.
func (r *CreateTargetRequest) ToDomain() (domain.Target, error) {
	t := domain.Target{
		Name:           strings.TrimSpace(r.Name),
		URL:            r.URL,
		Event:          r.Event,
		Method:         r.Method,
		Headers:        r.Headers,
		Signing:        r.Signing,
		SigningVersion: r.SigningVersion,
	}
	if r.Auth != nil {
		auth, err := r.Auth.toDomain()
		if err != nil {
			return domain.Target{}, err
		}
		t.Auth = auth
	}
	if r.Retry != nil {
		t.Retry = r.Retry.toDomain()
	}
	if r.RateLimit != nil {
		t.RateLimit = r.RateLimit.toDomain()
	}
	return t, nil
}

// UpdateTargetRequest is a partial update. Omitted fields stay unchanged;
// the clear_* flags drop an optional policy.
type UpdateTargetRequest struct {
	Name           *string           `json:"name,omitempty" binding:"omitempty,max=100"`
	URL            *string           `json:"url,omitempty" binding:"omitempty,max=2048,http_url"`
	Event          *string           `json:"event,omitempty" binding:"omitempty,max=200,event_filter"`
	Method         *string           `json:"method,omitempty" binding:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers        map[string]string `json:"headers,omitempty" binding:"omitempty,max=50,dive,keys,header_name,endkeys,max=4096"`
	Auth           *AuthRequest      `json:"auth,omitempty"`
	ClearAuth      bool              `json:"clear_auth,omitempty"`
	Retry          *RetryRequest     `json:"retry,omitempty"`
	ClearRetry     bool              `json:"clear_retry,omitempty"`
	RateLimit      *RateLimitRequest `json:"rate_limit,omitempty"`
	ClearRateLimit bool              `json:"clear_rate_limit,omitempty"`
	Signing        *bool             `json:"signing,omitempty"`
	SigningVersion *string           `json:"signing_version,omitempty" binding:"omitempty,max=16,safe_id"`
	Status         *string           `json:"status,omitempty" binding:"omitempty,oneof=active suspended"`
}

// ToPatch converts the request into a domain patch.
func (r *UpdateTargetRequest) ToPatch() (domain.TargetPatch, error) {
	p := domain.TargetPatch{
		URL:            r.URL,
		Event:          r.Event,
		Method:         r.Method,
		Headers:        r.Headers,
		ClearAuth:      r.ClearAuth,
		ClearRetry:     r.ClearRetry,
		ClearRateLimit: r.ClearRateLimit,
		Signing:        r.Signing,
		SigningVersion: r.SigningVersion,
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		p.Name = &name
	}
	if r.Auth != nil {
		auth, err := r.Auth.toDomain()
		if err != nil {
			return domain.TargetPatch{}, err
		}
		p.Auth = auth
	}
	if r.Retry != nil {
		p.Retry = r.Retry.toDomain()
	}
	if r.RateLimit != nil {
		p.RateLimit = r.RateLimit.toDomain()
	}
	if r.Status != nil {
		status := domain.TargetStatus(*r.Status)
		p.Status = &status
	}
	return p, nil
}

// RetryResponse mirrors RetryRequest.
type RetryResponse struct {
	MaxAttempts int    `json:"max_attempts"`
	Backoff     string `json:"backoff"`
	BaseDelayMs int64  `json:"base_delay_ms"`
}

// RateLimitResponse mirrors RateLimitRequest.
type RateLimitResponse struct {
	Max      int64 `json:"max"`
	WindowMs int64 `json:"window_ms"`
}

// TargetResponse is the public view of a target. Credentials are never
// echoed, only the auth scheme.
type TargetResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	URL            string             `json:"url"`
	Event          string             `json:"event"`
	Method         string             `json:"method"`
	Headers        map[string]string  `json:"headers,omitempty"`
	AuthType       string             `json:"auth_type,omitempty"`
	Retry          *RetryResponse     `json:"retry,omitempty"`
	RateLimit      *RateLimitResponse `json:"rate_limit,omitempty"`
	Signing        bool               `json:"signing"`
	SigningVersion string             `json:"signing_version,omitempty"`
	Status         string             `json:"status"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
}

func NewTargetResponse(t domain.Target) TargetResponse {
	resp := TargetResponse{
		ID:             t.ID,
		Name:           t.Name,
		URL:            t.URL,
		Event:          t.Event,
		Method:         t.Method,
		Headers:        t.Headers,
		Signing:        t.Signing,
		SigningVersion: t.SigningVersion,
		Status:         string(t.Status),
		CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.Auth != nil {
		resp.AuthType = string(t.Auth.Type())
	}
	if t.Retry != nil {
		resp.Retry = &RetryResponse{
			MaxAttempts: t.Retry.MaxAttempts,
			Backoff:     string(t.Retry.Backoff),
			BaseDelayMs: t.Retry.BaseDelay.Milliseconds(),
		}
	}
	if t.RateLimit != nil {
		resp.RateLimit = &RateLimitResponse{
			Max:      t.RateLimit.Max,
			WindowMs: t.RateLimit.Window.Milliseconds(),
		}
	}
	return resp
}

// TargetListResponse wraps a target listing.
type TargetListResponse struct {
	Targets []TargetResponse `json:"targets"`
	Total   int              `json:"total"`
}

// RegisterTargetResponse is returned once on registration. Secret is only
// set for signing targets and is not retrievable afterwards.
type RegisterTargetResponse struct {
	TargetResponse
	Secret string `json:"secret,omitempty"`
}

// RotateSecretResponse carries a freshly provisioned signing secret.
type RotateSecretResponse struct {
	TargetID string `json:"target_id"`
	Secret   string `json:"secret"`
}

// StatsResponse is the delivery statistics of one target.
type StatsResponse struct {
	TargetID          string  `json:"target_id"`
	TotalCalls        int64   `json:"total_calls"`
	SuccessCount      int64   `json:"success_count"`
	FailureCount      int64   `json:"failure_count"`
	AverageDurationMs float64 `json:"average_duration_ms"`
	LastCalledAt      *string `json:"last_called_at,omitempty"`
}

func NewStatsResponse(s domain.DeliveryStats) StatsResponse {
	resp := StatsResponse{
		TargetID:          s.TargetID,
		TotalCalls:        s.TotalCalls,
		SuccessCount:      s.SuccessCount,
		FailureCount:      s.FailureCount,
		AverageDurationMs: float64(s.AverageDuration) / float64(time.Millisecond),
	}
	if s.LastCalledAt != nil {
		ts := s.LastCalledAt.UTC().Format(time.RFC3339)
		resp.LastCalledAt = &ts
	}
	return resp
}

// DeliveryLogListResponse wraps persisted delivery history.
type DeliveryLogListResponse struct {
	Deliveries []domain.DeliveryLog `json:"deliveries"`
}

// CallerRequest identifies who caused an event.
type CallerRequest struct {
	UserID        string `json:"user_id,omitempty" binding:"max=200"`
	CompanyID     string `json:"company_id,omitempty" binding:"max=200"`
	SessionID     string `json:"session_id,omitempty" binding:"max=200"`
	CorrelationID string `json:"correlation_id,omitempty" binding:"max=200"`
}

// TriggerEventRequest is the request body for event ingestion. The payload is
// forwarded byte for byte.
type TriggerEventRequest struct {
	Event   string          `json:"event" binding:"required,max=200,event_name"`
	Payload json.RawMessage `json:"payload"`
	Caller  *CallerRequest  `json:"caller,omitempty"`
}

// CallerContext returns the caller, defaulting the correlation id.
func (r *TriggerEventRequest) CallerContext(correlationID string) *domain.CallerContext {
	cc := &domain.CallerContext{CorrelationID: correlationID}
	if r.Caller != nil {
		cc.UserID = r.Caller.UserID
		cc.CompanyID = r.Caller.CompanyID
		cc.SessionID = r.Caller.SessionID
		if r.Caller.CorrelationID != "" {
			cc.CorrelationID = r.Caller.CorrelationID
		}
	}
	return cc
}

// DeliveryResultResponse is the public view of one attempt.
type DeliveryResultResponse struct {
	TargetID     string  `json:"target_id"`
	DeliveryID   string  `json:"delivery_id,omitempty"`
	Attempt      int     `json:"attempt"`
	State        string  `json:"state"`
	Success      bool    `json:"success"`
	StatusCode   int     `json:"status_code,omitempty"`
	ResponseBody string  `json:"response_body,omitempty"`
	Error        string  `json:"error,omitempty"`
	DurationMs   float64 `json:"duration_ms"`
	Timestamp    string  `json:"timestamp"`
}

// TriggerResponse lists one result per target in resolution order.
type TriggerResponse struct {
	Event   string                   `json:"event"`
	Results []DeliveryResultResponse `json:"results"`
}

func NewTriggerResponse(event string, results []domain.DeliveryResult) TriggerResponse {
	resp := TriggerResponse{Event: event, Results: make([]DeliveryResultResponse, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, DeliveryResultResponse{
			TargetID:     r.TargetID,
			DeliveryID:   r.DeliveryID,
			Attempt:      r.Attempt,
			State:        string(r.State),
			Success:      r.Success,
			StatusCode:   r.StatusCode,
			ResponseBody: r.ResponseBody,
			Error:        r.Error,
			DurationMs:   float64(r.Duration) / float64(time.Millisecond),
			Timestamp:    r.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	return resp
}

// AsyncTriggerResponse is returned when an event is queued.
type AsyncTriggerResponse struct {
	Event     string `json:"event"`
	JobID     string `json:"job_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
