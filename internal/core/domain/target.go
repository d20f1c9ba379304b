package domain

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"event-dispatcher/pkg/apperror"
)

// TargetStatus represents the lifecycle state of a delivery target.
type TargetStatus string

const (
	TargetStatusActive    TargetStatus = "active"
	TargetStatusDisabled  TargetStatus = "disabled"
	TargetStatusSuspended TargetStatus = "suspended"
)

const (
	// WildcardEvent subscribes a target to every event.
	WildcardEvent = "*"

	DefaultMethod         = http.MethodPost
	DefaultSigningVersion = "v1"
)

var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// TransformFunc rewrites an event payload before it is serialized for a
// target. It only exists in-process and is never persisted.
type TransformFunc func(event string, payload any) (any, error)

// Target is a registered remote endpoint that receives events.
type Target struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Event          string            `json:"event"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	Auth           Auth              `json:"-"`
	Retry          *RetryPolicy      `json:"retry,omitempty"`
	RateLimit      *RateLimitPolicy  `json:"rate_limit,omitempty"`
	Signing        bool              `json:"signing"`
	SigningVersion string            `json:"signing_version,omitempty"`
	Status         TargetStatus      `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Transform      TransformFunc     `json:"-"`
}

// IsActive returns true if the target takes part in fan-out.
func (t *Target) IsActive() bool {
	return t.Status == TargetStatusActive
}

// Matches reports whether the target subscribes to event.
func (t *Target) Matches(event string) bool {
	return t.Event == WildcardEvent || t.Event == event
}

// Normalize fills defaulted fields in place.
func (t *Target) Normalize() {
	t.Method = strings.ToUpper(strings.TrimSpace(t.Method))
	if t.Method == "" {
		t.Method = DefaultMethod
	}
	t.Event = strings.TrimSpace(t.Event)
	if t.Signing && t.SigningVersion == "" {
		t.SigningVersion = DefaultSigningVersion
	}
}

// Validate checks the target configuration. It returns a validation AppError
// naming the first offending field.
func (t *Target) Validate() error {
	if err := validateURL(t.URL); err != nil {
		return err
	}
	if t.Event == "" {
		return apperror.Validation("event filter must not be empty")
	}
	if !supportedMethods[t.Method] {
		return apperror.Validation("unsupported method " + t.Method)
	}
	if t.Auth != nil {
		if err := t.Auth.validate(); err != nil {
			return err
		}
	}
	if t.Retry != nil {
		if err := t.Retry.Validate(); err != nil {
			return err
		}
	}
	if t.RateLimit != nil {
		if err := t.RateLimit.Validate(); err != nil {
			return err
		}
	}
	for name := range t.Headers {
		if strings.TrimSpace(name) == "" {
			return apperror.Validation("header names must not be empty")
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return apperror.Validation("url must be an absolute http or https URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperror.Validation("url must be an absolute http or https URL")
	}
	return nil
}

// Clone returns a copy that shares no mutable state with t.
func (t Target) Clone() Target {
	if t.Headers != nil {
		h := make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			h[k] = v
		}
		t.Headers = h
	}
	if t.Retry != nil {
		r := *t.Retry
		t.Retry = &r
	}
	if t.RateLimit != nil {
		rl := *t.RateLimit
		t.RateLimit = &rl
	}
	return t
}

// TargetPatch holds a partial update. Nil fields are left untouched; the
// Clear* flags remove an optional policy.
type TargetPatch struct {
	Name           *string
	URL            *string
	Event          *string
	Method         *string
	Headers        map[string]string // replaces the header set when non-nil
	Auth           Auth
	ClearAuth      bool
	Retry          *RetryPolicy
	ClearRetry     bool
	RateLimit      *RateLimitPolicy
	ClearRateLimit bool
	Signing        *bool
	SigningVersion *string
	Status         *TargetStatus
	Transform      TransformFunc
}

// Apply merges p into a copy of t. Only active and suspended are reachable
// through a patch; disabled is reserved for unregistration.
func (t Target) Apply(p TargetPatch) (Target, error) {
	out := t.Clone()

	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.URL != nil {
		out.URL = *p.URL
	}
	if p.Event != nil {
		out.Event = *p.Event
	}
	if p.Method != nil {
		out.Method = *p.Method
	}
	if p.Headers != nil {
		out.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			out.Headers[k] = v
		}
	}
	switch {
	case p.ClearAuth:
		out.Auth = nil
	case p.Auth != nil:
		out.Auth = p.Auth
	}
	switch {
	case p.ClearRetry:
		out.Retry = nil
	case p.Retry != nil:
		r := *p.Retry
		out.Retry = &r
	}
	switch {
	case p.ClearRateLimit:
		out.RateLimit = nil
	case p.RateLimit != nil:
		rl := *p.RateLimit
		out.RateLimit = &rl
	}
	if p.Signing != nil {
		out.Signing = *p.Signing
	}
	if p.SigningVersion != nil {
		out.SigningVersion = *p.SigningVersion
	}
	if p.Transform != nil {
		out.Transform = p.Transform
	}
	if p.Status != nil {
		next := *p.Status
		if next != TargetStatusActive && next != TargetStatusSuspended {
			return Target{}, apperror.Validation("status may only be set to active or suspended")
		}
		if t.Status == TargetStatusDisabled {
			return Target{}, apperror.Validation("disabled targets cannot change status")
		}
		out.Status = next
	}

	out.Normalize()
	return out, nil
}

// TargetFilter selects targets for listing. Zero values match everything.
type TargetFilter struct {
	Event  string
	Status TargetStatus
}

// Match reports whether t passes the filter. Event matches exact
// subscriptions and wildcard targets.
func (f TargetFilter) Match(t *Target) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Event != "" && !t.Matches(f.Event) {
		return false
	}
	return true
}

// SortTargets orders targets by creation time, then id.
func SortTargets(targets []Target) {
	sort.SliceStable(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Registration is returned once from registration. Secret is empty when
// signing is off.
type Registration struct {
	ID     string `json:"id"`
	Secret string `json:"secret,omitempty"`
}
