package domain

import (
	"testing"
	"time"

	"event-dispatcher/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTarget() Target {
	return Target{
		Name:   "billing",
		URL:    "https://hooks.example.com/in",
		Event:  "invoice.paid",
		Method: "post",
	}
}

func TestTarget_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *Target)
		valid  bool
	}{
		{"valid", func(t *Target) {}, true},
		{"relative url", func(t *Target) { t.URL = "/hooks" }, false},
		{"ftp url", func(t *Target) { t.URL = "ftp://example.com/x" }, false},
		{"garbage url", func(t *Target) { t.URL = "::not a url" }, false},
		{"empty event", func(t *Target) { t.Event = " " }, false},
		{"wildcard event", func(t *Target) { t.Event = WildcardEvent }, true},
		{"unsupported method", func(t *Target) { t.Method = "TRACE" }, false},
		{"bad auth", func(t *Target) { t.Auth = NewBearerAuth("") }, false},
		{"good auth", func(t *Target) { t.Auth = NewAPIKeyAuth("", "k") }, true},
		{"negative retries", func(t *Target) { t.Retry = &RetryPolicy{MaxAttempts: -1, Backoff: BackoffFixed} }, false},
		{"unknown backoff", func(t *Target) { t.Retry = &RetryPolicy{MaxAttempts: 1, Backoff: "random"} }, false},
		{"zero rate max", func(t *Target) { t.RateLimit = &RateLimitPolicy{Max: 0, Window: time.Second} }, false},
		{"zero rate window", func(t *Target) { t.RateLimit = &RateLimitPolicy{Max: 1} }, false},
		{"sub-millisecond rate window", func(t *Target) { t.RateLimit = &RateLimitPolicy{Max: 1, Window: 500 * time.Microsecond} }, false},
		{"millisecond rate window", func(t *Target) { t.RateLimit = &RateLimitPolicy{Max: 1, Window: time.Millisecond} }, true},
		{"basic auth without password", func(t *Target) { t.Auth = NewBasicAuth("user", "") }, false},
		{"blank header", func(t *Target) { t.Headers = map[string]string{" ": "x"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := validTarget()
			tt.mutate(&target)
			target.Normalize()
			err := target.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))
		})
	}
}

func TestTarget_Normalize(t *testing.T) {
	target := Target{Method: " patch ", Event: " a.b ", Signing: true}
	target.Normalize()

	assert.Equal(t, "PATCH", target.Method)
	assert.Equal(t, "a.b", target.Event)
	assert.Equal(t, DefaultSigningVersion, target.SigningVersion)

	empty := Target{}
	empty.Normalize()
	assert.Equal(t, DefaultMethod, empty.Method)
	assert.Empty(t, empty.SigningVersion)
}

func TestTarget_Matches(t *testing.T) {
	exact := Target{Event: "user.created"}
	wild := Target{Event: WildcardEvent}

	assert.True(t, exact.Matches("user.created"))
	assert.False(t, exact.Matches("user.deleted"))
	assert.True(t, wild.Matches("anything"))
}

func TestTarget_CloneIsolatesMutableState(t *testing.T) {
	orig := validTarget()
	orig.Headers = map[string]string{"X-A": "1"}
	orig.Retry = &RetryPolicy{MaxAttempts: 2, Backoff: BackoffFixed}

	cp := orig.Clone()
	cp.Headers["X-A"] = "2"
	cp.Retry.MaxAttempts = 9

	assert.Equal(t, "1", orig.Headers["X-A"])
	assert.Equal(t, 2, orig.Retry.MaxAttempts)
}

func TestTarget_Apply(t *testing.T) {
	base := validTarget()
	base.Status = TargetStatusActive
	base.Retry = &RetryPolicy{MaxAttempts: 1, Backoff: BackoffFixed}

	name := "renamed"
	signing := true
	out, err := base.Apply(TargetPatch{Name: &name, Signing: &signing, ClearRetry: true})
	require.NoError(t, err)

	assert.Equal(t, "renamed", out.Name)
	assert.True(t, out.Signing)
	assert.Equal(t, DefaultSigningVersion, out.SigningVersion)
	assert.Nil(t, out.Retry)
	assert.NotNil(t, base.Retry, "original must be untouched")
}

func TestTarget_ApplyStatusTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  TargetStatus
		to    TargetStatus
		valid bool
	}{
		{"suspend", TargetStatusActive, TargetStatusSuspended, true},
		{"resume", TargetStatusSuspended, TargetStatusActive, true},
		{"disable via patch", TargetStatusActive, TargetStatusDisabled, false},
		{"revive disabled", TargetStatusDisabled, TargetStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := validTarget()
			target.Status = tt.from
			to := tt.to
			out, err := target.Apply(TargetPatch{Status: &to})
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, tt.to, out.Status)
				return
			}
			assert.True(t, apperror.IsValidation(err))
		})
	}
}

func TestTargetFilter_Match(t *testing.T) {
	active := Target{Event: "a", Status: TargetStatusActive}
	suspendedWild := Target{Event: WildcardEvent, Status: TargetStatusSuspended}

	assert.True(t, TargetFilter{}.Match(&active))
	assert.True(t, TargetFilter{Event: "a"}.Match(&active))
	assert.False(t, TargetFilter{Event: "b"}.Match(&active))
	assert.True(t, TargetFilter{Event: "b"}.Match(&suspendedWild))
	assert.False(t, TargetFilter{Status: TargetStatusActive}.Match(&suspendedWild))
}

func TestSortTargets(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	targets := []Target{
		{ID: "c", CreatedAt: t0.Add(time.Second)},
		{ID: "b", CreatedAt: t0},
		{ID: "a", CreatedAt: t0},
	}

	SortTargets(targets)

	assert.Equal(t, []string{"a", "b", "c"}, []string{targets[0].ID, targets[1].ID, targets[2].ID})
}

func TestAuth_Headers(t *testing.T) {
	tests := []struct {
		name      string
		auth      Auth
		wantName  string
		wantValue string
	}{
		{"basic", NewBasicAuth("user", "pass"), "Authorization", "Basic dXNlcjpwYXNz"},
		{"bearer", NewBearerAuth("tok"), "Authorization", "Bearer tok"},
		{"api key default header", NewAPIKeyAuth("", "k1"), "X-API-Key", "k1"},
		{"api key custom header", NewAPIKeyAuth("X-Token", "k2"), "X-Token", "k2"},
		{"oauth2", NewOAuth2Auth("at"), "Authorization", "Bearer at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, value := tt.auth.Header()
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestAuthSpec_BuildAndSpecOf(t *testing.T) {
	specs := []AuthSpec{
		{Type: AuthTypeBasic, Username: "u", Password: "p"},
		{Type: AuthTypeBearer, Token: "t"},
		{Type: AuthTypeAPIKey, Header: "X-K", Key: "k"},
		{Type: AuthTypeOAuth2, AccessToken: "a"},
	}

	for _, spec := range specs {
		t.Run(string(spec.Type), func(t *testing.T) {
			a, err := spec.Build()
			require.NoError(t, err)
			assert.Equal(t, spec.Type, a.Type())
			assert.Equal(t, spec, *SpecOf(a))
		})
	}

	assert.Nil(t, SpecOf(nil))
}

func TestAuthSpec_BuildRejectsIncompleteSpecs(t *testing.T) {
	specs := []AuthSpec{
		{Type: AuthTypeBasic},
		{Type: AuthTypeBasic, Username: "u"},
		{Type: AuthTypeBasic, Password: "p"},
		{Type: AuthTypeBearer},
		{Type: AuthTypeAPIKey, Header: "X-K"},
		{Type: AuthTypeOAuth2},
		{Type: "digest"},
	}

	for _, spec := range specs {
		_, err := spec.Build()
		assert.True(t, apperror.IsValidation(err), "type %q", spec.Type)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{"fixed", RetryPolicy{Backoff: BackoffFixed, BaseDelay: time.Second}, 5, time.Second},
		{"linear 1", RetryPolicy{Backoff: BackoffLinear, BaseDelay: time.Second}, 1, time.Second},
		{"linear 3", RetryPolicy{Backoff: BackoffLinear, BaseDelay: time.Second}, 3, 3 * time.Second},
		{"exponential 1", RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second}, 1, time.Second},
		{"exponential 2", RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second}, 2, 2 * time.Second},
		{"exponential 3", RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second}, 3, 4 * time.Second},
		{"exponential 4", RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second}, 4, 8 * time.Second},
		{"exponential overflow", RetryPolicy{Backoff: BackoffExponential, BaseDelay: time.Second}, 200, MaxRetryDelay},
		{"linear overflow", RetryPolicy{Backoff: BackoffLinear, BaseDelay: time.Hour}, 1000, MaxRetryDelay},
		{"zero base", RetryPolicy{Backoff: BackoffExponential}, 3, 0},
		{"attempt below one", RetryPolicy{Backoff: BackoffLinear, BaseDelay: time.Second}, 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestRetryPolicy_HasAttemptsLeft(t *testing.T) {
	var none *RetryPolicy
	assert.False(t, none.HasAttemptsLeft(0))

	p := &RetryPolicy{MaxAttempts: 2}
	assert.True(t, p.HasAttemptsLeft(0))
	assert.True(t, p.HasAttemptsLeft(1))
	assert.False(t, p.HasAttemptsLeft(2))
}

func TestCallerContext_Headers(t *testing.T) {
	var nilCaller *CallerContext
	assert.Nil(t, nilCaller.Headers())

	c := &CallerContext{UserID: "u1", CorrelationID: "corr"}
	assert.Equal(t, map[string]string{
		HeaderUserID:        "u1",
		HeaderCorrelationID: "corr",
	}, c.Headers())
}

func TestNewDeliveryLog(t *testing.T) {
	ts := time.Now()
	log := NewDeliveryLog(DeliveryResult{
		TargetID:   "t1",
		EventName:  "e",
		DeliveryID: "d1",
		Attempt:    2,
		State:      DeliveryFailed,
		StatusCode: 503,
		Error:      "unavailable",
		Duration:   1500 * time.Millisecond,
		Timestamp:  ts,
	})

	assert.Nil(t, log.JobID)
	require.NotNil(t, log.StatusCode)
	assert.Equal(t, 503, *log.StatusCode)
	require.NotNil(t, log.LastError)
	assert.Equal(t, "unavailable", *log.LastError)
	assert.Equal(t, int64(1500), log.DurationMs)
	assert.Equal(t, ts, log.CreatedAt)
}
