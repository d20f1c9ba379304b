package dto

import (
	"net/url"
	"regexp"
	"strings"

	"event-dispatcher/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	safeIDRe    = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
	eventNameRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.:/]+$`)
	headerRe    = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("http_url", validateHTTPURL)
		_ = v.RegisterValidation("event_name", validateEventName)
		_ = v.RegisterValidation("event_filter", validateEventFilter)
		_ = v.RegisterValidation("header_name", validateHeaderName)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeIDRe.MatchString(fl.Field().String())
}

// validateHTTPURL accepts only absolute http/https URLs with a host.
func validateHTTPURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // optional field; use "required" tag to enforce presence
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// validateEventName accepts a concrete event name. The wildcard is a
// subscription filter, never something that is triggered.
func validateEventName(fl validator.FieldLevel) bool {
	return eventNameRe.MatchString(fl.Field().String())
}

func validateEventFilter(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == domain.WildcardEvent || eventNameRe.MatchString(s)
}

// validateHeaderName checks a header name against the RFC 7230 token grammar.
// Used on map keys via "dive,keys,header_name,endkeys".
func validateHeaderName(fl validator.FieldLevel) bool {
	return headerRe.MatchString(strings.TrimSpace(fl.Field().String()))
}
