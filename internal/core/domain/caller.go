package domain

// Caller context headers forwarded to targets.
const (
	HeaderUserID        = "X-User-ID"
	HeaderCompanyID     = "X-Company-ID"
	HeaderSessionID     = "X-Session-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// CallerContext identifies who caused an event.
type CallerContext struct {
	UserID        string `json:"user_id,omitempty"`
	CompanyID     string `json:"company_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Headers returns the non-empty caller fields keyed by header name.
func (c *CallerContext) Headers() map[string]string {
	if c == nil {
		return nil
	}
	h := make(map[string]string, 4)
	for name, v := range map[string]string{
		HeaderUserID:        c.UserID,
		HeaderCompanyID:     c.CompanyID,
		HeaderSessionID:     c.SessionID,
		HeaderCorrelationID: c.CorrelationID,
	} {
		if v != "" {
			h[name] = v
		}
	}
	return h
}
