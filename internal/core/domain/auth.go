package domain

import (
	"encoding/base64"
	"strings"

	"event-dispatcher/pkg/apperror"
)

// AuthType discriminates the supported credential schemes.
type AuthType string

const (
	AuthTypeBasic  AuthType = "basic"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeOAuth2 AuthType = "oauth2"
)

const DefaultAPIKeyHeader = "X-API-Key"

// Auth is the credential attached to outbound requests. The set of
// implementations is closed: BasicAuth, BearerAuth, APIKeyAuth, OAuth2Auth.
type Auth interface {
	Type() AuthType
	// Header returns the request header carrying the credential.
	Header() (name, value string)
	validate() error
}

type BasicAuth struct {
	Username string
	Password string
}

func NewBasicAuth(username, password string) BasicAuth {
	return BasicAuth{Username: username, Password: password}
}

func (BasicAuth) Type() AuthType { return AuthTypeBasic }

func (a BasicAuth) Header() (string, string) {
	creds := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	return "Authorization", "Basic " + creds
}

func (a BasicAuth) validate() error {
	if a.Username == "" || a.Password == "" {
		return apperror.Validation("basic auth requires a username and a password")
	}
	return nil
}

type BearerAuth struct {
	Token string
}

func NewBearerAuth(token string) BearerAuth {
	return BearerAuth{Token: token}
}

func (BearerAuth) Type() AuthType { return AuthTypeBearer }

func (a BearerAuth) Header() (string, string) {
	return "Authorization", "Bearer " + a.Token
}

func (a BearerAuth) validate() error {
	if a.Token == "" {
		return apperror.Validation("bearer auth requires a token")
	}
	return nil
}

// APIKeyAuth sends Key in a custom header (X-API-Key when Header is empty).
type APIKeyAuth struct {
	HeaderName string
	Key        string
}

func NewAPIKeyAuth(header, key string) APIKeyAuth {
	return APIKeyAuth{HeaderName: header, Key: key}
}

func (APIKeyAuth) Type() AuthType { return AuthTypeAPIKey }

func (a APIKeyAuth) Header() (string, string) {
	name := strings.TrimSpace(a.HeaderName)
	if name == "" {
		name = DefaultAPIKeyHeader
	}
	return name, a.Key
}

func (a APIKeyAuth) validate() error {
	if a.Key == "" {
		return apperror.Validation("api key auth requires a key")
	}
	return nil
}

// OAuth2Auth carries a pre-obtained access token. Token acquisition and
// refresh happen outside the dispatcher.
type OAuth2Auth struct {
	AccessToken string
}

func NewOAuth2Auth(accessToken string) OAuth2Auth {
	return OAuth2Auth{AccessToken: accessToken}
}

func (OAuth2Auth) Type() AuthType { return AuthTypeOAuth2 }

func (a OAuth2Auth) Header() (string, string) {
	return "Authorization", "Bearer " + a.AccessToken
}

func (a OAuth2Auth) validate() error {
	if a.AccessToken == "" {
		return apperror.Validation("oauth2 auth requires an access token")
	}
	return nil
}

// AuthSpec is the wire and storage form of Auth.
type AuthSpec struct {
	Type        AuthType `json:"type"`
	Username    string   `json:"username,omitempty"`
	Password    string   `json:"password,omitempty"`
	Token       string   `json:"token,omitempty"`
	Header      string   `json:"header,omitempty"`
	Key         string   `json:"key,omitempty"`
	AccessToken string   `json:"access_token,omitempty"`
}

// Build converts the spec into a validated Auth.
func (s AuthSpec) Build() (Auth, error) {
	var a Auth
	switch s.Type {
	case AuthTypeBasic:
		a = NewBasicAuth(s.Username, s.Password)
	case AuthTypeBearer:
		a = NewBearerAuth(s.Token)
	case AuthTypeAPIKey:
		a = NewAPIKeyAuth(s.Header, s.Key)
	case AuthTypeOAuth2:
		a = NewOAuth2Auth(s.AccessToken)
	default:
		return nil, apperror.Validation("unknown auth type " + string(s.Type))
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// SpecOf returns the storage form of a, or nil when a is nil.
func SpecOf(a Auth) *AuthSpec {
	switch v := a.(type) {
	case nil:
		return nil
	case BasicAuth:
		return &AuthSpec{Type: AuthTypeBasic, Username: v.Username, Password: v.Password}
	case BearerAuth:
		return &AuthSpec{Type: AuthTypeBearer, Token: v.Token}
	case APIKeyAuth:
		return &AuthSpec{Type: AuthTypeAPIKey, Header: v.HeaderName, Key: v.Key}
	case OAuth2Auth:
		return &AuthSpec{Type: AuthTypeOAuth2, AccessToken: v.AccessToken}
	default:
		panic("domain: unknown auth implementation")
	}
}
