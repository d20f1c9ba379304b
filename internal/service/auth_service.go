package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"event-dispatcher/internal/core/ports"
	"event-dispatcher/pkg/apperror"
)

// AuthServiceImpl implements ports.AuthService for the single operator
// client configured at startup.
type AuthServiceImpl struct {
	clientID   string
	secretHash string
	hashSvc    ports.HashService
	tokenSvc   ports.TokenService
}

// NewAuthService creates a new AuthServiceImpl. secretHash is an Argon2id
// hash as produced by HashService.Hash.
func NewAuthService(clientID, secretHash string, hashSvc ports.HashService, tokenSvc ports.TokenService) *AuthServiceImpl {
	return &AuthServiceImpl{
		clientID:   clientID,
		secretHash: secretHash,
		hashSvc:    hashSvc,
		tokenSvc:   tokenSvc,
	}
}

// IssueToken validates operator credentials and returns a JWT token.
func (s *AuthServiceImpl) IssueToken(_ context.Context, clientID, clientSecret string) (string, time.Time, error) {
	if s.clientID == "" || s.secretHash == "" {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	idOK := subtle.ConstantTimeCompare([]byte(clientID), []byte(s.clientID)) == 1

	// Verify the secret even for an unknown client id so both paths cost the same.
	valid, err := s.hashSvc.Verify(clientSecret, s.secretHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify client secret: %w", err))
	}
	if !idOK || !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(clientID)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}
	return token, expiry, nil
}
