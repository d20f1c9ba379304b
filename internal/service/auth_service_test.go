package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"event-dispatcher/internal/core/ports/mocks"
	"event-dispatcher/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSecretHash = "$argon2id$hashed"

func setupAuthService(t *testing.T) (*AuthServiceImpl, *mocks.MockHashService, *mocks.MockTokenService) {
	ctrl := gomock.NewController(t)
	hashSvc := mocks.NewMockHashService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	return NewAuthService("ops", testSecretHash, hashSvc, tokenSvc), hashSvc, tokenSvc
}

func TestAuthService_IssueToken_Success(t *testing.T) {
	svc, hashSvc, tokenSvc := setupAuthService(t)
	exp := time.Now().Add(time.Hour)

	hashSvc.EXPECT().Verify("correct_secret", testSecretHash).Return(true, nil)
	tokenSvc.EXPECT().Generate("ops").Return("jwt_token_here", exp, nil)

	token, expiry, err := svc.IssueToken(context.Background(), "ops", "correct_secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt_token_here", token)
	assert.Equal(t, exp, expiry)
}

func TestAuthService_IssueToken_WrongSecret(t *testing.T) {
	svc, hashSvc, _ := setupAuthService(t)

	hashSvc.EXPECT().Verify("wrong", testSecretHash).Return(false, nil)

	_, _, err := svc.IssueToken(context.Background(), "ops", "wrong")
	assert.True(t, apperror.HasCode(err, "AUTH_001"))
}

func TestAuthService_IssueToken_UnknownClient(t *testing.T) {
	svc, hashSvc, _ := setupAuthService(t)

	hashSvc.EXPECT().Verify("correct_secret", testSecretHash).Return(true, nil)

	_, _, err := svc.IssueToken(context.Background(), "intruder", "correct_secret")
	assert.True(t, apperror.HasCode(err, "AUTH_001"))
}

func TestAuthService_IssueToken_HashError(t *testing.T) {
	svc, hashSvc, _ := setupAuthService(t)

	hashSvc.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(false, errors.New("malformed hash"))

	_, _, err := svc.IssueToken(context.Background(), "ops", "x")
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SYS_000", appErr.Code)
}

func TestAuthService_IssueToken_NotConfigured(t *testing.T) {
	svc := NewAuthService("", "", nil, nil)

	_, _, err := svc.IssueToken(context.Background(), "", "")
	assert.True(t, apperror.HasCode(err, "AUTH_001"))
}

func TestAuthService_IssueToken_RealHash(t *testing.T) {
	hashSvc := NewArgon2HashServiceWithParams(testArgon2Params)
	hash, err := hashSvc.Hash("s3cret")
	require.NoError(t, err)

	svc := NewAuthService("ops", hash, hashSvc, NewJWTTokenService(testJWTSecret, time.Hour, "event-dispatcher"))

	token, _, err := svc.IssueToken(context.Background(), "ops", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, _, err = svc.IssueToken(context.Background(), "ops", "nope")
	assert.True(t, apperror.HasCode(err, "AUTH_001"))
}
