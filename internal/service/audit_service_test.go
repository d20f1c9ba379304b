package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, zerolog.Nop())

	var got *domain.AuditLog
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, log *domain.AuditLog) error {
			got = log
			return nil
		},
	)

	svc.Log(context.Background(), &domain.AuditLog{
		Actor:        "ops",
		Action:       domain.AuditActionRegisterTarget,
		ResourceType: "target",
		ResourceID:   "t-1",
		IPAddress:    "127.0.0.1",
	})
	svc.Wait()

	if assert.NotNil(t, got) {
		assert.Equal(t, domain.AuditActionRegisterTarget, got.Action)
		assert.NotEqual(t, uuid.Nil, got.ID)
		assert.False(t, got.CreatedAt.IsZero())
	}
}

func TestAuditService_Log_RepoErrorIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	var buf bytes.Buffer
	svc := NewAuditService(mockRepo, zerolog.New(&buf))

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	svc.Log(context.Background(), &domain.AuditLog{Action: domain.AuditActionDeleteTarget, ResourceType: "target"})
	svc.Wait()

	assert.Contains(t, buf.String(), "failed to persist audit log")
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	var buf bytes.Buffer
	svc := NewAuditService(nil, zerolog.New(&buf))

	svc.Log(context.Background(), &domain.AuditLog{
		Action:       domain.AuditActionIssueToken,
		ResourceType: "token",
		IPAddress:    "127.0.0.1",
	})
	svc.Wait()

	assert.Contains(t, buf.String(), `"action":"ISSUE_TOKEN"`)
}
