package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestTarget() *domain.Target {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Target{
		ID:             uuid.NewString(),
		Name:           "billing",
		URL:            "https://billing.example.com/hooks",
		Event:          "invoice.paid",
		Method:         "POST",
		Headers:        map[string]string{"X-Tenant": "acme"},
		Auth:           domain.NewAPIKeyAuth("X-Key", "k-1"),
		Retry:          &domain.RetryPolicy{MaxAttempts: 3, Backoff: domain.BackoffExponential, BaseDelay: time.Second},
		RateLimit:      &domain.RateLimitPolicy{Max: 10, Window: time.Minute},
		Signing:        true,
		SigningVersion: "v1",
		Status:         domain.TargetStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func targetColumnNames() []string {
	return []string{"id", "name", "url", "event", "method", "headers", "auth_enc", "retry", "rate_limit",
		"signing", "signing_version", "status", "created_at", "updated_at"}
}

func TestTargetRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	enc := mocks.NewMockEncryptionService(gomock.NewController(t))
	repo := NewTargetRepo(mock, enc)
	tg := newTestTarget()

	authJSON := string(mustJSON(t, domain.SpecOf(tg.Auth)))
	enc.EXPECT().Encrypt(authJSON).Return("sealed-auth", nil)
	sealed := "sealed-auth"

	mock.ExpectExec("INSERT INTO targets").
		WithArgs(tg.ID, tg.Name, tg.URL, tg.Event, tg.Method,
			mustJSON(t, tg.Headers), &sealed, mustJSON(t, tg.Retry), mustJSON(t, tg.RateLimit),
			tg.Signing, tg.SigningVersion, string(tg.Status),
			tg.CreatedAt, tg.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), tg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetRepo_Create_EncryptFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	enc := mocks.NewMockEncryptionService(gomock.NewController(t))
	repo := NewTargetRepo(mock, enc)

	enc.EXPECT().Encrypt(gomock.Any()).Return("", errors.New("bad key"))

	err = repo.Create(context.Background(), newTestTarget())
	assert.ErrorContains(t, err, "seal auth")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTargetRepo(mock, nil)
	tg := newTestTarget()
	tg.Auth = nil
	tg.Headers = nil
	tg.RateLimit = nil
	tg.Status = domain.TargetStatusDisabled

	mock.ExpectExec("UPDATE targets").
		WithArgs(tg.Name, tg.URL, tg.Event, tg.Method,
			[]byte(nil), (*string)(nil), mustJSON(t, tg.Retry), []byte(nil),
			tg.Signing, tg.SigningVersion, "disabled", tg.UpdatedAt,
			tg.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), tg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetRepo_Update_NoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTargetRepo(mock, nil)
	tg := newTestTarget()
	tg.Auth = nil

	mock.ExpectExec("UPDATE targets").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			tg.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Update(context.Background(), tg)
	assert.ErrorContains(t, err, "no rows affected")
}

func TestTargetRepo_ListLive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	enc := mocks.NewMockEncryptionService(gomock.NewController(t))
	repo := NewTargetRepo(mock, enc)
	tg := newTestTarget()
	plain := newTestTarget()
	plain.Auth = nil
	plain.Retry = nil
	plain.RateLimit = nil
	plain.Headers = nil
	plain.Status = domain.TargetStatusSuspended

	sealed := "sealed-auth"
	enc.EXPECT().Decrypt(sealed).Return(string(mustJSON(t, domain.SpecOf(tg.Auth))), nil)

	rows := pgxmock.NewRows(targetColumnNames()).
		AddRow(tg.ID, tg.Name, tg.URL, tg.Event, tg.Method,
			mustJSON(t, tg.Headers), &sealed, mustJSON(t, tg.Retry), mustJSON(t, tg.RateLimit),
			tg.Signing, tg.SigningVersion, string(tg.Status), tg.CreatedAt, tg.UpdatedAt).
		AddRow(plain.ID, plain.Name, plain.URL, plain.Event, plain.Method,
			[]byte(nil), (*string)(nil), []byte(nil), []byte(nil),
			plain.Signing, plain.SigningVersion, string(plain.Status), plain.CreatedAt, plain.UpdatedAt)

	mock.ExpectQuery("SELECT .+ FROM targets WHERE status").
		WithArgs("disabled").
		WillReturnRows(rows)

	got, err := repo.ListLive(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, tg.ID, got[0].ID)
	assert.Equal(t, tg.Headers, got[0].Headers)
	assert.Equal(t, tg.Retry, got[0].Retry)
	assert.Equal(t, tg.RateLimit, got[0].RateLimit)
	assert.Equal(t, tg.Auth, got[0].Auth)
	assert.Equal(t, domain.TargetStatusActive, got[0].Status)

	assert.Nil(t, got[1].Auth)
	assert.Nil(t, got[1].Retry)
	assert.Equal(t, domain.TargetStatusSuspended, got[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTargetRepo_ListLive_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM targets").
		WithArgs("disabled").
		WillReturnError(errors.New("connection reset"))

	_, err = NewTargetRepo(mock, nil).ListLive(context.Background())
	assert.ErrorContains(t, err, "list targets")
}
