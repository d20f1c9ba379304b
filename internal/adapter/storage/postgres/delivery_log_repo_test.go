package postgres

import (
	"context"
	"testing"
	"time"

	"event-dispatcher/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func newTestDeliveryLog() *domain.DeliveryLog {
	return domain.NewDeliveryLog(domain.DeliveryResult{
		TargetID:   "5c0b3a4e-1d2f-4b9a-8f3e-0a1b2c3d4e5f",
		EventName:  "invoice.paid",
		JobID:      "job-1",
		DeliveryID: "dlv-1",
		Attempt:    1,
		State:      domain.DeliveryFailed,
		StatusCode: 500,
		Error:      "[DLV_001] Delivery failed with status 500",
		Duration:   120 * time.Millisecond,
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
	})
}

func deliveryLogColumns() []string {
	return []string{"id", "target_id", "event", "job_id", "delivery_id", "attempt", "state",
		"status_code", "last_error", "duration_ms", "created_at"}
}

func TestDeliveryLogRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := newTestDeliveryLog()
	mock.ExpectExec("INSERT INTO delivery_logs").
		WithArgs(l.ID, l.TargetID, l.EventName, strPtr("job-1"), l.DeliveryID,
			1, "failed", intPtr(500), l.LastError, int64(120), l.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewDeliveryLogRepo(mock).Create(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryLogRepo_ListByTarget(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	l := newTestDeliveryLog()
	mock.ExpectQuery("SELECT .+ FROM delivery_logs WHERE target_id").
		WithArgs(l.TargetID, 20).
		WillReturnRows(pgxmock.NewRows(deliveryLogColumns()).AddRow(
			l.ID, l.TargetID, l.EventName, l.JobID, l.DeliveryID,
			l.Attempt, string(l.State), l.StatusCode, l.LastError,
			l.DurationMs, l.CreatedAt,
		))

	logs, err := NewDeliveryLogRepo(mock).ListByTarget(context.Background(), l.TargetID, 20)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, l.ID, logs[0].ID)
	assert.Equal(t, domain.DeliveryFailed, logs[0].State)
	require.NotNil(t, logs[0].StatusCode)
	assert.Equal(t, 500, *logs[0].StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryLogRepo_PurgeBefore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM delivery_logs WHERE created_at").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 42))

	n, err := NewDeliveryLogRepo(mock).PurgeBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
