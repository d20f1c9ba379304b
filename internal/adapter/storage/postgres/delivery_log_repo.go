package postgres

import (
	"context"
	"fmt"
	"time"

	"event-dispatcher/internal/core/domain"
)

// DeliveryLogRepo implements ports.DeliveryLogRepository.
type DeliveryLogRepo struct {
	pool Pool
}

func NewDeliveryLogRepo(pool Pool) *DeliveryLogRepo {
	return &DeliveryLogRepo{pool: pool}
}

func (r *DeliveryLogRepo) Create(ctx context.Context, l *domain.DeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO delivery_logs
(id, target_id, event, job_id, delivery_id, attempt, state, status_code, last_error, duration_ms, created_at)
 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		l.ID, l.TargetID, l.EventName, l.JobID, l.DeliveryID,
		l.Attempt, string(l.State), l.StatusCode, l.LastError,
		l.DurationMs, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery log: %w", err)
	}
	return nil
}

// ListByTarget returns the newest logs first.
func (r *DeliveryLogRepo) ListByTarget(ctx context.Context, targetID string, limit int) ([]domain.DeliveryLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, target_id, event, job_id, delivery_id, attempt, state,
status_code, last_error, duration_ms, created_at
 FROM delivery_logs
 WHERE target_id=$1
 ORDER BY created_at DESC
 LIMIT $2`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.DeliveryLog
	for rows.Next() {
		var l domain.DeliveryLog
		var state string
		if err := rows.Scan(
			&l.ID, &l.TargetID, &l.EventName, &l.JobID, &l.DeliveryID,
			&l.Attempt, &state, &l.StatusCode, &l.LastError,
			&l.DurationMs, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}
		l.State = domain.DeliveryState(state)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// PurgeBefore deletes logs created before cutoff and reports how many.
func (r *DeliveryLogRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM delivery_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge delivery logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
