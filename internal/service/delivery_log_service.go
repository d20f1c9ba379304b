package service

import (
	"context"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
	"event-dispatcher/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	defaultDeliveryLogLimit = 50
	maxDeliveryLogLimit     = 500
	deliveryLogWriteTimeout = 5 * time.Second
)

// DeliveryLogServiceImpl records delivery outcomes taken from the
// notification stream and serves them back per target. Without a repository
// outcomes are only logged.
type DeliveryLogServiceImpl struct {
	repo ports.DeliveryLogRepository // optional
	log  zerolog.Logger
}

func NewDeliveryLogService(repo ports.DeliveryLogRepository, log zerolog.Logger) *DeliveryLogServiceImpl {
	return &DeliveryLogServiceImpl{repo: repo, log: log}
}

// Run consumes notes until the channel is closed or ctx is done.
func (s *DeliveryLogServiceImpl) Run(ctx context.Context, notes <-chan domain.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			s.record(n)
		}
	}
}

func (s *DeliveryLogServiceImpl) record(n domain.Notification) {
	if n.Result == nil {
		return
	}
	r := n.Result

	var ev *zerolog.Event
	switch r.State {
	case domain.DeliveryDelivered, domain.DeliveryRateLimited:
		ev = s.log.Info()
	default:
		ev = s.log.Warn()
	}
	ev.Str("target_id", r.TargetID).
		Str("event", r.EventName).
		Str("delivery_id", r.DeliveryID).
		Str("job_id", r.JobID).
		Int("attempt", r.Attempt).
		Str("state", string(r.State)).
		Int("status", r.StatusCode).
		Dur("duration", r.Duration).
		Str("error", r.Error).
		Msg("delivery")

	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliveryLogWriteTimeout)
	defer cancel()
	if err := s.repo.Create(ctx, domain.NewDeliveryLog(*r)); err != nil {
		s.log.Warn().Err(err).Str("delivery_id", r.DeliveryID).Msg("failed to persist delivery log")
	}
}

// ListByTarget returns the newest logs first. limit is clamped to
// [1, 500]; zero or less means 50.
func (s *DeliveryLogServiceImpl) ListByTarget(ctx context.Context, targetID string, limit int) ([]domain.DeliveryLog, error) {
	if limit <= 0 {
		limit = defaultDeliveryLogLimit
	}
	if limit > maxDeliveryLogLimit {
		limit = maxDeliveryLogLimit
	}
	if s.repo == nil {
		return []domain.DeliveryLog{}, nil
	}

	logs, err := s.repo.ListByTarget(ctx, targetID, limit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if logs == nil {
		logs = []domain.DeliveryLog{}
	}
	return logs, nil
}

// Purge deletes logs older than maxAge.
func (s *DeliveryLogServiceImpl) Purge(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	n, err := s.repo.PurgeBefore(ctx, now.Add(-maxAge))
	if err != nil {
		return 0, apperror.ErrDatabaseError(err)
	}
	return n, nil
}
