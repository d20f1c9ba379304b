package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Purger deletes delivery history older than maxAge.
type Purger interface {
	Purge(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error)
}

// RetentionJob purges old delivery logs on a cron schedule.
type RetentionJob struct {
	cron   *cron.Cron
	purger Purger
	maxAge time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

// NewRetentionJob parses schedule (standard five-field cron or a descriptor
// such as "@hourly") and registers the purge.
func NewRetentionJob(schedule string, maxAge time.Duration, purger Purger, log zerolog.Logger) (*RetentionJob, error) {
	j := &RetentionJob{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		purger: purger,
		maxAge: maxAge,
		log:    log,
		now:    time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, func() { _, _ = j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule retention %q: %w", schedule, err)
	}
	return j, nil
}

func (j *RetentionJob) Start() {
	j.cron.Start()
	j.log.Info().Dur("max_age", j.maxAge).Msg("retention job started")
}

// Schedule adds a housekeeping task to the same cron.
func (j *RetentionJob) Schedule(spec, name string, task func()) error {
	if _, err := j.cron.AddFunc(spec, task); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

// Stop waits for a running purge to finish or ctx to expire.
func (j *RetentionJob) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single purge.
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.purger.Purge(ctx, j.maxAge, j.now())
	if err != nil {
		j.log.Error().Err(err).Msg("retention purge failed")
		return 0, err
	}
	j.log.Info().Int64("deleted", n).Msg("retention purge completed")
	return n, nil
}
