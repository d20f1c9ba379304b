package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
	"event-dispatcher/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DispatcherOptions tunes fan-out and the async queue.
type DispatcherOptions struct {
	RequestTimeout time.Duration
	MaxConcurrency int
	AsyncWorkers   int
	AsyncQueueSize int
	UserAgent      string
}

func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		RequestTimeout: 30 * time.Second,
		MaxConcurrency: 16,
		AsyncWorkers:   4,
		AsyncQueueSize: 256,
		UserAgent:      "event-dispatcher/1.0",
	}
}

// delivery is one triggered event, shared by every attempt against every
// target it resolves to.
type delivery struct {
	event   string
	payload any
	caller  *domain.CallerContext
	jobID   string
}

// Dispatcher implements ports.Dispatcher.
type Dispatcher struct {
	registry  ports.Registry
	limiter   ports.RateLimiter
	stats     ports.StatsTracker
	transport ports.Transport
	notifier  ports.Notifier
	builder   requestBuilder
	pool      *WorkerPool
	opts      DispatcherOptions
	log       zerolog.Logger
	now       func() time.Time

	// afterFunc schedules retries; replaced in tests.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu      sync.Mutex
	closed  bool
	timers  map[*time.Timer]struct{}
	retries sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDispatcher(
	registry ports.Registry,
	limiter ports.RateLimiter,
	signer ports.Signer,
	stats ports.StatsTracker,
	transport ports.Transport,
	notifier ports.Notifier,
	opts DispatcherOptions,
	log zerolog.Logger,
) *Dispatcher {
	def := DefaultDispatcherOptions()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if opts.AsyncWorkers <= 0 {
		opts.AsyncWorkers = def.AsyncWorkers
	}
	if opts.AsyncQueueSize <= 0 {
		opts.AsyncQueueSize = def.AsyncQueueSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry:  registry,
		limiter:   limiter,
		stats:     stats,
		transport: transport,
		notifier:  notifier,
		builder:   requestBuilder{signer: signer, userAgent: opts.UserAgent},
		pool:      NewWorkerPool(opts.AsyncWorkers, opts.AsyncQueueSize, log),
		opts:      opts,
		log:       log,
		now:       time.Now,
		afterFunc: time.AfterFunc,
		timers:    make(map[*time.Timer]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Trigger delivers event to every matching target and waits for the first
// attempt of each. Retries run later on their own timers.
func (d *Dispatcher) Trigger(ctx context.Context, event string, payload any, caller *domain.CallerContext) []domain.DeliveryResult {
	return d.fanOut(ctx, &delivery{event: event, payload: payload, caller: caller})
}

// TriggerAsync queues the fan-out on the worker pool. Only a full queue or a
// closed dispatcher is reported to the caller.
func (d *Dispatcher) TriggerAsync(_ context.Context, event string, payload any, caller *domain.CallerContext) (string, error) {
	jobID := uuid.NewString()
	dl := &delivery{event: event, payload: payload, caller: caller, jobID: jobID}

	err := d.pool.Submit(func(ctx context.Context) {
		results := d.fanOut(ctx, dl)
		if err := ctx.Err(); err != nil {
			d.notifier.Publish(domain.Notification{
				Type:      domain.NotifyDispatchError,
				EventName: event,
				JobID:     jobID,
				Error:     err.Error(),
			})
		}
		d.log.Debug().Str("job_id", jobID).Str("event", event).Int("targets", len(results)).Msg("dispatch: async job done")
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// Close cancels pending retries, then drains queued async jobs and waits for
// running retries until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for t := range d.timers {
		t.Stop()
		delete(d.timers, t)
	}
	d.mu.Unlock()

	err := d.pool.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		d.retries.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	d.cancel()
	return err
}

func (d *Dispatcher) fanOut(ctx context.Context, dl *delivery) []domain.DeliveryResult {
	targets := d.registry.ResolveForEvent(dl.event)
	results := make([]domain.DeliveryResult, len(targets))
	if len(targets) == 0 {
		d.log.Debug().Str("event", dl.event).Msg("dispatch: no targets subscribed")
		return results
	}

	var g errgroup.Group
	g.SetLimit(d.opts.MaxConcurrency)
	for i := range targets {
		g.Go(func() error {
			results[i] = d.safeAttempt(ctx, &targets[i], dl, 0)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// safeAttempt runs attempt and turns a panic (typically from a Transform)
// into a failed result plus a dispatch-error notification.
func (d *Dispatcher) safeAttempt(ctx context.Context, t *domain.Target, dl *delivery, attempt int) (res domain.DeliveryResult) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("target_id", t.ID).
				Str("event", dl.event).
				Str("job_id", dl.jobID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("dispatch: delivery panicked")
			res = domain.DeliveryResult{
				TargetID:  t.ID,
				EventName: dl.event,
				JobID:     dl.jobID,
				Attempt:   attempt,
				State:     domain.DeliveryFailed,
				Error:     fmt.Sprintf("panic: %v", r),
				Timestamp: d.now().UTC(),
			}
			d.notifier.Publish(domain.Notification{
				Type:      domain.NotifyDispatchError,
				TargetID:  t.ID,
				EventName: dl.event,
				JobID:     dl.jobID,
				Attempt:   attempt,
				Error:     res.Error,
			})
		}
	}()
	return d.attempt(ctx, t, dl, attempt)
}

// attempt performs one delivery to one target and schedules the follow-up
// retry when the transport fails.
func (d *Dispatcher) attempt(ctx context.Context, t *domain.Target, dl *delivery, attempt int) domain.DeliveryResult {
	res := domain.DeliveryResult{
		TargetID:   t.ID,
		EventName:  dl.event,
		JobID:      dl.jobID,
		DeliveryID: uuid.NewString(),
		Attempt:    attempt,
		State:      domain.DeliveryPending,
		Timestamp:  d.now().UTC(),
	}
	log := d.log.With().Str("target_id", t.ID).Str("event", dl.event).Int("attempt", attempt).Logger()

	admitted, err := d.limiter.Admit(ctx, t.ID, t.RateLimit)
	if err != nil {
		log.Warn().Err(err).Msg("dispatch: rate limiter unavailable, admitting")
		admitted = true
	}
	if !admitted {
		res.State = domain.DeliveryRateLimited
		res.Error = apperror.ErrRateLimitExceeded().Message
		log.Info().Msg("dispatch: rate limited")
		d.publish(domain.NotifyRateLimited, &res)
		return res
	}

	req, err := d.builder.build(t, dl, res.DeliveryID, attempt)
	if err != nil {
		res.State = domain.DeliveryFailed
		res.Error = err.Error()
		log.Error().Err(err).Msg("dispatch: failed to build request")
		d.publish(domain.NotifyFailed, &res)
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, d.opts.RequestTimeout)
	start := d.now()
	resp, err := d.transport.Send(callCtx, req)
	res.Duration = d.now().Sub(start)
	cancel()

	if err == nil {
		res.State = domain.DeliveryDelivered
		res.Success = true
		res.StatusCode = resp.StatusCode
		res.ResponseBody = string(resp.Body)
		d.stats.Record(t.ID, true, res.Duration)
		log.Info().Int("status", resp.StatusCode).Dur("duration", res.Duration).Msg("dispatch: delivered")
		d.publish(domain.NotifyDelivered, &res)
		return res
	}

	var te *ports.TransportError
	if errors.As(err, &te) {
		res.StatusCode = te.StatusCode
		res.ResponseBody = te.Body
	}
	res.Error = apperror.ErrTransport(res.StatusCode, err).Error()
	res.State = domain.DeliveryFailed
	d.stats.Record(t.ID, false, res.Duration)

	exhausted := t.Retry != nil && !t.Retry.HasAttemptsLeft(attempt)
	if exhausted {
		res.State = domain.DeliveryExhausted
	}
	log.Warn().Err(err).Int("status", res.StatusCode).Msg("dispatch: delivery failed")
	d.publish(domain.NotifyFailed, &res)

	switch {
	case t.Retry == nil:
	case exhausted:
		log.Error().Msg("dispatch: all retry attempts exhausted")
		d.notifier.Publish(domain.Notification{
			Type:      domain.NotifyRetryExhausted,
			TargetID:  t.ID,
			EventName: dl.event,
			JobID:     dl.jobID,
			Attempt:   attempt,
			Error:     apperror.ErrRetryExhausted(attempt + 1).Message,
		})
	default:
		d.scheduleRetry(t, dl, attempt+1)
	}
	return res
}

func (d *Dispatcher) scheduleRetry(t *domain.Target, dl *delivery, next int) {
	delay := t.Retry.Delay(next)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	var timer *time.Timer
	timer = d.afterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, timer)
		if d.closed {
			d.mu.Unlock()
			return
		}
		d.retries.Add(1)
		d.mu.Unlock()

		defer d.retries.Done()
		d.retry(t.ID, dl, next)
	})
	d.timers[timer] = struct{}{}

	d.log.Info().Str("target_id", t.ID).Str("event", dl.event).Int("attempt", next).Dur("delay", delay).Msg("dispatch: retry scheduled")
	d.notifier.Publish(domain.Notification{
		Type:      domain.NotifyRetryScheduled,
		TargetID:  t.ID,
		EventName: dl.event,
		JobID:     dl.jobID,
		Attempt:   next,
		Delay:     delay,
	})
}

// retry re-reads the target so that unregistered or suspended targets are
// dropped, then attempts it alone.
func (d *Dispatcher) retry(targetID string, dl *delivery, attempt int) {
	t, err := d.registry.Get(targetID)
	if err != nil || !t.IsActive() {
		d.log.Debug().Str("target_id", targetID).Int("attempt", attempt).Msg("dispatch: retry dropped, target no longer active")
		return
	}
	d.safeAttempt(d.ctx, &t, dl, attempt)
}

func (d *Dispatcher) publish(typ domain.NotificationType, res *domain.DeliveryResult) {
	r := *res
	d.notifier.Publish(domain.Notification{
		Type:      typ,
		TargetID:  r.TargetID,
		EventName: r.EventName,
		JobID:     r.JobID,
		Attempt:   r.Attempt,
		Result:    &r,
		Error:     r.Error,
	})
}
