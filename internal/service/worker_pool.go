package service

import (
	"context"
	"runtime/debug"
	"sync"

	"event-dispatcher/pkg/apperror"

	"github.com/rs/zerolog"
)

// Job is a unit of background work. The context is cancelled when the pool
// is forced to stop.
type Job func(ctx context.Context)

// WorkerPool runs jobs on a fixed number of goroutines fed by a bounded queue.
type WorkerPool struct {
	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	log    zerolog.Logger
}

func NewWorkerPool(workers, queueSize int, log zerolog.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		jobs:   make(chan Job, queueSize),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit enqueues job without blocking.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return apperror.ErrDispatcherClosed()
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return apperror.ErrQueueFull()
	}
}

// Shutdown stops intake and waits for queued jobs. If ctx expires first the
// remaining jobs see a cancelled context.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *WorkerPool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().
				Int("worker", id).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("worker job panicked")
		}
	}()
	job(p.ctx)
}
