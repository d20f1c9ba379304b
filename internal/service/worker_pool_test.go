package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"event-dispatcher/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsJobs(t *testing.T) {
	p := NewWorkerPool(2, 10, zerolog.Nop())

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(context.Context) { n.Add(1) }))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(10), n.Load())
}

func TestWorkerPool_QueueFull(t *testing.T) {
	p := NewWorkerPool(1, 1, zerolog.Nop())
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(func(context.Context) {}))

	err := p.Submit(func(context.Context) {})
	assert.True(t, apperror.HasCode(err, apperror.CodeQueueFull))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	p := NewWorkerPool(1, 1, zerolog.Nop())
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(func(context.Context) {})
	assert.True(t, apperror.HasCode(err, apperror.CodeDispatcherClosed))
	assert.NoError(t, p.Shutdown(context.Background()), "shutdown is idempotent")
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	p := NewWorkerPool(1, 2, zerolog.Nop())

	var ran atomic.Bool
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { ran.Store(true) }))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, ran.Load())
}

func TestWorkerPool_ShutdownDeadlineCancelsJobs(t *testing.T) {
	p := NewWorkerPool(1, 1, zerolog.Nop())
	cancelled := make(chan struct{})

	require.NoError(t, p.Submit(func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
}
