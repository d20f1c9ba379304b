package service

import (
	"sync"
	"testing"
	"time"

	"event-dispatcher/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_FanOut(t *testing.T) {
	n := NewNotifier()
	a, cancelA := n.Subscribe(4)
	defer cancelA()
	b, cancelB := n.Subscribe(4)
	defer cancelB()

	n.Publish(domain.Notification{Type: domain.NotifyRegistered, TargetID: "t1"})

	for _, ch := range []<-chan domain.Notification{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, domain.NotifyRegistered, got.Type)
			assert.Equal(t, "t1", got.TargetID)
			assert.False(t, got.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("notification not received")
		}
	}
}

func TestNotifier_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	n := NewNotifier()
	slow, cancelSlow := n.Subscribe(1)
	defer cancelSlow()
	fast, cancelFast := n.Subscribe(10)
	defer cancelFast()

	for i := 0; i < 3; i++ {
		n.Publish(domain.Notification{Type: domain.NotifyDelivered, Attempt: i})
	}

	assert.Equal(t, uint64(2), n.Dropped())
	assert.Len(t, slow, 1)
	assert.Len(t, fast, 3)
}

func TestNotifier_CancelClosesChannel(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe(1)

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	n.Publish(domain.Notification{Type: domain.NotifyFailed})
	assert.Zero(t, n.Dropped())
}

func TestNotifier_Close(t *testing.T) {
	n := NewNotifier()
	ch, cancel := n.Subscribe(1)

	n.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := n.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")

	n.Publish(domain.Notification{Type: domain.NotifyFailed})
}

func TestNotifier_ConcurrentPublishAndCancel(t *testing.T) {
	n := NewNotifier()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		_, cancel := n.Subscribe(2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				n.Publish(domain.Notification{Type: domain.NotifyDelivered})
			}
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	wg.Wait()
	require.NotPanics(t, n.Close)
}
