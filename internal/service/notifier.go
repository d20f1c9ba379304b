package service

import (
	"sync"
	"sync/atomic"
	"time"

	"event-dispatcher/internal/core/domain"
)

// Notifier implements ports.Notifier as an in-process broadcast bus.
// Publishing never blocks: a subscriber whose buffer is full misses the
// notification and the drop is counted.
type Notifier struct {
	mu      sync.RWMutex
	subs    map[uint64]chan domain.Notification
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
	now     func() time.Time
}

func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[uint64]chan domain.Notification),
		now:  time.Now,
	}
}

// Subscribe registers a listener. The returned cancel func closes the
// channel and is safe to call more than once.
func (n *Notifier) Subscribe(buffer int) (<-chan domain.Notification, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan domain.Notification, buffer)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.nextID
	n.nextID++
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
}

func (n *Notifier) Publish(note domain.Notification) {
	if note.Timestamp.IsZero() {
		note.Timestamp = n.now()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs {
		select {
		case ch <- note:
		default:
			n.dropped.Add(1)
		}
	}
}

// Dropped returns the number of notifications lost to full buffers.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
