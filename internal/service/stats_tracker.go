package service

import (
	"sync"
	"time"

	"event-dispatcher/internal/core/domain"
)

// StatsTracker implements ports.StatsTracker. Each target has its own entry
// and lock; the map lock is only held to find or create entries.
//
// Discarded ids are remembered so that a delivery finishing after its target
// was unregistered cannot bring the entry back. Target ids are never reused.
type StatsTracker struct {
	mu        sync.RWMutex
	entries   map[string]*statsEntry
	discarded map[string]struct{}
	now       func() time.Time
}

type statsEntry struct {
	mu    sync.Mutex
	stats domain.DeliveryStats
}

func NewStatsTracker() *StatsTracker {
	return &StatsTracker{
		entries:   make(map[string]*statsEntry),
		discarded: make(map[string]struct{}),
		now:       time.Now,
	}
}

// Record adds one completed attempt. Records for discarded targets are
// dropped.
func (t *StatsTracker) Record(targetID string, success bool, duration time.Duration) {
	e := t.entry(targetID)
	if e == nil {
		return
	}
	at := t.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := &e.stats
	s.TotalCalls++
	if success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	s.TotalDuration += duration
	s.AverageDuration = s.TotalDuration / time.Duration(s.TotalCalls)
	s.LastCalledAt = &at
}

// Get returns a snapshot; unknown targets yield zeroed stats.
func (t *StatsTracker) Get(targetID string) domain.DeliveryStats {
	t.mu.RLock()
	e, ok := t.entries[targetID]
	t.mu.RUnlock()
	if !ok {
		return domain.DeliveryStats{TargetID: targetID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.stats
	if out.LastCalledAt != nil {
		last := *out.LastCalledAt
		out.LastCalledAt = &last
	}
	return out
}

func (t *StatsTracker) Discard(targetID string) {
	t.mu.Lock()
	delete(t.entries, targetID)
	t.discarded[targetID] = struct{}{}
	t.mu.Unlock()
}

func (t *StatsTracker) entry(targetID string) *statsEntry {
	t.mu.RLock()
	e, ok := t.entries[targetID]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, gone := t.discarded[targetID]; gone {
		return nil
	}
	if e, ok = t.entries[targetID]; !ok {
		e = &statsEntry{stats: domain.DeliveryStats{TargetID: targetID}}
		t.entries[targetID] = e
	}
	return e
}
