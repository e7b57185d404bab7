package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

// MemoryDedupe remembers idempotency keys of one process
type MemoryDedupe struct {
	log logger.Logger
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	deadline map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

var _ Deduper = (*MemoryDedupe)(nil)

// NewInMemoryDedupe keeps keys for ttl; sweepEvery=0 disables the background sweep
// and expired keys are then only overwritten on reuse
func NewInMemoryDedupe(log logger.Logger, ttl, sweepEvery time.Duration) *MemoryDedupe {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	m := &MemoryDedupe{
		log:      log,
		ttl:      ttl,
		now:      time.Now,
		deadline: make(map[string]time.Time, 1024),
		stop:     make(chan struct{}),
	}

	if sweepEvery > 0 {
		go m.sweepLoop(sweepEvery)
	}

	return m
}

func (m *MemoryDedupe) Seen(_ context.Context, key string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if until, ok := m.deadline[key]; ok && now.Before(until) {
		return true, nil
	}
	m.deadline[key] = now.Add(m.ttl)
	return false, nil
}

func (m *MemoryDedupe) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.deadline, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryDedupe) Health(context.Context) error {
	return nil
}

// Len is the number of remembered keys, expired ones included until swept
func (m *MemoryDedupe) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deadline)
}

func (m *MemoryDedupe) sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, until := range m.deadline {
		if !now.Before(until) {
			delete(m.deadline, k)
			removed++
		}
	}
	return removed
}

func (m *MemoryDedupe) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			if removed := m.sweep(); removed > 0 {
				m.log.Debugf("Dedupe sweep removed %d expired keys", removed)
			}
		}
	}
}

// Close stops the background sweep
func (m *MemoryDedupe) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}
