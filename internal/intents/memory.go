package intents

import (
	"anchor/internal/domain"
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

var _ Store = (*MemoryStore)(nil)

// In-process store for dev and tests; one instance only
type MemoryStore struct {
	log   logger.Logger
	now   func() time.Time
	mu    sync.RWMutex
	items []domain.SwapIntent
	index map[string]int // id -> position in items
}

func NewMemoryStore(log logger.Logger) *MemoryStore {
	return &MemoryStore{
		log:   log,
		now:   time.Now,
		items: make([]domain.SwapIntent, 0, 1024),
		index: make(map[string]int, 1024),
	}
}

func (m *MemoryStore) Submit(_ context.Context, in *domain.SwapIntent) (string, error) {
	if err := prepare(in, m.now()); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[in.ID]; exists {
		return "", fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidIntent, in.ID)
	}

	m.index[in.ID] = len(m.items)
	m.items = append(m.items, *in)

	m.log.Debugf("Added intent %s to queue", in.ID)
	return in.ID, nil
}

func (m *MemoryStore) Pending(_ context.Context) ([]domain.SwapIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SwapIntent, 0, len(m.items))
	for i := range m.items {
		if m.items[i].Status == domain.StatusPending {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id string, status domain.Status, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.index[id]
	if !ok {
		return fmt.Errorf("intent %s: %w", id, domain.ErrNotFound)
	}

	rec := m.items[pos]
	if err := applyStatus(&rec, status, batchID, m.now()); err != nil {
		return err
	}
	m.items[pos] = rec

	m.log.Debugf("Updated intent %s status to %s", id, status)
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]domain.SwapIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SwapIntent, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (domain.SwapIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.index[id]
	if !ok {
		return domain.SwapIntent{}, fmt.Errorf("intent %s: %w", id, domain.ErrNotFound)
	}
	return m.items[pos], nil
}

func (m *MemoryStore) ByBatch(_ context.Context, batchID string) ([]domain.SwapIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SwapIntent, 0)
	for i := range m.items {
		if m.items[i].BatchID == batchID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) (domain.QueueStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var st domain.QueueStats
	for i := range m.items {
		st.Count(m.items[i].Status)
	}
	return st, nil
}
