package batchstore

import (
	"anchor/internal/domain"
	"context"
	"errors"
	"fmt"
	"sync"
)

var errInvalidResult = errors.New("batch result without id")

func notFound(batchID string) error {
	return fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
}

// Repository keeps completed batch results for proof and summary lookups
type Repository interface {
	Save(ctx context.Context, res *domain.BatchResult) error
	Get(ctx context.Context, batchID string) (*domain.BatchResult, error)
	Latest(ctx context.Context) (*domain.BatchResult, error)
}

type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[string]*domain.BatchResult
	latest string
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*domain.BatchResult)}
}

func (m *MemoryRepository) Save(_ context.Context, res *domain.BatchResult) error {
	if res == nil || res.BatchID == "" {
		return errInvalidResult
	}

	m.mu.Lock()
	m.items[res.BatchID] = res
	m.latest = res.BatchID
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, batchID string) (*domain.BatchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.items[batchID]
	if !ok {
		return nil, notFound(batchID)
	}
	return res, nil
}

func (m *MemoryRepository) Latest(ctx context.Context) (*domain.BatchResult, error) {
	m.mu.RLock()
	id := m.latest
	m.mu.RUnlock()

	if id == "" {
		return nil, notFound("latest")
	}
	return m.Get(ctx, id)
}
