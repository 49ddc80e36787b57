package memory

import (
	"context"
	"sort"
	"sync"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

// RateUpdateStore is an in-memory implementation of storage.RateUpdateStore.
type RateUpdateStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.RateUpdate // keyed by sequence
}

// NewRateUpdateStore creates a new in-memory rate update store.
func NewRateUpdateStore() *RateUpdateStore {
	return &RateUpdateStore{
		data: make(map[uint64]*domain.RateUpdate),
	}
}

// Insert adds a new rate update. Returns ErrDuplicateKey if the sequence exists.
func (s *RateUpdateStore) Insert(_ context.Context, u *domain.RateUpdate) error {
	if u == nil || u.Sequence == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[u.Sequence]; exists {
		return storage.ErrDuplicateKey
	}

	updateCopy := *u
	s.data[u.Sequence] = &updateCopy
	return nil
}

// Latest returns the most recent update. Returns ErrNotFound if none exist.
func (s *RateUpdateStore) Latest(_ context.Context) (*domain.RateUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.RateUpdate
	for _, u := range s.data {
		if latest == nil || u.Sequence > latest.Sequence {
			latest = u
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	updateCopy := *latest
	return &updateCopy, nil
}

// History retrieves all updates, ordered by sequence ASC.
func (s *RateUpdateStore) History(_ context.Context) ([]*domain.RateUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RateUpdate, 0, len(s.data))
	for _, u := range s.data {
		updateCopy := *u
		result = append(result, &updateCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.RateUpdateStore = (*RateUpdateStore)(nil)
