package memory

import (
	"context"
	"sort"
	"sync"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

// BalancePointStore is an in-memory implementation of storage.BalancePointStore.
type BalancePointStore struct {
	mu   sync.RWMutex
	data []*domain.BalancePoint
}

// NewBalancePointStore creates a new in-memory balance point store.
func NewBalancePointStore() *BalancePointStore {
	return &BalancePointStore{}
}

// InsertBulk adds multiple points. Fails entire batch on duplicate
// (address, timestamp).
func (s *BalancePointStore) InsertBulk(_ context.Context, points []*domain.BalancePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		address   string
		timestamp int64
	}
	seen := make(map[key]struct{}, len(s.data)+len(points))
	for _, p := range s.data {
		seen[key{p.Address, p.Timestamp}] = struct{}{}
	}
	for _, p := range points {
		if p == nil || p.Address == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.Address, p.Timestamp}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, p := range points {
		pointCopy := *p
		s.data = append(s.data, &pointCopy)
	}
	return nil
}

// GetByAddress retrieves all points for an address, ordered by timestamp ASC.
func (s *BalancePointStore) GetByAddress(_ context.Context, address string) ([]*domain.BalancePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalancePoint
	for _, p := range s.data {
		if p.Address == address {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sortPoints(result)
	return result, nil
}

// GetByTimeRange retrieves points for an address within [start, end]
// (inclusive), ordered by timestamp ASC.
func (s *BalancePointStore) GetByTimeRange(_ context.Context, address string, start, end int64) ([]*domain.BalancePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalancePoint
	for _, p := range s.data {
		if p.Address == address && p.Timestamp >= start && p.Timestamp <= end {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sortPoints(result)
	return result, nil
}

func sortPoints(points []*domain.BalancePoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})
}

// Verify interface compliance at compile time.
var _ storage.BalancePointStore = (*BalancePointStore)(nil)
