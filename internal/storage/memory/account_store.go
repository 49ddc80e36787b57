package memory

import (
	"context"
	"sort"
	"sync"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Account // keyed by address
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[string]*domain.Account),
	}
}

// Upsert inserts or replaces the snapshot row for the account's address.
func (s *AccountStore) Upsert(_ context.Context, a *domain.Account) error {
	if a == nil || a.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	accountCopy := *a
	s.data[a.Address] = &accountCopy
	return nil
}

// UpsertBulk upserts multiple accounts.
func (s *AccountStore) UpsertBulk(ctx context.Context, accounts []*domain.Account) error {
	for _, a := range accounts {
		if a == nil || a.Address == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range accounts {
		accountCopy := *a
		s.data[a.Address] = &accountCopy
	}
	return nil
}

// GetByAddress retrieves an account snapshot. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByAddress(_ context.Context, address string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	accountCopy := *a
	return &accountCopy, nil
}

// List retrieves all account snapshots, ordered by address ASC.
func (s *AccountStore) List(_ context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Account, 0, len(s.data))
	for _, a := range s.data {
		accountCopy := *a
		result = append(result, &accountCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.AccountStore = (*AccountStore)(nil)
