package memory

import (
	"context"
	"sort"
	"sync"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.Event // keyed by sequence
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[uint64]*domain.Event),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if the sequence exists.
func (s *EventStore) Insert(_ context.Context, e *domain.Event) error {
	if e == nil || e.Sequence == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.Sequence]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	s.data[e.Sequence] = &eventCopy
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating
	seen := make(map[uint64]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.Sequence == 0 {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.Sequence]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := seen[e.Sequence]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.Sequence] = struct{}{}
	}

	for _, e := range events {
		eventCopy := *e
		s.data[e.Sequence] = &eventCopy
	}
	return nil
}

// GetBySequenceRange retrieves events with sequence in [from, to] (inclusive),
// ordered by sequence ASC.
func (s *EventStore) GetBySequenceRange(_ context.Context, from, to uint64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.Sequence >= from && e.Sequence <= to {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

// GetByAccount retrieves all events touching the address, ordered by sequence ASC.
func (s *EventStore) GetByAccount(_ context.Context, address string) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.Account == address || e.To == address {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

// GetByTimeRange retrieves events with timestamp in [start, end] (inclusive),
// ordered by sequence ASC.
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.Timestamp >= start && e.Timestamp <= end {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

// LatestSequence returns the highest stored sequence, or 0 if the journal is empty.
func (s *EventStore) LatestSequence(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest uint64
	for seq := range s.data {
		if seq > latest {
			latest = seq
		}
	}
	return latest, nil
}

func sortEvents(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Sequence < events[j].Sequence
	})
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
