package storage

import (
	"context"

	"rebase-ledger/internal/domain"
)

// AccountStore provides access to durable account snapshots.
type AccountStore interface {
	// Upsert inserts or replaces the snapshot row for the account's address.
	Upsert(ctx context.Context, a *domain.Account) error

	// UpsertBulk upserts multiple accounts.
	UpsertBulk(ctx context.Context, accounts []*domain.Account) error

	// GetByAddress retrieves an account snapshot. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Account, error)

	// List retrieves all account snapshots, ordered by address ASC.
	List(ctx context.Context) ([]*domain.Account, error)
}

// EventStore provides access to the append-only ledger journal.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if the sequence exists.
	Insert(ctx context.Context, e *domain.Event) error

	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetBySequenceRange retrieves events with sequence in [from, to] (inclusive),
	// ordered by sequence ASC.
	GetBySequenceRange(ctx context.Context, from, to uint64) ([]*domain.Event, error)

	// GetByAccount retrieves all events touching the address (as account or
	// transfer recipient), ordered by sequence ASC.
	GetByAccount(ctx context.Context, address string) ([]*domain.Event, error)

	// GetByTimeRange retrieves events with timestamp in [start, end] (inclusive),
	// ordered by sequence ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Event, error)

	// LatestSequence returns the highest stored sequence, or 0 if the journal
	// is empty.
	LatestSequence(ctx context.Context) (uint64, error)
}

// RateUpdateStore provides access to global rate update history.
type RateUpdateStore interface {
	// Insert adds a new rate update. Returns ErrDuplicateKey if the sequence exists.
	Insert(ctx context.Context, u *domain.RateUpdate) error

	// Latest returns the most recent update. Returns ErrNotFound if none exist.
	Latest(ctx context.Context) (*domain.RateUpdate, error)

	// History retrieves all updates, ordered by sequence ASC.
	History(ctx context.Context) ([]*domain.RateUpdate, error)
}

// BalancePointStore provides access to the balance analytics timeseries.
type BalancePointStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate
	// (address, timestamp).
	InsertBulk(ctx context.Context, points []*domain.BalancePoint) error

	// GetByAddress retrieves all points for an address, ordered by timestamp ASC.
	GetByAddress(ctx context.Context, address string) ([]*domain.BalancePoint, error)

	// GetByTimeRange retrieves points for an address within [start, end]
	// (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, address string, start, end int64) ([]*domain.BalancePoint, error)
}
