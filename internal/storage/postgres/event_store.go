package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const insertEventQuery = `
	INSERT INTO ledger_events (
		sequence, event_type, account, recipient, amount, rate, event_time
	) VALUES ($1::numeric, $2, $3, $4, $5::numeric, $6::numeric, $7)
`

// Insert adds a new event. Returns ErrDuplicateKey if the sequence exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	if e == nil || e.Sequence == 0 {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertEventQuery,
		uintArg(e.Sequence),
		string(e.Type),
		e.Account,
		e.To,
		uintArg(e.Amount),
		uintArg(e.Rate),
		e.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.Sequence == 0 {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if _, err := tx.Exec(ctx, insertEventQuery,
			uintArg(e.Sequence), string(e.Type), e.Account, e.To,
			uintArg(e.Amount), uintArg(e.Rate), e.Timestamp,
		); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert event %d: %w", e.Sequence, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetBySequenceRange retrieves events with sequence in [from, to] (inclusive),
// ordered by sequence ASC.
func (s *EventStore) GetBySequenceRange(ctx context.Context, from, to uint64) ([]*domain.Event, error) {
	query := `
		SELECT sequence::text, event_type, account, recipient, amount::text, rate::text, event_time
		FROM ledger_events
		WHERE sequence >= $1::numeric AND sequence <= $2::numeric
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, uintArg(from), uintArg(to))
	if err != nil {
		return nil, fmt.Errorf("get events by sequence range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByAccount retrieves all events touching the address, ordered by sequence ASC.
func (s *EventStore) GetByAccount(ctx context.Context, address string) ([]*domain.Event, error) {
	query := `
		SELECT sequence::text, event_type, account, recipient, amount::text, rate::text, event_time
		FROM ledger_events
		WHERE account = $1 OR recipient = $1
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get events by account: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events with timestamp in [start, end] (inclusive),
// ordered by sequence ASC.
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Event, error) {
	query := `
		SELECT sequence::text, event_type, account, recipient, amount::text, rate::text, event_time
		FROM ledger_events
		WHERE event_time >= $1 AND event_time <= $2
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LatestSequence returns the highest stored sequence, or 0 if the journal is empty.
func (s *EventStore) LatestSequence(ctx context.Context) (uint64, error) {
	query := `SELECT COALESCE(MAX(sequence), 0)::text FROM ledger_events`

	var seqStr string
	if err := s.pool.QueryRow(ctx, query).Scan(&seqStr); err != nil {
		return 0, fmt.Errorf("get latest sequence: %w", err)
	}
	return parseUint(seqStr)
}

// scanEvent scans a single row into an Event.
func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	var seqStr, typeStr, amountStr, rateStr string

	err := row.Scan(&seqStr, &typeStr, &e.Account, &e.To, &amountStr, &rateStr, &e.Timestamp)
	if err != nil {
		return nil, err
	}

	e.Type = domain.EventType(typeStr)
	if e.Sequence, err = parseUint(seqStr); err != nil {
		return nil, err
	}
	if e.Amount, err = parseUint(amountStr); err != nil {
		return nil, err
	}
	if e.Rate, err = parseUint(rateStr); err != nil {
		return nil, err
	}
	return &e, nil
}

// scanEvents scans all rows into Events.
func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	var result []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}
