package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

// RateUpdateStore implements storage.RateUpdateStore using PostgreSQL.
type RateUpdateStore struct {
	pool *Pool
}

// NewRateUpdateStore creates a new RateUpdateStore.
func NewRateUpdateStore(pool *Pool) *RateUpdateStore {
	return &RateUpdateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RateUpdateStore = (*RateUpdateStore)(nil)

// Insert adds a new rate update. Returns ErrDuplicateKey if the sequence exists.
func (s *RateUpdateStore) Insert(ctx context.Context, u *domain.RateUpdate) error {
	if u == nil || u.Sequence == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO rate_updates (sequence, rate, previous_rate, updated_by, event_time)
		VALUES ($1::numeric, $2::numeric, $3::numeric, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		uintArg(u.Sequence),
		uintArg(u.Rate),
		uintArg(u.PreviousRate),
		u.UpdatedBy,
		u.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert rate update: %w", err)
	}
	return nil
}

// Latest returns the most recent update. Returns ErrNotFound if none exist.
func (s *RateUpdateStore) Latest(ctx context.Context) (*domain.RateUpdate, error) {
	query := `
		SELECT sequence::text, rate::text, previous_rate::text, updated_by, event_time
		FROM rate_updates
		ORDER BY sequence DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query)
	u, err := scanRateUpdate(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest rate update: %w", err)
	}
	return u, nil
}

// History retrieves all updates, ordered by sequence ASC.
func (s *RateUpdateStore) History(ctx context.Context) ([]*domain.RateUpdate, error) {
	query := `
		SELECT sequence::text, rate::text, previous_rate::text, updated_by, event_time
		FROM rate_updates
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get rate update history: %w", err)
	}
	defer rows.Close()

	var result []*domain.RateUpdate
	for rows.Next() {
		u, err := scanRateUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate update: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rate updates: %w", err)
	}
	return result, nil
}

// scanRateUpdate scans a single row into a RateUpdate.
func scanRateUpdate(row pgx.Row) (*domain.RateUpdate, error) {
	var u domain.RateUpdate
	var seqStr, rateStr, prevStr string

	err := row.Scan(&seqStr, &rateStr, &prevStr, &u.UpdatedBy, &u.Timestamp)
	if err != nil {
		return nil, err
	}

	if u.Sequence, err = parseUint(seqStr); err != nil {
		return nil, err
	}
	if u.Rate, err = parseUint(rateStr); err != nil {
		return nil, err
	}
	if u.PreviousRate, err = parseUint(prevStr); err != nil {
		return nil, err
	}
	return &u, nil
}
