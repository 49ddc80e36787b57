package clickhouse

import (
	"context"
	"fmt"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

// BalancePointStore implements storage.BalancePointStore using ClickHouse.
type BalancePointStore struct {
	conn *Conn
}

// NewBalancePointStore creates a new BalancePointStore.
func NewBalancePointStore(conn *Conn) *BalancePointStore {
	return &BalancePointStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BalancePointStore = (*BalancePointStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (address, snapshot_at).
func (s *BalancePointStore) InsertBulk(ctx context.Context, points []*domain.BalancePoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		address   string
		timestamp int64
	}
	seen := make(map[key]struct{})
	for _, p := range points {
		k := key{p.Address, p.Timestamp}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.Address, p.Timestamp)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO balance_points (
			address, snapshot_at, principal, balance, rate
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Address, p.Timestamp, p.Principal, p.Balance, p.Rate,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAddress retrieves all points for an address, ordered by snapshot time ASC.
func (s *BalancePointStore) GetByAddress(ctx context.Context, address string) ([]*domain.BalancePoint, error) {
	query := `
		SELECT address, snapshot_at, principal, balance, rate
		FROM balance_points
		WHERE address = ?
		ORDER BY snapshot_at ASC
	`

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query by address: %w", err)
	}
	defer rows.Close()

	return scanBalancePoints(rows)
}

// GetByTimeRange retrieves points for an address within [start, end] (inclusive).
func (s *BalancePointStore) GetByTimeRange(ctx context.Context, address string, start, end int64) ([]*domain.BalancePoint, error) {
	query := `
		SELECT address, snapshot_at, principal, balance, rate
		FROM balance_points
		WHERE address = ? AND snapshot_at >= ? AND snapshot_at <= ?
		ORDER BY snapshot_at ASC
	`

	rows, err := s.conn.Query(ctx, query, address, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanBalancePoints(rows)
}

// exists checks if a point with the given key exists.
func (s *BalancePointStore) exists(ctx context.Context, address string, timestamp int64) (bool, error) {
	query := `
		SELECT count(*) FROM balance_points
		WHERE address = ? AND snapshot_at = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, address, timestamp).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows abstracts driver.Rows for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanBalancePoints scans multiple rows.
func scanBalancePoints(rows chRows) ([]*domain.BalancePoint, error) {
	var points []*domain.BalancePoint

	for rows.Next() {
		var p domain.BalancePoint

		err := rows.Scan(
			&p.Address, &p.Timestamp, &p.Principal, &p.Balance, &p.Rate,
		)
		if err != nil {
			return nil, fmt.Errorf("scan balance point row: %w", err)
		}

		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance point rows: %w", err)
	}

	return points, nil
}
