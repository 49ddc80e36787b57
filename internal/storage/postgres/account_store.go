package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Upsert inserts or replaces the snapshot row for the account's address.
func (s *AccountStore) Upsert(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO accounts (address, principal, rate, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4)
		ON CONFLICT (address) DO UPDATE
		SET principal = EXCLUDED.principal,
		    rate = EXCLUDED.rate,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		a.Address,
		uintArg(a.Principal),
		uintArg(a.Rate),
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// UpsertBulk upserts multiple accounts in a single transaction.
func (s *AccountStore) UpsertBulk(ctx context.Context, accounts []*domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	for _, a := range accounts {
		if a == nil || a.Address == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO accounts (address, principal, rate, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4)
		ON CONFLICT (address) DO UPDATE
		SET principal = EXCLUDED.principal,
		    rate = EXCLUDED.rate,
		    updated_at = EXCLUDED.updated_at
	`
	for _, a := range accounts {
		if _, err := tx.Exec(ctx, query,
			a.Address, uintArg(a.Principal), uintArg(a.Rate), a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert account %s: %w", a.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByAddress retrieves an account snapshot. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByAddress(ctx context.Context, address string) (*domain.Account, error) {
	query := `
		SELECT address, principal::text, rate::text, updated_at
		FROM accounts
		WHERE address = $1
	`

	row := s.pool.QueryRow(ctx, query, address)
	a, err := scanAccount(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account by address: %w", err)
	}
	return a, nil
}

// List retrieves all account snapshots, ordered by address ASC.
func (s *AccountStore) List(ctx context.Context) ([]*domain.Account, error) {
	query := `
		SELECT address, principal::text, rate::text, updated_at
		FROM accounts
		ORDER BY address ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

// scanAccount scans a single row into an Account.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var principalStr, rateStr string

	err := row.Scan(&a.Address, &principalStr, &rateStr, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if a.Principal, err = parseUint(principalStr); err != nil {
		return nil, err
	}
	if a.Rate, err = parseUint(rateStr); err != nil {
		return nil, err
	}
	return &a, nil
}
