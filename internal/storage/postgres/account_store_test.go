package postgres

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/storage"
)

func TestAccountStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	acct := &domain.Account{
		Address:   "addr-1",
		Principal: 100_000,
		Rate:      50_000_000_000,
		UpdatedAt: 1_700_000_000,
	}

	err := store.Upsert(ctx, acct)
	require.NoError(t, err)

	got, err := store.GetByAddress(ctx, "addr-1")
	require.NoError(t, err)
	assert.Equal(t, "addr-1", got.Address)
	assert.Equal(t, uint64(100_000), got.Principal)
	assert.Equal(t, uint64(50_000_000_000), got.Rate)
	assert.Equal(t, int64(1_700_000_000), got.UpdatedAt)
}

func TestAccountStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	err := store.Upsert(ctx, &domain.Account{Address: "addr-1", Principal: 100, Rate: 10, UpdatedAt: 1})
	require.NoError(t, err)

	err = store.Upsert(ctx, &domain.Account{Address: "addr-1", Principal: 250, Rate: 5, UpdatedAt: 2})
	require.NoError(t, err)

	got, err := store.GetByAddress(ctx, "addr-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(250), got.Principal)
	assert.Equal(t, uint64(5), got.Rate)
	assert.Equal(t, int64(2), got.UpdatedAt)

	// Still a single row
	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAccountStore_GetByAddress_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	_, err := store.GetByAddress(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountStore_MaxUint64RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	// Values above int64 range must survive the NUMERIC(20,0) columns.
	acct := &domain.Account{
		Address:   "addr-max",
		Principal: math.MaxUint64,
		Rate:      math.MaxUint64,
		UpdatedAt: 1,
	}

	err := store.Upsert(ctx, acct)
	require.NoError(t, err)

	got, err := store.GetByAddress(ctx, "addr-max")
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Principal)
	assert.Equal(t, uint64(math.MaxUint64), got.Rate)
}

func TestAccountStore_UpsertBulkAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	accounts := []*domain.Account{
		{Address: "addr-b", Principal: 200, Rate: 10, UpdatedAt: 1},
		{Address: "addr-a", Principal: 100, Rate: 10, UpdatedAt: 1},
		{Address: "addr-c", Principal: 300, Rate: 10, UpdatedAt: 1},
	}

	err := store.UpsertBulk(ctx, accounts)
	require.NoError(t, err)

	got, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ordered by address
	assert.Equal(t, "addr-a", got[0].Address)
	assert.Equal(t, "addr-b", got[1].Address)
	assert.Equal(t, "addr-c", got[2].Address)
}

func TestAccountStore_UpsertBulk_Empty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	err := store.UpsertBulk(ctx, nil)
	assert.NoError(t, err)
}
