package gateway

import (
	"context"
	"errors"
	"sync"
)

// AssetVault holds the external base asset exchanged 1:1 for balance units.
// Custody itself is outside the core; implementations only need to take and
// release value atomically per call.
type AssetVault interface {
	// Deposit takes custody of amount on behalf of holder.
	Deposit(ctx context.Context, holder string, amount uint64) error

	// Release pays out amount of the external asset to holder.
	Release(ctx context.Context, holder string, amount uint64) error

	// Reserves returns the total asset currently held.
	Reserves() uint64
}

// ErrInsufficientReserves is returned when a release exceeds the vault's
// holdings.
var ErrInsufficientReserves = errors.New("insufficient vault reserves")

// MemoryVault is an in-memory implementation of AssetVault.
type MemoryVault struct {
	mu       sync.Mutex
	reserves uint64
	released map[string]uint64
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		released: make(map[string]uint64),
	}
}

// Deposit takes custody of amount on behalf of holder.
func (v *MemoryVault) Deposit(_ context.Context, _ string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reserves += amount
	return nil
}

// Release pays out amount to holder. Fails with ErrInsufficientReserves if
// the vault does not hold enough of the asset.
func (v *MemoryVault) Release(_ context.Context, holder string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if amount > v.reserves {
		return ErrInsufficientReserves
	}
	v.reserves -= amount
	v.released[holder] += amount
	return nil
}

// Reserves returns the total asset currently held.
func (v *MemoryVault) Reserves() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reserves
}

// Released returns the total amount paid out to holder.
func (v *MemoryVault) Released(holder string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.released[holder]
}

// Compile-time interface check.
var _ AssetVault = (*MemoryVault)(nil)
