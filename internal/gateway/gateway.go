// Package gateway implements the exchange gateway: it takes custody of an
// external base asset and mints balance units 1:1, and burns balance units to
// release the asset on redemption. The gateway is a collaborator of the
// ledger core; it performs no accrual arithmetic of its own.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/ledger"
)

// ErrRedeemTransferFailed is returned when the external asset release fails
// after the burn amount was resolved. The whole redeem operation is rolled
// back; the burn does not take effect.
var ErrRedeemTransferFailed = errors.New("redeem transfer failed")

// RedeemAll is the sentinel amount meaning "redeem the entire balance".
const RedeemAll = ledger.AllBalance

// Gateway exchanges the external base asset for ledger balance units.
type Gateway struct {
	ledger *ledger.Ledger
	vault  AssetVault
}

// New creates a gateway over the given ledger and asset vault.
func New(l *ledger.Ledger, vault AssetVault) *Gateway {
	return &Gateway{ledger: l, vault: vault}
}

// Deposit takes custody of value and mints the same amount to depositor at
// the current global rate. If the mint fails after custody was taken, the
// custody is returned.
func (g *Gateway) Deposit(ctx context.Context, depositor string, value uint64) error {
	if err := domain.ValidateAddress(depositor); err != nil {
		return fmt.Errorf("depositor: %w", err)
	}

	if err := g.vault.Deposit(ctx, depositor, value); err != nil {
		return fmt.Errorf("take custody: %w", err)
	}

	if err := g.ledger.Mint(depositor, value); err != nil {
		if releaseErr := g.vault.Release(ctx, depositor, value); releaseErr != nil {
			return fmt.Errorf("mint failed (%w), refund also failed: %v", err, releaseErr)
		}
		return fmt.Errorf("mint: %w", err)
	}

	g.ledger.Annotate(domain.EventDeposit, depositor, value)
	return nil
}

// Redeem burns requested balance units from holder and releases the same
// amount of the external asset. RedeemAll resolves to the holder's entire
// settled balance. Burn and release are a single atomic step: if the release
// fails, the burn is rolled back and ErrRedeemTransferFailed is reported.
// Returns the amount redeemed.
func (g *Gateway) Redeem(ctx context.Context, holder string, requested uint64) (uint64, error) {
	if err := domain.ValidateAddress(holder); err != nil {
		return 0, fmt.Errorf("holder: %w", err)
	}

	burned, err := g.ledger.BurnWithin(holder, requested, func(burned uint64) error {
		if err := g.vault.Release(ctx, holder, burned); err != nil {
			return fmt.Errorf("%w: %v", ErrRedeemTransferFailed, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	g.ledger.Annotate(domain.EventRedeem, holder, burned)
	return burned, nil
}
