package gateway

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	"rebase-ledger/internal/ledger"
)

const testRate = 50_000_000_000

// testAddress generates a valid base58-encoded ed25519 address.
func testAddress(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	return base58.Encode(pub)
}

// failingVault wraps MemoryVault and fails releases on demand.
type failingVault struct {
	*MemoryVault
	failRelease bool
}

func (v *failingVault) Release(ctx context.Context, holder string, amount uint64) error {
	if v.failRelease {
		return errors.New("wire transfer rejected")
	}
	return v.MemoryVault.Release(ctx, holder, amount)
}

func newTestGateway(clockNow *int64) (*Gateway, *ledger.Ledger, *MemoryVault) {
	l := ledger.New(testRate, ledger.WithClock(func() int64 { return *clockNow }))
	vault := NewMemoryVault()
	return New(l, vault), l, vault
}

func TestDeposit_MintsAtGlobalRate(t *testing.T) {
	now := int64(1_700_000_000)
	g, l, vault := newTestGateway(&now)
	addr := testAddress(t)
	ctx := context.Background()

	if err := g.Deposit(ctx, addr, 100000); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if got := l.PrincipalBalance(addr); got != 100000 {
		t.Errorf("expected principal 100000, got %d", got)
	}
	if got := l.UserRate(addr); got != testRate {
		t.Errorf("expected rate %d, got %d", testRate, got)
	}
	if got := vault.Reserves(); got != 100000 {
		t.Errorf("expected reserves 100000, got %d", got)
	}
}

func TestDeposit_InvalidAddress(t *testing.T) {
	now := int64(1_700_000_000)
	g, _, vault := newTestGateway(&now)

	if err := g.Deposit(context.Background(), "not-an-address", 100); err == nil {
		t.Error("expected error for invalid depositor address")
	}
	if got := vault.Reserves(); got != 0 {
		t.Errorf("failed deposit took custody: %d", got)
	}
}

func TestRedeem_ImmediateRoundTrip(t *testing.T) {
	now := int64(1_700_000_000)
	g, l, vault := newTestGateway(&now)
	addr := testAddress(t)
	ctx := context.Background()

	if err := g.Deposit(ctx, addr, 100000); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	redeemed, err := g.Redeem(ctx, addr, RedeemAll)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if redeemed != 100000 {
		t.Errorf("expected round trip of 100000, got %d", redeemed)
	}
	if got := vault.Released(addr); got != 100000 {
		t.Errorf("expected 100000 released, got %d", got)
	}
	b, err := l.CurrentBalance(addr)
	if err != nil {
		t.Fatalf("CurrentBalance failed: %v", err)
	}
	if b != 0 {
		t.Errorf("expected zero balance after redeem all, got %d", b)
	}
}

func TestRedeem_AllIncludesInterest(t *testing.T) {
	now := int64(1_700_000_000)
	g, _, vault := newTestGateway(&now)
	addr := testAddress(t)
	ctx := context.Background()

	if err := g.Deposit(ctx, addr, 100000); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	// Top up the vault so accrued interest can be paid out.
	if err := vault.Deposit(ctx, "reserve", 1000); err != nil {
		t.Fatalf("vault Deposit failed: %v", err)
	}
	now += 3600

	redeemed, err := g.Redeem(ctx, addr, RedeemAll)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if redeemed != 100018 {
		t.Errorf("expected 100018 redeemed after an hour, got %d", redeemed)
	}
}

func TestRedeem_Insufficient(t *testing.T) {
	now := int64(1_700_000_000)
	g, _, _ := newTestGateway(&now)
	addr := testAddress(t)
	ctx := context.Background()

	if err := g.Deposit(ctx, addr, 100); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	_, err := g.Redeem(ctx, addr, 200)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestRedeem_ReleaseFailureRollsBackBurn(t *testing.T) {
	now := int64(1_700_000_000)
	l := ledger.New(testRate, ledger.WithClock(func() int64 { return now }))
	vault := &failingVault{MemoryVault: NewMemoryVault()}
	g := New(l, vault)
	addr := testAddress(t)
	ctx := context.Background()

	if err := g.Deposit(ctx, addr, 100000); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	vault.failRelease = true
	_, err := g.Redeem(ctx, addr, RedeemAll)
	if !errors.Is(err, ErrRedeemTransferFailed) {
		t.Fatalf("expected ErrRedeemTransferFailed, got %v", err)
	}

	// Burn must not be finalized: holder keeps the full balance.
	if got := l.PrincipalBalance(addr); got != 100000 {
		t.Errorf("expected principal restored to 100000, got %d", got)
	}
	if got := vault.Reserves(); got != 100000 {
		t.Errorf("expected reserves untouched, got %d", got)
	}

	// A later redeem succeeds once the release path recovers.
	vault.failRelease = false
	redeemed, err := g.Redeem(ctx, addr, RedeemAll)
	if err != nil {
		t.Fatalf("retry Redeem failed: %v", err)
	}
	if redeemed != 100000 {
		t.Errorf("expected 100000 redeemed on retry, got %d", redeemed)
	}
}
