// Package ledger implements the rebasing balance ledger: a sequential state
// machine owning per-account principal, locked-in interest rates and the
// single global rate. Balances grow continuously via the accrual engine;
// principal changes only on explicit mint, burn and transfer operations, each
// of which first settles accrued interest into principal.
package ledger

import (
	"math"
	"sort"
	"sync"
	"time"

	"rebase-ledger/internal/accrual"
	"rebase-ledger/internal/domain"
)

// AllBalance is the sentinel amount meaning "the entire settled balance".
// Burn, Transfer and the gateway's Redeem resolve it at call time.
const AllBalance uint64 = math.MaxUint64

// Ledger is a single logical sequential state machine. All operations are
// serialized by one mutex; each runs to completion (including nested
// settlements) with the operation timestamp read once at entry.
type Ledger struct {
	mu         sync.Mutex
	accounts   map[string]*domain.Account
	globalRate uint64
	sequence   uint64

	now      func() int64
	recorder Recorder
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the operation clock. The clock must return Unix
// seconds and must be monotonic between operations.
func WithClock(now func() int64) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithRecorder sets the recorder that receives committed events.
func WithRecorder(r Recorder) Option {
	return func(l *Ledger) {
		l.recorder = r
	}
}

// New creates a ledger with the given initial global rate.
func New(initialRate uint64, opts ...Option) *Ledger {
	l := &Ledger{
		accounts:   make(map[string]*domain.Account),
		globalRate: initialRate,
		now:        func() int64 { return time.Now().Unix() },
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// account returns the entry for addr, creating a zero-value EMPTY account
// if none exists. Callers must hold l.mu.
func (l *Ledger) account(addr string) *domain.Account {
	a, ok := l.accounts[addr]
	if !ok {
		a = &domain.Account{Address: addr}
		l.accounts[addr] = a
	}
	return a
}

// settle realizes accrued interest into principal and stamps the settlement
// time. Idempotent when called twice at the same timestamp. Callers must
// hold l.mu.
func (l *Ledger) settle(a *domain.Account, now int64) error {
	balance, err := accrual.Balance(a.Principal, a.Rate, a.UpdatedAt, now)
	if err != nil {
		return err
	}
	a.Principal = balance
	a.UpdatedAt = now
	return nil
}

// record assigns the next sequence and hands the event to the recorder.
// Callers must hold l.mu.
func (l *Ledger) record(e *domain.Event) {
	l.sequence++
	e.Sequence = l.sequence
	l.recorder.Record(*e)
}

// Mint settles the account, locks in the current global rate if the account
// was empty, and increases principal by amount.
func (l *Ledger) Mint(addr string, amount uint64) error {
	if addr == "" {
		return ErrInvalidAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a := l.account(addr)
	if err := l.settle(a, now); err != nil {
		return err
	}

	if a.Empty() {
		a.Rate = l.globalRate
	}
	if amount > math.MaxUint64-a.Principal {
		return accrual.ErrOverflow
	}
	a.Principal += amount

	l.record(&domain.Event{
		Type:      domain.EventMint,
		Account:   addr,
		Amount:    amount,
		Rate:      a.Rate,
		Timestamp: now,
	})
	return nil
}

// Burn settles the account and decreases principal by amount. The AllBalance
// sentinel resolves to the full settled balance. Returns the amount actually
// burned.
func (l *Ledger) Burn(addr string, amount uint64) (uint64, error) {
	return l.BurnWithin(addr, amount, nil)
}

// BurnWithin performs a burn and, while still inside the operation boundary,
// runs commit with the resolved amount. If commit returns an error the burn
// is rolled back: principal is restored and no event is recorded. Settlement
// side effects are retained; they are idempotent and harmless.
//
// The gateway uses this to make burn-then-release-asset atomic.
func (l *Ledger) BurnWithin(addr string, amount uint64, commit func(burned uint64) error) (uint64, error) {
	if addr == "" {
		return 0, ErrInvalidAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a := l.account(addr)
	if err := l.settle(a, now); err != nil {
		return 0, err
	}

	if amount == AllBalance {
		amount = a.Principal
	}
	if amount > a.Principal {
		return 0, ErrInsufficientBalance
	}

	a.Principal -= amount

	if commit != nil {
		if err := commit(amount); err != nil {
			a.Principal += amount
			return 0, err
		}
	}

	l.record(&domain.Event{
		Type:      domain.EventBurn,
		Account:   addr,
		Amount:    amount,
		Rate:      a.Rate,
		Timestamp: now,
	})
	return amount, nil
}

// Transfer settles both accounts and moves amount of principal from one to
// the other. An empty recipient inherits the sender's locked-in rate, not
// the current global rate. The AllBalance sentinel resolves to the sender's
// full settled balance. Returns the amount actually moved.
func (l *Ledger) Transfer(from, to string, amount uint64) (uint64, error) {
	if from == "" || to == "" {
		return 0, ErrInvalidAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	src := l.account(from)
	if err := l.settle(src, now); err != nil {
		return 0, err
	}

	if from == to {
		// Settled no-op; insufficiency is still reported.
		if amount == AllBalance {
			amount = src.Principal
		}
		if amount > src.Principal {
			return 0, ErrInsufficientBalance
		}
		l.record(&domain.Event{
			Type:      domain.EventTransfer,
			Account:   from,
			To:        to,
			Amount:    amount,
			Rate:      src.Rate,
			Timestamp: now,
		})
		return amount, nil
	}

	dst := l.account(to)
	if err := l.settle(dst, now); err != nil {
		return 0, err
	}

	if amount == AllBalance {
		amount = src.Principal
	}
	if amount > src.Principal {
		return 0, ErrInsufficientBalance
	}
	if amount > math.MaxUint64-dst.Principal {
		return 0, accrual.ErrOverflow
	}

	// Rate inheritance happens only once the transfer is certain to commit,
	// so a rejected transfer leaves the recipient untouched.
	if dst.Empty() {
		dst.Rate = src.Rate
	}
	src.Principal -= amount
	dst.Principal += amount

	l.record(&domain.Event{
		Type:      domain.EventTransfer,
		Account:   from,
		To:        to,
		Amount:    amount,
		Rate:      dst.Rate,
		Timestamp: now,
	})
	return amount, nil
}

// SetGlobalRate updates the global rate. The rate is monotonically
// non-increasing: an attempted increase fails with ErrRateIncrease. Locked-in
// account rates are never affected. updatedBy identifies the authority that
// made the change and is carried on the recorded event.
func (l *Ledger) SetGlobalRate(rate uint64, updatedBy string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rate > l.globalRate {
		return ErrRateIncrease
	}

	previous := l.globalRate
	l.globalRate = rate

	l.record(&domain.Event{
		Type:      domain.EventRateUpdate,
		Account:   updatedBy,
		Amount:    rate,
		Rate:      previous,
		Timestamp: l.now(),
	})
	return nil
}

// Annotate records an informational event (deposit/redeem notifications from
// the gateway) in the journal without touching account state.
func (l *Ledger) Annotate(t domain.EventType, addr string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(&domain.Event{
		Type:      t,
		Account:   addr,
		Amount:    amount,
		Rate:      l.account(addr).Rate,
		Timestamp: l.now(),
	})
}

// CurrentBalance returns the account balance including pending accrued
// interest. Read-only: it never settles. Unknown accounts read as zero.
func (l *Ledger) CurrentBalance(addr string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[addr]
	if !ok {
		return 0, nil
	}
	return accrual.Balance(a.Principal, a.Rate, a.UpdatedAt, l.now())
}

// AccountInfo returns a copy of the account and whether it exists.
func (l *Ledger) AccountInfo(addr string) (domain.Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[addr]
	if !ok {
		return domain.Account{Address: addr}, false
	}
	return *a, true
}

// PrincipalBalance returns the raw stored principal, excluding pending
// interest. Unknown accounts read as zero.
func (l *Ledger) PrincipalBalance(addr string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return a.Principal
}

// UserRate returns the account's locked-in interest rate.
func (l *Ledger) UserRate(addr string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return a.Rate
}

// GlobalRate returns the current global interest rate.
func (l *Ledger) GlobalRate() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.globalRate
}

// Sequence returns the sequence of the most recently committed event.
func (l *Ledger) Sequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sequence
}

// Accounts returns a copy of every account, sorted by address.
func (l *Ledger) Accounts() []*domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]*domain.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		accountCopy := *a
		result = append(result, &accountCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result
}

// Restore replaces the ledger state with a persisted snapshot. Used at
// startup before any operation is accepted.
func (l *Ledger) Restore(accounts []*domain.Account, globalRate, lastSequence uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = make(map[string]*domain.Account, len(accounts))
	for _, a := range accounts {
		accountCopy := *a
		l.accounts[a.Address] = &accountCopy
	}
	l.globalRate = globalRate
	l.sequence = lastSequence
}
