// Package snapshot periodically persists ledger state for fast restarts and
// analytical queries.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rebase-ledger/internal/accrual"
	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/ledger"
	"rebase-ledger/internal/observability"
	"rebase-ledger/internal/storage"
)

// Options contains configuration for creating a Snapshotter.
type Options struct {
	Ledger   *ledger.Ledger
	Accounts storage.AccountStore
	// Points is optional. When set, every snapshot also writes one balance
	// point per account to the analytical store.
	Points storage.BalancePointStore
	// Interval between snapshots. Default: 1m.
	Interval time.Duration
	// Now returns the current Unix time in seconds. Default: time.Now.
	Now    func() int64
	Logger *log.Logger
	// Metrics is optional. When set, the snapshotter reports completed and
	// failed snapshots.
	Metrics *observability.Metrics
}

// Snapshotter writes periodic ledger snapshots.
type Snapshotter struct {
	ledger   *ledger.Ledger
	accounts storage.AccountStore
	points   storage.BalancePointStore
	interval time.Duration
	now      func() int64
	logger   *log.Logger
	metrics  *observability.Metrics
}

// New creates a new Snapshotter.
func New(opts Options) *Snapshotter {
	interval := opts.Interval
	if interval == 0 {
		interval = time.Minute
	}

	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Snapshotter{
		ledger:   opts.Ledger,
		accounts: opts.Accounts,
		points:   opts.Points,
		interval: interval,
		now:      now,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Run takes snapshots until the context is cancelled, then takes a final one.
// It blocks until done.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Snapshot(finalCtx); err != nil {
				return fmt.Errorf("final snapshot: %w", err)
			}
			return nil
		case <-ticker.C:
			if err := s.Snapshot(ctx); err != nil {
				s.logger.Printf("[snapshot] failed, will retry: %v", err)
			}
		}
	}
}

// Snapshot persists the current set of accounts. Accounts carry their
// principal as of their last settlement; the balance points additionally
// capture the accrued balance at snapshot time.
func (s *Snapshotter) Snapshot(ctx context.Context) error {
	if err := s.snapshot(ctx); err != nil {
		if s.metrics != nil {
			s.metrics.SnapshotErrors.Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.SnapshotsTotal.Inc()
		s.metrics.LastSnapshotTime.Set(float64(s.now()))
	}
	return nil
}

func (s *Snapshotter) snapshot(ctx context.Context) error {
	accounts := s.ledger.Accounts()
	if len(accounts) == 0 {
		return nil
	}

	if err := s.accounts.UpsertBulk(ctx, accounts); err != nil {
		return fmt.Errorf("upsert accounts: %w", err)
	}

	if s.points == nil {
		return nil
	}

	now := s.now()
	points := make([]*domain.BalancePoint, 0, len(accounts))
	for _, a := range accounts {
		balance, err := accrual.Balance(a.Principal, a.Rate, a.UpdatedAt, now)
		if err != nil {
			s.logger.Printf("[snapshot] skipping point for %s: %v", a.Address, err)
			continue
		}
		points = append(points, &domain.BalancePoint{
			Address:   a.Address,
			Timestamp: now,
			Principal: a.Principal,
			Balance:   balance,
			Rate:      a.Rate,
		})
	}

	if err := s.points.InsertBulk(ctx, points); err != nil {
		// Two snapshots in the same second collide on (address, timestamp).
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("insert balance points: %w", err)
	}

	return nil
}
