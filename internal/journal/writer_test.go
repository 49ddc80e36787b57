package journal

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/observability"
	"rebase-ledger/internal/storage"
	"rebase-ledger/internal/storage/memory"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestWriter_FlushWritesBufferedEvents(t *testing.T) {
	events := memory.NewEventStore()
	w := NewWriter(WriterOptions{Events: events, Logger: quietLogger()})

	w.Record(domain.Event{Sequence: 1, Type: domain.EventMint, Account: "alice", Amount: 100, Timestamp: 1000})
	w.Record(domain.Event{Sequence: 2, Type: domain.EventBurn, Account: "alice", Amount: 40, Timestamp: 2000})

	if got := w.Pending(); got != 2 {
		t.Fatalf("expected 2 pending events, got %d", got)
	}

	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := w.Pending(); got != 0 {
		t.Errorf("expected empty buffer after flush, got %d", got)
	}

	stored, err := events.GetBySequenceRange(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("GetBySequenceRange failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(stored))
	}
	if stored[0].Sequence != 1 || stored[1].Sequence != 2 {
		t.Errorf("unexpected sequences: %d, %d", stored[0].Sequence, stored[1].Sequence)
	}
}

func TestWriter_FlushEmptyBuffer(t *testing.T) {
	w := NewWriter(WriterOptions{Events: memory.NewEventStore(), Logger: quietLogger()})
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush on empty buffer failed: %v", err)
	}
}

func TestWriter_DerivesRateUpdates(t *testing.T) {
	events := memory.NewEventStore()
	rates := memory.NewRateUpdateStore()
	w := NewWriter(WriterOptions{Events: events, RateUpdates: rates, Logger: quietLogger()})

	w.Record(domain.Event{Sequence: 1, Type: domain.EventMint, Account: "alice", Amount: 100, Timestamp: 1000})
	w.Record(domain.Event{
		Sequence:  2,
		Type:      domain.EventRateUpdate,
		Account:   "authority",
		Amount:    40_000_000_000,
		Rate:      50_000_000_000,
		Timestamp: 2000,
	})

	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	latest, err := rates.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Sequence != 2 {
		t.Errorf("expected sequence 2, got %d", latest.Sequence)
	}
	if latest.Rate != 40_000_000_000 || latest.PreviousRate != 50_000_000_000 {
		t.Errorf("unexpected rates: %d / %d", latest.Rate, latest.PreviousRate)
	}
	if latest.UpdatedBy != "authority" {
		t.Errorf("expected updater 'authority', got %q", latest.UpdatedBy)
	}
}

// failingEventStore rejects all writes.
type failingEventStore struct {
	*memory.EventStore
}

func (s *failingEventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	return errors.New("store unavailable")
}

func TestWriter_RequeuesOnFailure(t *testing.T) {
	w := NewWriter(WriterOptions{
		Events: &failingEventStore{EventStore: memory.NewEventStore()},
		Logger: quietLogger(),
	})

	w.Record(domain.Event{Sequence: 1, Type: domain.EventMint, Account: "alice", Amount: 100, Timestamp: 1000})

	if err := w.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if got := w.Pending(); got != 1 {
		t.Errorf("expected 1 requeued event, got %d", got)
	}
}

func TestWriter_DropsDuplicateBatch(t *testing.T) {
	events := memory.NewEventStore()
	w := NewWriter(WriterOptions{Events: events, Logger: quietLogger()})

	ev := &domain.Event{Sequence: 1, Type: domain.EventMint, Account: "alice", Amount: 100, Timestamp: 1000}
	if err := events.Insert(context.Background(), ev); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	w.Record(*ev)
	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("Flush should drop duplicates, got: %v", err)
	}
	if got := w.Pending(); got != 0 {
		t.Errorf("expected duplicate batch dropped, %d pending", got)
	}
}

var _ storage.EventStore = (*failingEventStore)(nil)

func TestWriter_ReportsMetrics(t *testing.T) {
	m := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
	failing := &failingEventStore{EventStore: memory.NewEventStore()}
	w := NewWriter(WriterOptions{Events: failing, Logger: quietLogger(), Metrics: m})

	w.Record(domain.Event{Sequence: 1, Type: domain.EventMint, Account: "alice", Amount: 100, Timestamp: 1000})
	w.Record(domain.Event{Sequence: 2, Type: domain.EventBurn, Account: "alice", Amount: 40, Timestamp: 2000})

	if got := testutil.ToFloat64(m.JournalPending); got != 2 {
		t.Errorf("expected 2 pending, gauge reads %v", got)
	}

	if err := w.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if got := testutil.ToFloat64(m.JournalFlushErrors); got != 1 {
		t.Errorf("expected 1 flush error, counter reads %v", got)
	}
	if got := testutil.ToFloat64(m.JournalPending); got != 2 {
		t.Errorf("expected requeued events on the gauge, got %v", got)
	}

	ok := NewWriter(WriterOptions{Events: memory.NewEventStore(), Logger: quietLogger(), Metrics: m})
	ok.Record(domain.Event{Sequence: 1, Type: domain.EventMint, Account: "alice", Amount: 100, Timestamp: 1000})
	if err := ok.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := testutil.ToFloat64(m.JournalPending); got != 0 {
		t.Errorf("expected empty gauge after flush, got %v", got)
	}
}
