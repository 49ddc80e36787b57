// Package journal persists committed ledger events to durable storage.
//
// The ledger calls Record synchronously under its lock, so the writer only
// buffers in memory there and ships batches to the event store from a
// background loop.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/ledger"
	"rebase-ledger/internal/observability"
	"rebase-ledger/internal/storage"
)

// WriterOptions contains configuration for creating a Writer.
type WriterOptions struct {
	Events      storage.EventStore
	RateUpdates storage.RateUpdateStore // optional, derives rate history rows
	// FlushInterval is how often buffered events are shipped. Default: 1s.
	FlushInterval time.Duration
	// MaxBuffer triggers an immediate flush when the buffer reaches this
	// size. Default: 256.
	MaxBuffer int
	Logger    *log.Logger
	// Metrics is optional. When set, the writer reports its pending buffer
	// size and flush failures.
	Metrics *observability.Metrics
}

// Writer buffers ledger events and writes them to the event store in batches.
type Writer struct {
	events        storage.EventStore
	rateUpdates   storage.RateUpdateStore
	flushInterval time.Duration
	maxBuffer     int
	logger        *log.Logger
	metrics       *observability.Metrics

	mu   sync.Mutex
	buf  []*domain.Event
	kick chan struct{}
}

// Compile-time interface check.
var _ ledger.Recorder = (*Writer)(nil)

// NewWriter creates a new journal writer.
func NewWriter(opts WriterOptions) *Writer {
	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 1 * time.Second
	}

	maxBuffer := opts.MaxBuffer
	if maxBuffer == 0 {
		maxBuffer = 256
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Writer{
		events:        opts.Events,
		rateUpdates:   opts.RateUpdates,
		flushInterval: flushInterval,
		maxBuffer:     maxBuffer,
		logger:        logger,
		metrics:       opts.Metrics,
		kick:          make(chan struct{}, 1),
	}
}

// Record buffers a committed event. It is called under the ledger lock and
// never blocks.
func (w *Writer) Record(e domain.Event) {
	w.mu.Lock()
	w.buf = append(w.buf, &e)
	full := len(w.buf) >= w.maxBuffer
	w.reportPending()
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered events not yet shipped.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Run ships buffered events until the context is cancelled, then performs a
// final flush. It blocks until done.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := w.Flush(flushCtx); err != nil {
				return fmt.Errorf("final journal flush: %w", err)
			}
			return nil
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.logger.Printf("[journal] flush failed, will retry: %v", err)
			}
		case <-w.kick:
			if err := w.Flush(ctx); err != nil {
				w.logger.Printf("[journal] flush failed, will retry: %v", err)
			}
		}
	}
}

// Flush writes all buffered events to the store. On failure the events are
// put back at the front of the buffer for the next attempt. A duplicate key
// means the batch was already persisted and is dropped.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	batch := w.buf
	w.buf = nil
	w.reportPending()
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := w.events.InsertBulk(ctx, batch); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			w.logger.Printf("[journal] dropping %d already-persisted events", len(batch))
		} else {
			if w.metrics != nil {
				w.metrics.JournalFlushErrors.Inc()
			}
			w.requeue(batch)
			return fmt.Errorf("insert events: %w", err)
		}
	}

	if w.rateUpdates != nil {
		for _, e := range batch {
			if e.Type != domain.EventRateUpdate {
				continue
			}
			u := &domain.RateUpdate{
				Sequence:     e.Sequence,
				Rate:         e.Amount,
				PreviousRate: e.Rate,
				UpdatedBy:    e.Account,
				Timestamp:    e.Timestamp,
			}
			if err := w.rateUpdates.Insert(ctx, u); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				w.logger.Printf("[journal] rate update %d not persisted: %v", e.Sequence, err)
			}
		}
	}

	return nil
}

// requeue puts a failed batch back in front of anything recorded since.
func (w *Writer) requeue(batch []*domain.Event) {
	w.mu.Lock()
	w.buf = append(batch, w.buf...)
	w.reportPending()
	w.mu.Unlock()
}

// reportPending publishes the buffer size. Callers must hold w.mu.
func (w *Writer) reportPending() {
	if w.metrics != nil {
		w.metrics.JournalPending.Set(float64(len(w.buf)))
	}
}
