// Package main runs the rebase ledger service:
// - Ledger core with deposit/redeem gateway and HTTP API
// - Journal (continuous): event persistence to PostgreSQL
// - Snapshots (scheduled): account state + balance points
// - WebSocket event feed and Prometheus metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/feed"
	"rebase-ledger/internal/gateway"
	"rebase-ledger/internal/journal"
	"rebase-ledger/internal/ledger"
	"rebase-ledger/internal/observability"
	"rebase-ledger/internal/roles"
	"rebase-ledger/internal/snapshot"
	"rebase-ledger/internal/storage"
	chstore "rebase-ledger/internal/storage/clickhouse"
	"rebase-ledger/internal/storage/memory"
	"rebase-ledger/internal/storage/migrations"
	pgstore "rebase-ledger/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	accounts storage.AccountStore
	events   storage.EventStore
	rates    storage.RateUpdateStore
	points   storage.BalancePointStore // nil when no analytical store is configured
}

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "API HTTP address")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9090"), "Prometheus metrics HTTP address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	owner := flag.String("owner", os.Getenv("OWNER_ADDRESS"), "Owner address (base58)")
	initialRate := flag.Uint64("initial-rate", 50_000_000_000, "Initial global rate, scaled units per second")
	tokenName := flag.String("token-name", envOr("TOKEN_NAME", "Rebase Token"), "Token name")
	tokenSymbol := flag.String("token-symbol", envOr("TOKEN_SYMBOL", "RBT"), "Token symbol")
	tokenDecimals := flag.Uint("token-decimals", 9, "Token decimals")
	snapshotInterval := flag.Duration("snapshot-interval", time.Minute, "Snapshot interval")
	flushInterval := flag.Duration("flush-interval", time.Second, "Journal flush interval")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *owner == "" {
		logger.Fatal("--owner is required")
	}
	if err := domain.ValidateAddress(*owner); err != nil {
		logger.Fatalf("Invalid owner address: %v", err)
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	// Recorders run under the ledger lock in order: journal first, then the
	// live feed and metrics.
	writer := journal.NewWriter(journal.WriterOptions{
		Events:        stores.events,
		RateUpdates:   stores.rates,
		FlushInterval: *flushInterval,
		Logger:        log.New(os.Stdout, "[journal] ", log.LstdFlags),
		Metrics:       metrics,
	})
	hub := feed.NewHub(log.New(os.Stdout, "[feed] ", log.LstdFlags))
	defer hub.Close()

	l := ledger.New(*initialRate, ledger.WithRecorder(ledger.MultiRecorder{
		writer, hub, &metricsRecorder{metrics: metrics},
	}))

	if err := restoreLedger(ctx, l, stores, *initialRate, logger); err != nil {
		logger.Fatalf("Failed to restore ledger: %v", err)
	}

	vault := gateway.NewMemoryVault()
	gw := gateway.New(l, vault)
	registry := roles.NewRegistry(*owner)

	srv := &Server{
		ledger:   l,
		gateway:  gw,
		vault:    vault,
		registry: registry,
		events:   stores.events,
		rates:    stores.rates,
		hub:      hub,
		metrics:  metrics,
		logger:   logger,
		token: tokenInfo{
			Name:     *tokenName,
			Symbol:   *tokenSymbol,
			Decimals: uint8(*tokenDecimals),
		},
		started: time.Now(),
	}

	snapshotter := snapshot.New(snapshot.Options{
		Ledger:   l,
		Accounts: stores.accounts,
		Points:   stores.points,
		Interval: *snapshotInterval,
		Logger:   log.New(os.Stdout, "[snapshot] ", log.LstdFlags),
		Metrics:  metrics,
	})

	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go startMetricsServer(*metricsAddr, logger)

	err = run(ctx, srv, writer, snapshotter, *listenAddr, logger)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run starts all components and blocks until the context is cancelled or a
// component fails.
func run(ctx context.Context, srv *Server, writer *journal.Writer, snapshotter *snapshot.Snapshotter, listenAddr string, logger *log.Logger) error {
	errCh := make(chan error, 3)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := writer.Run(ctx); err != nil {
			errCh <- fmt.Errorf("journal: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := snapshotter.Run(ctx); err != nil {
			errCh <- fmt.Errorf("snapshot: %w", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("API listening on %s", listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
		// Wait for the journal's final flush and the final snapshot.
		wg.Wait()
		select {
		case err := <-errCh:
			logger.Printf("Shutdown pass: %v", err)
		default:
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			accounts: memory.NewAccountStore(),
			events:   memory.NewEventStore(),
			rates:    memory.NewRateUpdateStore(),
			points:   memory.NewBalancePointStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &allStores{
		accounts: pgstore.NewAccountStore(pool),
		events:   pgstore.NewEventStore(pool),
		rates:    pgstore.NewRateUpdateStore(pool),
	}

	var chConn *chstore.Conn
	if clickhouseDSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.points = chstore.NewBalancePointStore(chConn)
	} else {
		logger.Println("No ClickHouse DSN configured, balance point snapshots disabled")
	}

	cleanup := func() {
		if chConn != nil {
			chConn.Close()
		}
		pool.Close()
	}

	return stores, cleanup, nil
}

// restoreLedger loads the last snapshot, rate and journal position.
func restoreLedger(ctx context.Context, l *ledger.Ledger, stores *allStores, initialRate uint64, logger *log.Logger) error {
	accounts, err := stores.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	rate := initialRate
	latest, err := stores.rates.Latest(ctx)
	switch {
	case err == nil:
		rate = latest.Rate
	case errors.Is(err, storage.ErrNotFound):
		// Fresh deployment, keep the configured rate.
	default:
		return fmt.Errorf("latest rate: %w", err)
	}

	seq, err := stores.events.LatestSequence(ctx)
	if err != nil {
		return fmt.Errorf("latest sequence: %w", err)
	}

	if len(accounts) == 0 && seq == 0 {
		logger.Printf("Starting fresh ledger at rate %d", rate)
		return nil
	}

	l.Restore(accounts, rate, seq)
	logger.Printf("Restored %d accounts at rate %d, journal sequence %d", len(accounts), rate, seq)
	return nil
}

func startMetricsServer(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())

	logger.Printf("Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("Metrics server error: %v", err)
	}
}

// metricsRecorder updates Prometheus gauges and counters from committed
// events. It runs under the ledger lock and only touches in-process state.
type metricsRecorder struct {
	metrics *observability.Metrics
}

func (r *metricsRecorder) Record(e domain.Event) {
	r.metrics.OperationsTotal.WithLabelValues(string(e.Type)).Inc()
	r.metrics.JournalSequence.Set(float64(e.Sequence))
	if e.Type == domain.EventRateUpdate {
		r.metrics.GlobalRate.Set(float64(e.Amount))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
