package main

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"rebase-ledger/internal/feed"
	"rebase-ledger/internal/gateway"
	"rebase-ledger/internal/ledger"
	"rebase-ledger/internal/observability"
	"rebase-ledger/internal/roles"
	"rebase-ledger/internal/storage/memory"
)

// testAddress generates a valid base58-encoded ed25519 address.
func testAddress(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	return base58.Encode(pub)
}

func newTestAPI(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()
	metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
	l := ledger.New(50_000_000_000)
	vault := gateway.NewMemoryVault()
	hub := feed.NewHub(quietLogger())
	t.Cleanup(hub.Close)

	return &Server{
		ledger:   l,
		gateway:  gateway.New(l, vault),
		vault:    vault,
		registry: roles.NewRegistry("owner"),
		events:   memory.NewEventStore(),
		rates:    memory.NewRateUpdateStore(),
		hub:      hub,
		metrics:  metrics,
		logger:   quietLogger(),
		token:    tokenInfo{Name: "Test", Symbol: "TST", Decimals: 9},
		started:  time.Now(),
	}, l
}

func TestHandleTransfer_CountsRejection(t *testing.T) {
	srv, l := newTestAPI(t)

	from := testAddress(t)
	to := testAddress(t)
	if err := l.Mint(from, 100); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	body := fmt.Sprintf(`{"from":%q,"to":%q,"amount":"200"}`, from, to)
	req := httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	c := srv.metrics.OperationErrors.WithLabelValues("transfer", "insufficient_balance")
	if got := testutil.ToFloat64(c); got != 1 {
		t.Errorf("expected 1 counted rejection, got %v", got)
	}
}
