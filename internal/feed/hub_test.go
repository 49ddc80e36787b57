package feed

import (
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rebase-ledger/internal/domain"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestServer(t *testing.T) (*Hub, *websocket.Conn, func()) {
	t.Helper()

	hub := NewHub(quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	// Wait for the server side to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cleanup := func() {
		conn.Close()
		hub.Close()
		srv.Close()
	}
	return hub, conn, cleanup
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub, conn, cleanup := newTestServer(t)
	defer cleanup()

	hub.Record(domain.Event{
		Sequence:  1,
		Type:      domain.EventMint,
		Account:   "alice",
		Amount:    100_000,
		Rate:      50_000_000_000,
		Timestamp: 1_000_000,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}

	if msg.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", msg.Sequence)
	}
	if msg.Type != string(domain.EventMint) {
		t.Errorf("expected type %q, got %q", domain.EventMint, msg.Type)
	}
	if msg.Account != "alice" || msg.Amount != "100000" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Rate != "50000000000" {
		t.Errorf("expected rate as decimal string, got %q", msg.Rate)
	}
}

func TestHub_FullUint64RangeSurvivesEncoding(t *testing.T) {
	hub, conn, cleanup := newTestServer(t)
	defer cleanup()

	hub.Record(domain.Event{
		Sequence:  1,
		Type:      domain.EventMint,
		Account:   "alice",
		Amount:    math.MaxUint64,
		Rate:      math.MaxUint64 - 1,
		Timestamp: 1,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}

	if msg.Amount != "18446744073709551615" {
		t.Errorf("amount lost precision: %q", msg.Amount)
	}
	if msg.Rate != "18446744073709551614" {
		t.Errorf("rate lost precision: %q", msg.Rate)
	}
}

func TestHub_MultipleSubscribers(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %d failed: %v", i, err)
		}
		defer conn.Close()
		conns = append(conns, conn)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 clients, got %d", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Record(domain.Event{Sequence: 7, Type: domain.EventTransfer, Account: "alice", To: "bob", Amount: 40, Timestamp: 1})

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg EventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("subscriber %d: ReadJSON failed: %v", i, err)
		}
		if msg.Sequence != 7 || msg.To != "bob" {
			t.Errorf("subscriber %d: unexpected message: %+v", i, msg)
		}
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, conn, cleanup := newTestServer(t)
	defer cleanup()

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still registered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_RecordWithoutClients(t *testing.T) {
	hub := NewHub(quietLogger())
	// Must not panic or block.
	hub.Record(domain.Event{Sequence: 1, Type: domain.EventMint, Account: "alice", Amount: 1, Timestamp: 1})
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub := NewHub(quietLogger())

	// A registered client with no write loop draining its buffer.
	c := &client{send: make(chan EventMessage, clientBuffer)}
	if !hub.register(c) {
		t.Fatal("register failed")
	}

	for i := 0; i < clientBuffer+1; i++ {
		hub.Record(domain.Event{Sequence: uint64(i + 1), Type: domain.EventMint, Account: "alice", Amount: 1, Timestamp: 1})
	}

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected slow client to be dropped, %d still registered", got)
	}
	// The send channel must be closed so a write loop would exit.
	if _, ok := <-drain(c.send); ok {
		t.Error("expected send channel to be closed")
	}
}

// drain consumes buffered messages and returns the channel for the final
// closed-check receive.
func drain(ch chan EventMessage) chan EventMessage {
	for len(ch) > 0 {
		<-ch
	}
	return ch
}
