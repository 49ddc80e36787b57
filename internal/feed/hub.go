// Package feed streams committed ledger events to WebSocket subscribers.
package feed

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rebase-ledger/internal/domain"
	"rebase-ledger/internal/ledger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	// Slow clients are disconnected once their send buffer fills up.
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// EventMessage is the wire format pushed to subscribers. Amounts and rates
// are decimal strings so the full uint64 range survives JSON consumers that
// parse numbers as float64.
type EventMessage struct {
	Sequence  uint64 `json:"sequence"`
	Type      string `json:"type"`
	Account   string `json:"account,omitempty"`
	To        string `json:"to,omitempty"`
	Amount    string `json:"amount"`
	Rate      string `json:"rate"`
	Timestamp int64  `json:"timestamp"`
}

type client struct {
	send chan EventMessage
}

// Hub fans out ledger events to connected WebSocket clients.
type Hub struct {
	logger *log.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// Compile-time interface check.
var _ ledger.Recorder = (*Hub)(nil)

// NewHub creates a new Hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Record broadcasts a committed event. It is called under the ledger lock
// and never blocks: clients that cannot keep up are dropped.
func (h *Hub) Record(e domain.Event) {
	msg := EventMessage{
		Sequence:  e.Sequence,
		Type:      string(e.Type),
		Account:   e.Account,
		To:        e.To,
		Amount:    strconv.FormatUint(e.Amount, 10),
		Rate:      strconv.FormatUint(e.Rate, 10),
		Timestamp: e.Timestamp,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all subscribers. New connections are rejected afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// HandleWebSocket upgrades the connection and streams events until the
// client disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[feed] websocket upgrade failed: %v", err)
		return
	}

	c := &client{send: make(chan EventMessage, clientBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writeLoop(conn, c)
	h.readLoop(conn, c)
}

// writeLoop pumps events to the client and keeps the connection alive with
// pings. It exits when the send channel is closed on unregister.
func (h *Hub) writeLoop(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames and unregisters on disconnect.
func (h *Hub) readLoop(conn *websocket.Conn, c *client) {
	defer h.unregister(c)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
