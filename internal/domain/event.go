package domain

// EventType identifies the kind of ledger event.
type EventType string

// Event type constants.
const (
	EventMint       EventType = "MINT"
	EventBurn       EventType = "BURN"
	EventTransfer   EventType = "TRANSFER"
	EventRateUpdate EventType = "RATE_UPDATE"
	EventDeposit    EventType = "DEPOSIT"
	EventRedeem     EventType = "REDEEM"
)

// Event is a single entry in the ledger journal. Events are assigned a
// monotone sequence by the ledger at commit time and are append-only.
// Corresponds to the ledger_events table in PostgreSQL.
type Event struct {
	Sequence  uint64    // PRIMARY KEY, assigned by the ledger, strictly increasing
	Type      EventType // MINT | BURN | TRANSFER | RATE_UPDATE | DEPOSIT | REDEEM
	Account   string    // affected account (sender for TRANSFER, updater for RATE_UPDATE)
	To        string    // recipient, TRANSFER only
	Amount    uint64    // token base units (new rate value for RATE_UPDATE)
	Rate      uint64    // account rate after the operation (previous global rate for RATE_UPDATE)
	Timestamp int64     // Unix timestamp (seconds) of the operation
}
