package domain

// BalancePoint is an analytics sample of an account's balance at a point in
// time. Points are produced by the snapshotter and stored in ClickHouse.
type BalancePoint struct {
	Address   string // account address
	Timestamp int64  // Unix timestamp (seconds) of the sample
	Principal uint64 // settled principal at sample time
	Balance   uint64 // computed balance including pending interest
	Rate      uint64 // account rate at sample time
}
