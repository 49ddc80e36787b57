package domain

// RateUpdate records a change of the global interest rate.
// Corresponds to the rate_updates table in PostgreSQL.
type RateUpdate struct {
	Sequence     uint64 // journal sequence of the update event
	Rate         uint64 // new global rate per second, fixed-point scaled by 1e18
	PreviousRate uint64 // rate that was in effect before the update
	UpdatedBy    string // administrative principal that requested the update
	Timestamp    int64  // Unix timestamp (seconds)
}
