package domain

// Account represents a single balance-bearing account.
// Corresponds to the accounts table in PostgreSQL.
type Account struct {
	Address   string // base58-encoded account address, PRIMARY KEY
	Principal uint64 // settled principal in token base units
	Rate      uint64 // locked-in interest rate per second, fixed-point scaled by 1e18
	UpdatedAt int64  // Unix timestamp (seconds) of the last settlement
}

// Empty reports whether the account holds no principal.
// An empty account inherits a rate on its next mint or incoming transfer.
func (a *Account) Empty() bool {
	return a.Principal == 0
}
