package ledger

import "errors"

// Ledger operation errors. All are synchronous and non-retryable: the caller
// must correct the request. No error leaves an account in a partial state.
var (
	// ErrInsufficientBalance is returned when a burn or transfer amount
	// exceeds the account's settled balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrRateIncrease is returned when a global rate update would increase
	// the rate. The global rate only ever decreases.
	ErrRateIncrease = errors.New("rate increase rejected")

	// ErrInvalidAccount is returned when an operation names an empty
	// account address.
	ErrInvalidAccount = errors.New("invalid account address")
)
