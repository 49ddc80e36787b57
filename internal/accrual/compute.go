// Package accrual implements the pure interest-accrual arithmetic.
//
// A balance grows linearly with time at the account's locked-in rate:
//
//	balance = principal * (Scale + rate*elapsed) / Scale
//
// using exact integer arithmetic with floor division. The functions here have
// no side effects and are safe for concurrent use.
package accrual

import (
	"errors"
	"math/big"
)

// Scale is the fixed-point precision factor: rates carry 18 decimal places.
const Scale = 1_000_000_000_000_000_000

// ErrOverflow is returned when a computed amount exceeds the uint64 range.
// Overflow is always reported, never wrapped or saturated silently.
var ErrOverflow = errors.New("arithmetic overflow")

var scaleBig = big.NewInt(Scale)

// Multiplier returns Scale + rate*elapsed as an exact big integer.
// Negative elapsed time (a regressed clock) is treated as zero so that the
// multiplier never drops below Scale.
func Multiplier(rate uint64, elapsed int64) *big.Int {
	if elapsed <= 0 || rate == 0 {
		return new(big.Int).Set(scaleBig)
	}

	m := new(big.Int).SetUint64(rate)
	m.Mul(m, big.NewInt(elapsed))
	return m.Add(m, scaleBig)
}

// Balance computes the current balance of an account with the given settled
// principal, per-second rate and last settlement time. The result is always
// >= principal. Returns ErrOverflow if the balance does not fit in a uint64.
func Balance(principal, rate uint64, lastUpdate, now int64) (uint64, error) {
	if principal == 0 {
		return 0, nil
	}

	m := Multiplier(rate, now-lastUpdate)

	b := new(big.Int).SetUint64(principal)
	b.Mul(b, m)
	b.Quo(b, scaleBig)

	if !b.IsUint64() {
		return 0, ErrOverflow
	}
	return b.Uint64(), nil
}

// Interest computes the interest accrued since the last settlement, i.e.
// Balance(...) - principal. Returns ErrOverflow if the balance overflows.
func Interest(principal, rate uint64, lastUpdate, now int64) (uint64, error) {
	b, err := Balance(principal, rate, lastUpdate, now)
	if err != nil {
		return 0, err
	}
	return b - principal, nil
}
