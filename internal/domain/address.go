package domain

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLen is the decoded length of an account address in bytes.
const AddressLen = 32

// ErrInvalidAddress wraps every address validation failure.
var ErrInvalidAddress = errors.New("invalid address")

// ValidateAddress checks that addr is a base58-encoded 32-byte ed25519 point.
// The ledger itself treats addresses as opaque strings; validation happens at
// the API boundary before an address first enters the system.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != AddressLen {
		return fmt.Errorf("%w: must decode to %d bytes, got %d", ErrInvalidAddress, AddressLen, len(decoded))
	}

	if _, err := new(edwards25519.Point).SetBytes(decoded); err != nil {
		return fmt.Errorf("%w: not a valid curve point", ErrInvalidAddress)
	}

	return nil
}
