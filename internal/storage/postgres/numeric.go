package postgres

import (
	"fmt"
	"strconv"
)

// PostgreSQL has no unsigned 64-bit integer type, so amounts, rates and
// sequences are stored as NUMERIC(20,0). Values cross the wire as decimal
// strings in both directions.

// uintArg formats a uint64 for a ::numeric query parameter.
func uintArg(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// parseUint converts a NUMERIC ::text column value back to uint64.
func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric column %q: %w", s, err)
	}
	return v, nil
}
