package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a display amount cannot be represented in base units.
var ErrInvalidAmount = errors.New("invalid amount")

var maxBaseUnits = decimal.NewFromUint64(math.MaxUint64)

// FormatAmount renders base units as a decimal string with the mint's decimals.
func FormatAmount(base uint64, decimals uint8) string {
	return decimal.NewFromUint64(base).Shift(-int32(decimals)).StringFixed(int32(decimals))
}

// ParseAmount converts a display amount ("1.5") into base units. Amounts with
// more fractional digits than decimals are rejected rather than rounded.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	base := d.Shift(int32(decimals))
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	if base.GreaterThan(maxBaseUnits) {
		return 0, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, s)
	}
	return base.BigInt().Uint64(), nil
}
