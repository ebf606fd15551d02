package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxBaseUnitBits is the widest integer amount a conversion may produce.
const MaxBaseUnitBits = 128

var (
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrConversionOverflow = errors.New("amount overflows base unit width")
)

// ToBaseUnits converts a display amount into the chain's integer base unit,
// flooring anything below one base unit.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, amount.String())
	}

	base := amount.Shift(decimals).Truncate(0).BigInt()
	if base.BitLen() > MaxBaseUnitBits {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrConversionOverflow, amount.String(), decimals)
	}
	return base, nil
}

// FromBaseUnits converts an integer base unit amount into display units. The
// division is exact.
func FromBaseUnits(base *big.Int, decimals int32) decimal.Decimal {
	if base == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(base, -decimals)
}

// FormatAmount renders a display amount with a precision that keeps small
// values readable.
func FormatAmount(amount decimal.Decimal, symbol string) string {
	var s string
	switch {
	case amount.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)):
		s = amount.StringFixed(6)
	case amount.Abs().GreaterThanOrEqual(decimal.New(1, -3)):
		s = amount.StringFixed(8)
	default:
		s = amount.StringFixed(12)
	}
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}
