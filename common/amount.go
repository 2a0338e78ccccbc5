package common

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the largest number of decimals a mint can be created with.
const MaxDecimals = 9

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrAmountPrecision = errors.New("amount has more fractional digits than the mint's decimals")
	ErrAmountOverflow  = errors.New("amount overflows u64 base units")
)

var maxU64 = decimal.NewFromUint64(math.MaxUint64)

// ToBaseUnits converts a UI amount (e.g. "1.5") to base units given the
// mint's decimals. Amounts finer than one base unit are rejected instead of
// being truncated.
func ToBaseUnits(uiAmount string, decimals uint8) (uint64, error) {
	uiAmount = strings.TrimSpace(uiAmount)
	if uiAmount == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if decimals > MaxDecimals {
		return 0, fmt.Errorf("%w: decimals=%d", ErrInvalidAmount, decimals)
	}

	d, err := decimal.NewFromString(uiAmount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}

	base := d.Shift(int32(decimals))
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s with decimals=%d", ErrAmountPrecision, uiAmount, decimals)
	}
	if base.GreaterThan(maxU64) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, uiAmount)
	}
	return base.BigInt().Uint64(), nil
}

// FormatBaseUnits renders base units as a UI amount string.
func FormatBaseUnits(amount uint64, decimals uint8) string {
	return decimal.NewFromUint64(amount).Shift(-int32(decimals)).String()
}

// OneToken returns the base units of a single whole token.
func OneToken(decimals uint8) uint64 {
	v := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		v *= 10
	}
	return v
}
