// Package money holds the only conversion between the major-unit amounts the
// storefront displays and the minor units the payment provider charges.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places between major and minor units.
const MinorUnitExponent = 2

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrFractionalMinor = errors.New("amount has more precision than the minor unit")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// ToMinorUnits converts a major-unit amount (e.g. 2000.50) to integral minor units (200050).
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	minor := amount.Shift(MinorUnitExponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrFractionalMinor, amount.String())
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts provider minor units back to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-MinorUnitExponent)
}

// LineTotal returns price multiplied by quantity.
func LineTotal(price decimal.Decimal, quantity int) (decimal.Decimal, error) {
	if quantity < 1 {
		return decimal.Zero, ErrInvalidQuantity
	}
	return price.Mul(decimal.NewFromInt(int64(quantity))), nil
}

// Parse reads a major-unit amount from its string form, accepting surrounding spaces.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return amount, nil
}

// Format renders an amount with exactly two fraction digits.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(MinorUnitExponent)
}
