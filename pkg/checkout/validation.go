package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/money"
)

// LineInput is one priced line of a checkout snapshot.
type LineInput struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// LineViolation explains why a snapshot line was rejected.
type LineViolation struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

// ValidateLines checks that a snapshot is non-empty, unique by product and
// carries positive quantities with non-negative prices.
func ValidateLines(items []LineInput) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	var violations []LineViolation
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		switch {
		case id == "":
			violations = append(violations, LineViolation{Reason: "product id is required"})
			continue
		case item.Quantity < 1:
			violations = append(violations, LineViolation{ProductID: id, Reason: "quantity must be at least 1"})
		case item.Price.IsNegative():
			violations = append(violations, LineViolation{ProductID: id, Reason: "price must not be negative"})
		}
		if _, dup := seen[id]; dup {
			violations = append(violations, LineViolation{ProductID: id, Reason: "duplicate product"})
		}
		seen[id] = struct{}{}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart snapshot invalid for %d item(s)", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}

// Amount validates items and returns the sum of price times quantity in major units.
func Amount(items []LineInput) (decimal.Decimal, error) {
	if err := ValidateLines(items); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, item := range items {
		line, err := money.LineTotal(item.Price, item.Quantity)
		if err != nil {
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line total")
		}
		total = total.Add(line)
	}
	return total, nil
}
