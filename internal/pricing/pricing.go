// Package pricing computes order totals. It is a pure function over cart
// lines, an optional discount effect, and the configured tax rate: no store
// access, no side effects.
package pricing

import (
	"fmt"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
)

// Line is one cart entry: a product snapshot and a quantity.
type Line struct {
	Product  models.Product
	Quantity int
}

// Quote is the computed money breakdown for an order. The invariant
// Total == Subtotal - Discount + Taxes holds by construction, and every
// amount is rounded half-up to the currency's two minor units.
type Quote struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Taxes    decimal.Decimal
	Total    decimal.Decimal
}

// Compute prices a cart. The discount code may be nil. taxRate is a
// fraction, e.g. 0.05 for 5%.
func Compute(lines []Line, code *models.DiscountCode, taxRate decimal.Decimal) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, fmt.Errorf("%w: cart is empty", models.ErrValidation)
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 1 {
			return Quote{}, fmt.Errorf("%w: quantity must be at least 1 for product %d",
				models.ErrValidation, line.Product.ID)
		}
		unit := line.Product.EffectivePrice()
		subtotal = subtotal.Add(unit.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = roundMoney(subtotal)

	discount := decimal.Zero
	if code != nil {
		discount = roundMoney(code.Apply(subtotal))
	}

	taxes := roundMoney(subtotal.Sub(discount).Mul(taxRate))

	return Quote{
		Subtotal: subtotal,
		Discount: discount,
		Taxes:    taxes,
		Total:    subtotal.Sub(discount).Add(taxes),
	}, nil
}

// roundMoney rounds to two decimal places, half away from zero. Amounts are
// never negative here, so this is round-half-up.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
