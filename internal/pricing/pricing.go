package pricing

import "github.com/shopspring/decimal"

// Fixed business rates. These are store policy, not runtime configuration.
var (
	TaxRate               = decimal.NewFromFloat(0.08)
	FreeShippingThreshold = decimal.NewFromFloat(50.00)
	FlatShippingRate      = decimal.NewFromFloat(5.99)
)

// Line is one priced quantity of a product or variant.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Summary holds the computed totals for a set of lines.
// All amounts are rounded to 2 decimal places.
type Summary struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Shipping  decimal.Decimal `json:"shipping"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// Calculate computes subtotal, tax, shipping and total for the given lines.
// Tax is a flat 8%. Shipping is 5.99 below the free-shipping threshold and
// zero at or above it. An empty line set still carries the flat shipping
// rate since its subtotal is below the threshold.
func Calculate(lines []Line, discount decimal.Decimal) Summary {
	subtotal := decimal.Zero
	itemCount := 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		itemCount += l.Quantity
	}
	subtotal = subtotal.Round(2)

	tax := subtotal.Mul(TaxRate).Round(2)

	shipping := FlatShippingRate
	if subtotal.GreaterThanOrEqual(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	discount = discount.Round(2)
	total := subtotal.Add(tax).Add(shipping).Sub(discount).Round(2)

	return Summary{
		Subtotal:  subtotal,
		Tax:       tax,
		Shipping:  shipping,
		Discount:  discount,
		Total:     total,
		ItemCount: itemCount,
	}
}
