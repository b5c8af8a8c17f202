// internal/domain/cart/totals.go
package cart

import "github.com/shopspring/decimal"

// CalculateTotals sums unit_price × quantity over the items, rounded half away
// from zero to two decimals, and counts units and distinct lines.
func CalculateTotals(items []LineItem) Totals {
	var totals Totals
	sum := decimal.Zero

	for _, item := range items {
		totals.ItemCount += item.Quantity
		totals.LineCount++

		price, err := parsePrice(item.UnitPrice)
		if err != nil {
			// Prices are validated on add; a bad one can only come from a hand-edited value
			continue
		}
		sum = sum.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	totals.Total = sum.StringFixed(2)
	return totals
}
