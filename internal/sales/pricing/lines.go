// Package pricing computes document line and header totals.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
)

var hundred = decimal.NewFromInt(100)

// LineTotals is the priced outcome of one document line.
type LineTotals struct {
	Net      decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// CalculateLineTotals applies the discount to quantity × unit price, then tax to the
// discounted amount. Each component is rounded to cents so header sums reconcile.
func CalculateLineTotals(quantity, unitPrice, discountPercent, taxPercent decimal.Decimal) LineTotals {
	gross := quantity.Mul(unitPrice)
	discount := money.Round(gross.Mul(discountPercent).Div(hundred))
	net := money.Round(gross).Sub(discount)
	tax := money.Round(net.Mul(taxPercent).Div(hundred))
	return LineTotals{
		Net:      net,
		Discount: discount,
		Tax:      tax,
		Total:    net.Add(tax),
	}
}

// Header sums line totals into document subtotal, tax and total.
func Header(lines []LineTotals) (subtotal, tax, total decimal.Decimal) {
	subtotal, tax, total = decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Net)
		tax = tax.Add(l.Tax)
		total = total.Add(l.Total)
	}
	return subtotal, tax, total
}
