package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateLineTotals(t *testing.T) {
	got := CalculateLineTotals(d("3"), d("100"), d("10"), d("11"))
	assert.Equal(t, "30", got.Discount.String())
	assert.Equal(t, "270", got.Net.String())
	assert.Equal(t, "29.7", got.Tax.String())
	assert.Equal(t, "299.7", got.Total.String())
}

func TestCalculateLineTotalsRoundsComponents(t *testing.T) {
	got := CalculateLineTotals(d("1"), d("10.005"), d("0"), d("0"))
	assert.Equal(t, "10.01", got.Net.String())
	assert.True(t, got.Total.Equal(got.Net.Add(got.Tax)))
}

func TestHeaderReconciles(t *testing.T) {
	lines := []LineTotals{
		CalculateLineTotals(d("1"), d("99.99"), d("0"), d("11")),
		CalculateLineTotals(d("2"), d("0.335"), d("5"), d("11")),
	}
	subtotal, tax, total := Header(lines)
	assert.True(t, subtotal.Add(tax).Equal(total))
}
