package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
)

// TrendPoint is one month of a multi-month report.
type TrendPoint struct {
	Period      string          `json:"period"`
	Invoiced    decimal.Decimal `json:"invoiced"`
	Received    decimal.Decimal `json:"received"`
	Expenses    decimal.Decimal `json:"expenses"`
	NetCashFlow decimal.Decimal `json:"net_cash_flow"`
}

// BuildTrend splits the input period into months and totals each one.
func BuildTrend(input ReportInput) []TrendPoint {
	months := input.Period.Months()
	points := make([]TrendPoint, 0, len(months))
	for _, m := range months {
		invoiced := accrualBasis(m, input.Invoices, input.Now).Invoiced
		received := cashBasis(m, input.Receipts).Received
		spent := expenseBasis(m, input.Expenses).Total
		points = append(points, TrendPoint{
			Period:      money.MonthKey(m.Start),
			Invoiced:    invoiced,
			Received:    received,
			Expenses:    spent,
			NetCashFlow: money.Round(received.Sub(spent)),
		})
	}
	return points
}
