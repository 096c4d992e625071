package ar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
)

// Aging groups outstanding balances of sent invoices by days past due.
func Aging(invoices []Invoice, asOf time.Time) AgingReport {
	report := AgingReport{
		AsOf:       money.DateOf(asOf),
		Current:    decimal.Zero,
		Days1To30:  decimal.Zero,
		Days31To60: decimal.Zero,
		Days61To90: decimal.Zero,
		Over90:     decimal.Zero,
		Total:      decimal.Zero,
	}
	for _, inv := range invoices {
		if !inv.Sent || !inv.BalanceAmount.IsPositive() {
			continue
		}
		balance := inv.BalanceAmount
		days := money.DaysBetween(inv.DueDate, asOf)
		switch {
		case days <= 0:
			report.Current = report.Current.Add(balance)
		case days <= 30:
			report.Days1To30 = report.Days1To30.Add(balance)
		case days <= 60:
			report.Days31To60 = report.Days31To60.Add(balance)
		case days <= 90:
			report.Days61To90 = report.Days61To90.Add(balance)
		default:
			report.Over90 = report.Over90.Add(balance)
		}
		report.Total = report.Total.Add(balance)
	}
	return report
}
