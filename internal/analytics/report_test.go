package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/expenses"
	"github.com/odyssey-erp/odyssey-finance/internal/money"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func invoice(id, client int64, issued, due time.Time, total, paid string) ar.Invoice {
	t := amt(total)
	p := amt(paid)
	return ar.Invoice{
		ID:            id,
		ClientID:      client,
		IssueDate:     issued,
		DueDate:       due,
		Total:         t,
		PaidAmount:    p,
		BalanceAmount: money.Max(decimal.Zero, t.Sub(p)),
		Sent:          true,
	}
}

func TestAccrualAndCashSeparateAcrossMonths(t *testing.T) {
	march := money.MonthPeriod(2024, time.March)
	april := money.MonthPeriod(2024, time.April)
	input := ReportInput{
		Invoices: []ar.Invoice{invoice(1, 7, d(2024, 3, 10), d(2024, 4, 9), "1000", "1000")},
		Receipts: []Receipt{{PaymentID: 1, InvoiceID: 1, ClientID: 7, Amount: amt("1000"), PaidAt: d(2024, 4, 5), Method: "bank_transfer"}},
		Now:      d(2024, 5, 1),
	}

	input.Period = march
	m := BuildPeriodReport(input)
	assert.Equal(t, "1000", m.Accrual.Invoiced.String())
	assert.True(t, m.Cash.Received.IsZero())
	assert.Equal(t, 0, m.Cash.PaymentCount)
	assert.Equal(t, "1", m.Metrics.CollectionRate.String())

	input.Period = april
	a := BuildPeriodReport(input)
	assert.True(t, a.Accrual.Invoiced.IsZero())
	assert.Equal(t, "1000", a.Cash.Received.String())
	assert.Equal(t, "1000", a.Metrics.NetCashFlow.String())
	assert.True(t, a.Metrics.CollectionRate.IsZero())
}

func TestBuildPeriodReportBreakdowns(t *testing.T) {
	project := int64(30)
	partial := invoice(2, 8, d(2024, 3, 5), d(2024, 3, 20), "500", "200")
	partial.ProjectID = &project
	draft := invoice(3, 8, d(2024, 3, 6), d(2024, 4, 6), "900", "0")
	draft.Sent = false

	input := ReportInput{
		Period: money.MonthPeriod(2024, time.March),
		Invoices: []ar.Invoice{
			invoice(1, 7, d(2024, 3, 1), d(2024, 3, 31), "1000", "0"),
			partial,
			draft,
			invoice(4, 7, d(2024, 2, 28), d(2024, 3, 10), "50", "0"),
		},
		Receipts: []Receipt{
			{ClientID: 8, Amount: amt("200"), PaidAt: d(2024, 3, 15), Method: "cash"},
			{ClientID: 7, Amount: amt("33.335"), PaidAt: d(2024, 3, 31), Method: "card"},
		},
		Expenses: []expenses.Expense{
			{Category: "Office Supplies", Amount: amt("100"), ExpenseDate: d(2024, 3, 1)},
			{Category: "office supplies", Amount: amt("20.50"), ExpenseDate: d(2024, 3, 31)},
			{Category: "Travel", Amount: amt("300"), ExpenseDate: d(2024, 3, 2)},
			{Category: "Travel", Amount: amt("999"), ExpenseDate: d(2024, 4, 1)},
		},
		Now: d(2024, 3, 25),
	}
	r := BuildPeriodReport(input)

	assert.Equal(t, "1500", r.Accrual.Invoiced.String())
	assert.Equal(t, 2, r.Accrual.InvoiceCount)
	assert.Equal(t, 1, r.Accrual.DraftCount)
	assert.Equal(t, 1, r.Accrual.ByStatus[ar.BucketSent])
	assert.Equal(t, 1, r.Accrual.ByStatus[ar.BucketOverduePartiallyPaid])
	assert.Equal(t, 1, r.Accrual.ByStatus[ar.BucketDraft])
	assert.Equal(t, "1300", r.Metrics.OutstandingBalance.String())
	assert.Equal(t, "750", r.Metrics.AverageInvoiceValue.String())
	assert.Equal(t, "0.1333", r.Metrics.CollectionRate.String())

	require.Len(t, r.Accrual.ByClient, 2)
	assert.Equal(t, "7", r.Accrual.ByClient[0].Key)
	require.Len(t, r.Accrual.ByProject, 2)
	assert.Equal(t, unassignedKey, r.Accrual.ByProject[0].Key)
	assert.Equal(t, "30", r.Accrual.ByProject[1].Key)

	assert.Equal(t, "233.34", r.Cash.Received.String())
	assert.Equal(t, 2, r.Cash.PaymentCount)
	require.Len(t, r.Cash.ByMethod, 2)
	assert.Equal(t, "cash", r.Cash.ByMethod[0].Key)

	assert.Equal(t, "420.5", r.Expenses.Total.String())
	assert.Equal(t, 3, r.Expenses.Count)
	require.Len(t, r.Expenses.ByCategory, 2)
	assert.Equal(t, "travel", r.Expenses.ByCategory[0].Key)
	assert.Equal(t, "office supplies", r.Expenses.ByCategory[1].Key)
	assert.Equal(t, "Office Supplies", r.Expenses.ByCategory[1].Label)
	assert.Equal(t, 2, r.Expenses.ByCategory[1].Count)
	assert.Equal(t, "-187.16", r.Metrics.NetCashFlow.String())
}

func TestBuildPeriodReportEmpty(t *testing.T) {
	r := BuildPeriodReport(ReportInput{Period: money.MonthPeriod(2024, time.June), Now: d(2024, 6, 1)})
	assert.True(t, r.Accrual.Invoiced.IsZero())
	assert.True(t, r.Metrics.CollectionRate.IsZero())
	assert.True(t, r.Metrics.AverageInvoiceValue.IsZero())
	assert.Empty(t, r.Accrual.ByClient)
}

func TestBuildTrendCoversEveryMonth(t *testing.T) {
	input := ReportInput{
		Period:   money.YearPeriod(2024),
		Invoices: []ar.Invoice{invoice(1, 7, d(2024, 1, 15), d(2024, 2, 14), "100", "0")},
		Receipts: []Receipt{{ClientID: 7, Amount: amt("40"), PaidAt: d(2024, 2, 1)}},
		Expenses: []expenses.Expense{{Category: "Rent", Amount: amt("10"), ExpenseDate: d(2024, 12, 31)}},
		Now:      d(2024, 12, 31),
	}
	points := BuildTrend(input)
	require.Len(t, points, 12)
	assert.Equal(t, "2024-01", points[0].Period)
	assert.Equal(t, "100", points[0].Invoiced.String())
	assert.Equal(t, "40", points[1].NetCashFlow.String())
	assert.Equal(t, "-10", points[11].NetCashFlow.String())
}
