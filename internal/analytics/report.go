package analytics

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/expenses"
	"github.com/odyssey-erp/odyssey-finance/internal/money"
)

const unassignedKey = "unassigned"

// Receipt is a payment joined with the client of the invoice it settles.
type Receipt struct {
	PaymentID int64           `json:"payment_id"`
	InvoiceID int64           `json:"invoice_id"`
	ClientID  int64           `json:"client_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
	Method    string          `json:"method"`
}

// ReportInput is the raw material of a period report. Rows outside Period are ignored.
type ReportInput struct {
	Period   money.Period
	Invoices []ar.Invoice
	Receipts []Receipt
	Expenses []expenses.Expense
	Now      time.Time
}

// GroupTotal is one row of a grouped breakdown.
type GroupTotal struct {
	Key    string          `json:"key"`
	Label  string          `json:"label,omitempty"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// AccrualBasis summarises revenue by invoice issue date.
type AccrualBasis struct {
	Invoiced     decimal.Decimal   `json:"invoiced"`
	InvoiceCount int               `json:"invoice_count"`
	DraftCount   int               `json:"draft_count"`
	ByStatus     map[ar.Bucket]int `json:"by_status"`
	ByClient     []GroupTotal      `json:"by_client"`
	ByProject    []GroupTotal      `json:"by_project"`
	Outstanding  decimal.Decimal   `json:"outstanding"`
	Collected    decimal.Decimal   `json:"collected"`
}

// CashBasis summarises money received by payment date.
type CashBasis struct {
	Received     decimal.Decimal `json:"received"`
	PaymentCount int             `json:"payment_count"`
	ByClient     []GroupTotal    `json:"by_client"`
	ByMethod     []GroupTotal    `json:"by_method"`
}

// ExpenseBasis summarises costs by expense date.
type ExpenseBasis struct {
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	ByCategory []GroupTotal    `json:"by_category"`
}

// DerivedMetrics combines the bases.
type DerivedMetrics struct {
	NetCashFlow         decimal.Decimal `json:"net_cash_flow"`
	CollectionRate      decimal.Decimal `json:"collection_rate"`
	AverageInvoiceValue decimal.Decimal `json:"average_invoice_value"`
	OutstandingBalance  decimal.Decimal `json:"outstanding_balance"`
}

// Report is the period summary served to dashboards.
type Report struct {
	Period      money.Period   `json:"period"`
	GeneratedAt time.Time      `json:"generated_at"`
	Accrual     AccrualBasis   `json:"accrual"`
	Cash        CashBasis      `json:"cash"`
	Expenses    ExpenseBasis   `json:"expenses"`
	Metrics     DerivedMetrics `json:"metrics"`
	Trend       []TrendPoint   `json:"trend,omitempty"`
}

// BuildPeriodReport aggregates the input over its period. Invoice statuses are
// derived as of input.Now; draft invoices are counted but not treated as revenue.
func BuildPeriodReport(input ReportInput) Report {
	accrual := accrualBasis(input.Period, input.Invoices, input.Now)
	cash := cashBasis(input.Period, input.Receipts)
	spend := expenseBasis(input.Period, input.Expenses)
	return Report{
		Period:      input.Period,
		GeneratedAt: input.Now,
		Accrual:     accrual,
		Cash:        cash,
		Expenses:    spend,
		Metrics: DerivedMetrics{
			NetCashFlow:         money.Round(cash.Received.Sub(spend.Total)),
			CollectionRate:      money.Ratio(accrual.Collected, accrual.Invoiced),
			AverageInvoiceValue: money.Average(accrual.Invoiced, accrual.InvoiceCount),
			OutstandingBalance:  accrual.Outstanding,
		},
	}
}

func accrualBasis(p money.Period, invoices []ar.Invoice, now time.Time) AccrualBasis {
	out := AccrualBasis{
		Invoiced:    decimal.Zero,
		Outstanding: decimal.Zero,
		Collected:   decimal.Zero,
		ByStatus:    make(map[ar.Bucket]int),
	}
	byClient := newGrouper()
	byProject := newGrouper()
	for _, inv := range invoices {
		if !p.Contains(inv.IssueDate) {
			continue
		}
		out.ByStatus[inv.Bucket(now)]++
		if !inv.Sent {
			out.DraftCount++
			continue
		}
		out.InvoiceCount++
		out.Invoiced = out.Invoiced.Add(inv.Total)
		out.Outstanding = out.Outstanding.Add(inv.BalanceAmount)
		out.Collected = out.Collected.Add(inv.PaidAmount)
		byClient.add(strconv.FormatInt(inv.ClientID, 10), inv.Total)
		project := unassignedKey
		if inv.ProjectID != nil {
			project = strconv.FormatInt(*inv.ProjectID, 10)
		}
		byProject.add(project, inv.Total)
	}
	out.Invoiced = money.Round(out.Invoiced)
	out.Outstanding = money.Round(out.Outstanding)
	out.Collected = money.Round(out.Collected)
	out.ByClient = byClient.rows()
	out.ByProject = byProject.rows()
	return out
}

func cashBasis(p money.Period, receipts []Receipt) CashBasis {
	out := CashBasis{Received: decimal.Zero}
	byClient := newGrouper()
	byMethod := newGrouper()
	for _, r := range receipts {
		if !p.Contains(r.PaidAt) {
			continue
		}
		out.PaymentCount++
		out.Received = out.Received.Add(r.Amount)
		byClient.add(strconv.FormatInt(r.ClientID, 10), r.Amount)
		method := strings.TrimSpace(r.Method)
		if method == "" {
			method = unassignedKey
		}
		byMethod.add(method, r.Amount)
	}
	out.Received = money.Round(out.Received)
	out.ByClient = byClient.rows()
	out.ByMethod = byMethod.rows()
	return out
}

func expenseBasis(p money.Period, list []expenses.Expense) ExpenseBasis {
	out := ExpenseBasis{Total: decimal.Zero}
	fold := cases.Fold()
	title := cases.Title(language.Und)
	byCategory := newGrouper()
	for _, e := range list {
		if !p.Contains(e.ExpenseDate) {
			continue
		}
		out.Count++
		out.Total = out.Total.Add(e.Amount)
		category := strings.TrimSpace(e.Category)
		if category == "" {
			category = unassignedKey
		}
		key := fold.String(category)
		byCategory.add(key, e.Amount)
		byCategory.label(key, title.String(key))
	}
	out.Total = money.Round(out.Total)
	out.ByCategory = byCategory.rows()
	return out
}

type grouper struct {
	totals map[string]*GroupTotal
}

func newGrouper() *grouper {
	return &grouper{totals: make(map[string]*GroupTotal)}
}

func (g *grouper) add(key string, amount decimal.Decimal) {
	row, ok := g.totals[key]
	if !ok {
		row = &GroupTotal{Key: key, Amount: decimal.Zero}
		g.totals[key] = row
	}
	row.Amount = row.Amount.Add(amount)
	row.Count++
}

func (g *grouper) label(key, label string) {
	if row, ok := g.totals[key]; ok && row.Label == "" {
		row.Label = label
	}
}

// rows orders by amount descending, then key.
func (g *grouper) rows() []GroupTotal {
	out := make([]GroupTotal, 0, len(g.totals))
	for _, row := range g.totals {
		r := *row
		r.Amount = money.Round(r.Amount)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}
