package ar

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the derived invoice statuses.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusSent          Status = "sent"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusOverdue       Status = "overdue"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPartiallyPaid, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// Invoice is an issued receivable. PaidAmount, BalanceAmount and Status are
// derived from the payments and the clock; Version guards concurrent writers.
type Invoice struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	ClientID      int64           `json:"client_id"`
	ProjectID     *int64          `json:"project_id,omitempty"`
	QuotationID   *int64          `json:"quotation_id,omitempty"`
	Currency      string          `json:"currency"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	Status        Status          `json:"status"`
	Sent          bool            `json:"sent"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Derived returns a copy of the invoice with Status recomputed for now.
func (inv Invoice) Derived(now time.Time) Invoice {
	inv.Status = DeriveStatus(inv.BalanceAmount, inv.Total, inv.DueDate, now, !inv.Sent)
	return inv
}

// Payment is an immutable receipt applied to one invoice.
type Payment struct {
	ID        int64           `json:"id"`
	Number    string          `json:"number"`
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// IssueInvoiceInput carries the fields needed to issue a new invoice.
type IssueInvoiceInput struct {
	Number      string
	ClientID    int64
	ProjectID   *int64
	QuotationID *int64
	Currency    string
	IssueDate   time.Time
	DueDate     time.Time
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	Total       decimal.Decimal
	Draft       bool
}

// RecordPaymentInput describes a payment to apply to an invoice.
// ExpectedVersion, when non-zero, must match the stored invoice version.
type RecordPaymentInput struct {
	InvoiceID       int64
	Amount          decimal.Decimal
	PaidAt          time.Time
	Method          string
	Reference       string
	IdempotencyKey  string
	ExpectedVersion int64
}

// LedgerUpdate is the persisted outcome of a reconciliation.
type LedgerUpdate struct {
	PaidAmount    decimal.Decimal
	BalanceAmount decimal.Decimal
	Status        Status
}

// Reconciliation is the read-time view of an invoice ledger.
type Reconciliation struct {
	InvoiceID     int64           `json:"invoice_id"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	Excess        decimal.Decimal `json:"excess"`
	Status        Status          `json:"status"`
	PaymentCount  int             `json:"payment_count"`
	Version       int64           `json:"version"`
}

// ListFilter narrows invoice listings. Status is matched against the derived status.
type ListFilter struct {
	Status   Status
	ClientID int64
	Limit    int
}

// AgingReport summarises outstanding balances by days past due.
type AgingReport struct {
	AsOf       time.Time       `json:"as_of"`
	Current    decimal.Decimal `json:"current"`
	Days1To30  decimal.Decimal `json:"days_1_30"`
	Days31To60 decimal.Decimal `json:"days_31_60"`
	Days61To90 decimal.Decimal `json:"days_61_90"`
	Over90     decimal.Decimal `json:"over_90"`
	Total      decimal.Decimal `json:"total"`
}
