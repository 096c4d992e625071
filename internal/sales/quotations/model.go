package quotations

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further action is defined from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

type Action string

const (
	ActionSend    Action = "send"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type Quotation struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	ClientID    int64           `json:"client_id"`
	ProjectID   *int64          `json:"project_id,omitempty"`
	Currency    string          `json:"currency"`
	IssueDate   time.Time       `json:"issue_date"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
	Status      Status          `json:"status"`
	InvoiceID   *int64          `json:"invoice_id,omitempty"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
	ConvertedAt *time.Time      `json:"converted_at,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Lines       []Line          `json:"lines,omitempty"`
}

type Line struct {
	ID              int64           `json:"id"`
	QuotationID     int64           `json:"quotation_id"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	LineOrder       int             `json:"line_order"`
}

// Derived returns a copy with the read-time status applied.
func (q Quotation) Derived(now time.Time) Quotation {
	q.Status = EffectiveStatus(q, now)
	return q
}
