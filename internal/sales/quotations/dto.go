package quotations

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateInput struct {
	Number     string
	ClientID   int64
	ProjectID  *int64
	Currency   string
	IssueDate  time.Time
	ExpiryDate time.Time
	Lines      []LineInput
}

type LineInput struct {
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
}

// ConvertInput controls the invoice produced by a conversion. Zero dates fall
// back to today and the configured payment terms.
type ConvertInput struct {
	IssueDate       time.Time
	DueDate         time.Time
	Draft           bool
	ExpectedVersion int64
}

type ListFilter struct {
	ClientID int64
	Status   Status
	Limit    int
}

type createQuotationRequest struct {
	Number     string              `json:"number" validate:"omitempty,max=64"`
	ClientID   int64               `json:"client_id" validate:"required,gt=0"`
	ProjectID  *int64              `json:"project_id" validate:"omitempty,gt=0"`
	Currency   string              `json:"currency" validate:"omitempty,len=3,alpha"`
	IssueDate  string              `json:"issue_date" validate:"required,datetime=2006-01-02"`
	ExpiryDate string              `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Lines      []createLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createLineRequest struct {
	Description     string `json:"description" validate:"required,max=255"`
	Quantity        string `json:"quantity" validate:"required,numeric"`
	UnitPrice       string `json:"unit_price" validate:"required,numeric"`
	DiscountPercent string `json:"discount_percent" validate:"omitempty,numeric"`
	TaxPercent      string `json:"tax_percent" validate:"omitempty,numeric"`
}

type transitionRequest struct {
	Action          Action `json:"action" validate:"required,oneof=send approve reject"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}

type convertRequest struct {
	IssueDate       string `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate         string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Draft           bool   `json:"draft"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
}
