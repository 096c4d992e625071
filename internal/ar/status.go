package ar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/money"
)

// DeriveStatus computes the invoice status from its ledger and the clock.
// Dates are compared by calendar day: an invoice due today is not overdue.
// Once the due date has passed with a balance remaining the invoice is
// overdue, even if it was partly paid.
func DeriveStatus(balance, total decimal.Decimal, due, now time.Time, draft bool) Status {
	switch {
	case draft:
		return StatusDraft
	case !balance.IsPositive():
		return StatusPaid
	case money.DateAfter(now, due):
		return StatusOverdue
	case balance.LessThan(total):
		return StatusPartiallyPaid
	default:
		return StatusSent
	}
}

// Bucket is a reporting classification that splits overdue invoices by
// whether any payment has been received.
type Bucket string

const (
	BucketDraft                Bucket = "draft"
	BucketSent                 Bucket = "sent"
	BucketPartiallyPaid        Bucket = "partially_paid"
	BucketPaid                 Bucket = "paid"
	BucketOverdue              Bucket = "overdue"
	BucketOverduePartiallyPaid Bucket = "overdue_partially_paid"
)

// ReportBucket classifies an invoice for reporting.
func ReportBucket(balance, total decimal.Decimal, due, now time.Time, draft bool) Bucket {
	status := DeriveStatus(balance, total, due, now, draft)
	if status == StatusOverdue && balance.LessThan(total) {
		return BucketOverduePartiallyPaid
	}
	return Bucket(status)
}

// Bucket classifies the invoice for reporting as of now.
func (inv Invoice) Bucket(now time.Time) Bucket {
	return ReportBucket(inv.BalanceAmount, inv.Total, inv.DueDate, now, !inv.Sent)
}
