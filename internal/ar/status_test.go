package ar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	due := day(2024, 3, 31)
	before := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	onDue := time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)
	after := day(2024, 4, 1)

	cases := []struct {
		name    string
		balance string
		now     time.Time
		draft   bool
		want    Status
	}{
		{"draft wins", "1000", after, true, StatusDraft},
		{"unpaid before due", "1000", before, false, StatusSent},
		{"unpaid on due date", "1000", onDue, false, StatusSent},
		{"unpaid after due", "1000", after, false, StatusOverdue},
		{"partial before due", "600", before, false, StatusPartiallyPaid},
		{"partial after due is overdue", "600", after, false, StatusOverdue},
		{"paid before due", "0", before, false, StatusPaid},
		{"paid stays paid after due", "0", after, false, StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(dec(tc.balance), dec("1000"), due, tc.now, tc.draft))
		})
	}
}

func TestReportBucketSplitsOverduePartial(t *testing.T) {
	due := day(2024, 3, 31)
	after := day(2024, 4, 2)
	assert.Equal(t, BucketOverduePartiallyPaid, ReportBucket(dec("600"), dec("1000"), due, after, false))
	assert.Equal(t, BucketOverdue, ReportBucket(dec("1000"), dec("1000"), due, after, false))
	assert.Equal(t, BucketPartiallyPaid, ReportBucket(dec("600"), dec("1000"), due, day(2024, 3, 1), false))
}

func TestDerivedRecomputesOnRead(t *testing.T) {
	inv := Invoice{Total: dec("1000"), BalanceAmount: dec("1000"), DueDate: day(2024, 3, 31), Sent: true, Status: StatusSent}
	assert.Equal(t, StatusSent, inv.Derived(day(2024, 3, 15)).Status)
	assert.Equal(t, StatusOverdue, inv.Derived(day(2024, 4, 15)).Status)
	assert.Equal(t, StatusSent, inv.Status, "Derived returns a copy")
}

func TestAgingBuckets(t *testing.T) {
	asOf := day(2024, 6, 30)
	invoices := []Invoice{
		{Sent: true, BalanceAmount: dec("100"), DueDate: day(2024, 7, 10)},
		{Sent: true, BalanceAmount: dec("200"), DueDate: day(2024, 6, 15)},
		{Sent: true, BalanceAmount: dec("300"), DueDate: day(2024, 5, 15)},
		{Sent: true, BalanceAmount: dec("400"), DueDate: day(2024, 4, 15)},
		{Sent: true, BalanceAmount: dec("500"), DueDate: day(2024, 1, 1)},
		{Sent: false, BalanceAmount: dec("999"), DueDate: day(2024, 1, 1)},
		{Sent: true, BalanceAmount: dec("0"), DueDate: day(2024, 1, 1)},
	}
	report := Aging(invoices, asOf)
	assert.True(t, report.Current.Equal(dec("100")))
	assert.True(t, report.Days1To30.Equal(dec("200")))
	assert.True(t, report.Days31To60.Equal(dec("300")))
	assert.True(t, report.Days61To90.Equal(dec("400")))
	assert.True(t, report.Over90.Equal(dec("500")))
	assert.True(t, report.Total.Equal(dec("1500")))
}
