package ar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

type memoryARRepo struct {
	mu            sync.Mutex
	invoices      map[int64]*Invoice
	payments      map[int64][]Payment
	nextInvoiceID int64
	nextPaymentID int64
	beforeUpdate  func()
}

func newMemoryARRepo() *memoryARRepo {
	return &memoryARRepo{
		invoices: make(map[int64]*Invoice),
		payments: make(map[int64][]Payment),
	}
}

func (r *memoryARRepo) NextInvoiceNumber(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("INV-%06d", r.nextInvoiceID+1), nil
}

func (r *memoryARRepo) CreateInvoice(ctx context.Context, input IssueInvoiceInput, status Status) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextInvoiceID++
	inv := &Invoice{
		ID:            r.nextInvoiceID,
		Number:        input.Number,
		ClientID:      input.ClientID,
		ProjectID:     input.ProjectID,
		QuotationID:   input.QuotationID,
		Currency:      input.Currency,
		IssueDate:     input.IssueDate,
		DueDate:       input.DueDate,
		Subtotal:      input.Subtotal,
		TaxAmount:     input.TaxAmount,
		Total:         input.Total,
		PaidAmount:    dec("0"),
		BalanceAmount: input.Total,
		Status:        status,
		Sent:          !input.Draft,
		Version:       1,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	r.invoices[inv.ID] = inv
	cp := *inv
	return &cp, nil
}

func (r *memoryARRepo) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryARRepo) ListInvoices(ctx context.Context, clientID int64) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.invoices {
		if clientID == 0 || inv.ClientID == clientID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryARRepo) ListOutstanding(ctx context.Context) ([]Invoice, error) {
	all, _ := r.ListInvoices(ctx, 0)
	var out []Invoice
	for _, inv := range all {
		if inv.Sent && inv.BalanceAmount.IsPositive() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryARRepo) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payment(nil), r.payments[invoiceID]...), nil
}

func (r *memoryARRepo) InsertPayment(ctx context.Context, payment Payment) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPaymentID++
	payment.ID = r.nextPaymentID
	payment.CreatedAt = time.Now()
	r.payments[payment.InvoiceID] = append(r.payments[payment.InvoiceID], payment)
	return &payment, nil
}

func (r *memoryARRepo) UpdateLedger(ctx context.Context, id, version int64, update LedgerUpdate) (int64, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := r.invoices[id]
	if inv.Version != version {
		return 0, shared.ErrConcurrentModification
	}
	inv.PaidAmount = update.PaidAmount
	inv.BalanceAmount = update.BalanceAmount
	inv.Status = update.Status
	inv.Version++
	return inv.Version, nil
}

func (r *memoryARRepo) MarkSent(ctx context.Context, id, version int64, sentAt time.Time, status Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := r.invoices[id]
	if inv.Version != version || inv.Sent {
		return 0, shared.ErrConcurrentModification
	}
	inv.Sent = true
	inv.SentAt = &sentAt
	inv.Status = status
	inv.Version++
	return inv.Version, nil
}

func (r *memoryARRepo) UpdateStatus(ctx context.Context, id int64, status Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := r.invoices[id]
	if inv.Status == status {
		return false, nil
	}
	inv.Status = status
	return true, nil
}

// rollbackTx snapshots payments so a failed closure leaves the repo untouched.
type rollbackTx struct{ repo *memoryARRepo }

func (t rollbackTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.repo.mu.Lock()
	saved := make(map[int64][]Payment, len(t.repo.payments))
	for k, v := range t.repo.payments {
		saved[k] = append([]Payment(nil), v...)
	}
	t.repo.mu.Unlock()
	if err := fn(ctx); err != nil {
		t.repo.mu.Lock()
		t.repo.payments = saved
		t.repo.mu.Unlock()
		return err
	}
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[module+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+key] = true
	return nil
}

type recordingAudit struct{ logs []shared.AuditLog }

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.calls++
	return nil
}

type countingObserver struct{ events map[string]int }

func (c *countingObserver) ObserveEngineEvent(event, outcome string) {
	if c.events == nil {
		c.events = map[string]int{}
	}
	c.events[event+":"+outcome]++
}

type fixture struct {
	svc     *Service
	repo    *memoryARRepo
	audit   *recordingAudit
	cache   *countingInvalidator
	metrics *countingObserver
	now     time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	repo := newMemoryARRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, rollbackTx{repo: repo}, audit, &memoryIdempotency{}, ServiceConfig{})
	f := &fixture{svc: svc, repo: repo, audit: audit, cache: &countingInvalidator{}, metrics: &countingObserver{}, now: now}
	svc.WithClock(shared.ClockFunc(func() time.Time { return f.now }))
	svc.SetReportInvalidator(f.cache)
	svc.SetObserver(f.metrics)
	return f
}

func (f *fixture) issue(t *testing.T, total string, due time.Time) *Invoice {
	t.Helper()
	inv, err := f.svc.IssueInvoice(context.Background(), IssueInvoiceInput{
		ClientID:  7,
		IssueDate: day(2024, 3, 1),
		DueDate:   due,
		Total:     dec(total),
	})
	require.NoError(t, err)
	return inv
}

func TestIssueInvoiceDefaults(t *testing.T) {
	f := newFixture(t, day(2024, 3, 1))
	inv, err := f.svc.IssueInvoice(context.Background(), IssueInvoiceInput{ClientID: 1, Total: dec("1000")})
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 31), inv.DueDate)
	assert.Equal(t, "IDR", inv.Currency)
	assert.Equal(t, StatusSent, inv.Status)
	assert.True(t, inv.Subtotal.Equal(dec("1000")))
	assert.Equal(t, "INV-000001", inv.Number)

	draft, err := f.svc.IssueInvoice(context.Background(), IssueInvoiceInput{ClientID: 1, Total: dec("10"), Draft: true})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, draft.Status)
}

func TestIssueInvoiceInTxLeavesInvalidationToCaller(t *testing.T) {
	f := newFixture(t, day(2024, 3, 1))
	ctx := context.Background()

	inv, err := f.svc.IssueInvoiceInTx(ctx, IssueInvoiceInput{ClientID: 1, Total: dec("250")})
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.calls)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "invoice.issue", f.audit.logs[0].Action)

	_, err = f.svc.IssueInvoice(ctx, IssueInvoiceInput{ClientID: 1, Total: dec("250")})
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.calls)
	assert.NotEqual(t, "", inv.Number)
	assert.Equal(t, "IDR", f.svc.DefaultCurrency())
}

func TestIssueInvoiceValidation(t *testing.T) {
	f := newFixture(t, day(2024, 3, 1))
	ctx := context.Background()

	_, err := f.svc.IssueInvoice(ctx, IssueInvoiceInput{Total: dec("10")})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.IssueInvoice(ctx, IssueInvoiceInput{ClientID: 1, Total: dec("0")})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = f.svc.IssueInvoice(ctx, IssueInvoiceInput{ClientID: 1, Total: dec("110"), Subtotal: dec("100"), TaxAmount: dec("11")})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.IssueInvoice(ctx, IssueInvoiceInput{ClientID: 1, Total: dec("10"), IssueDate: day(2024, 3, 10), DueDate: day(2024, 3, 1)})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordPartialPaymentThenOverdue(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "1000", day(2024, 3, 31))

	payment, err := f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("400"), Method: "bank_transfer"})
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 10), payment.PaidAt)

	got, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.BalanceAmount.Equal(dec("600")))
	assert.Equal(t, StatusPartiallyPaid, got.Status)
	assert.Equal(t, int64(2), got.Version)

	f.now = day(2024, 4, 1)
	got, err = f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)

	assert.Equal(t, 1, f.metrics.events["payment:recorded"])
	assert.GreaterOrEqual(t, f.cache.calls, 2)
	require.NotEmpty(t, f.audit.logs)
	assert.Equal(t, "payment.record", f.audit.logs[len(f.audit.logs)-1].Action)
}

func TestRecordPaymentKeepsBalanceInvariant(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "1000", day(2024, 3, 31))

	for _, amount := range []string{"250", "250.25", "499.75"} {
		_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: dec(amount), Method: "cash"})
		require.NoError(t, err)

		got, err := f.svc.GetInvoice(ctx, inv.ID)
		require.NoError(t, err)
		payments, err := f.svc.ListPayments(ctx, inv.ID)
		require.NoError(t, err)
		sum := dec("0")
		for _, p := range payments {
			sum = sum.Add(p.Amount)
		}
		want := got.Total.Sub(sum)
		if want.IsNegative() {
			want = dec("0")
		}
		assert.True(t, got.BalanceAmount.Equal(want))
		assert.Equal(t, got.BalanceAmount.IsZero(), got.Status == StatusPaid)
	}
	got, _ := f.svc.GetInvoice(ctx, inv.ID)
	assert.Equal(t, StatusPaid, got.Status)
}

func TestRecordPaymentRejectsOverpaymentWithoutMutation(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "1000", day(2024, 3, 31))
	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("900"), Method: "cash"})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("200"), Method: "cash"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrOverpayment)
	var over *OverpaymentError
	require.ErrorAs(t, err, &over)
	assert.True(t, over.Excess.Equal(dec("100")))

	got, _ := f.svc.GetInvoice(ctx, inv.ID)
	assert.True(t, got.BalanceAmount.Equal(dec("100")))
	payments, _ := f.svc.ListPayments(ctx, inv.ID)
	assert.Len(t, payments, 1)
	assert.Equal(t, 1, f.metrics.events["payment:overpayment"])
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "1000", day(2024, 3, 31))

	for _, amount := range []string{"0", "-5"} {
		_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: dec(amount), Method: "cash"})
		assert.ErrorIs(t, err, shared.ErrInvalidAmount)
	}
	got, _ := f.svc.GetInvoice(ctx, inv.ID)
	assert.True(t, got.BalanceAmount.Equal(dec("1000")))
	assert.Equal(t, int64(1), got.Version)
	payments, _ := f.svc.ListPayments(ctx, inv.ID)
	assert.Empty(t, payments)
}

func TestRecordPaymentDetectsStaleVersion(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "1000", day(2024, 3, 31))

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("100"), Method: "cash", ExpectedVersion: 9})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)

	// A writer that lands between the read and the update.
	f.repo.beforeUpdate = func() {
		f.repo.mu.Lock()
		f.repo.invoices[inv.ID].Version++
		f.repo.mu.Unlock()
		f.repo.beforeUpdate = nil
	}
	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("100"), Method: "cash"})
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	payments, _ := f.svc.ListPayments(ctx, inv.ID)
	assert.Empty(t, payments, "payment insert rolled back")
	assert.Equal(t, 2, f.metrics.events["payment:conflict"])
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "1000", day(2024, 3, 31))
	input := RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("100"), Method: "cash", IdempotencyKey: "6f1c2b8e-6a0f-4a53-9d1e-3b7d2f6a9c10"}

	_, err := f.svc.RecordPayment(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, input)
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	payments, _ := f.svc.ListPayments(ctx, inv.ID)
	assert.Len(t, payments, 1)
}

func TestRecordPaymentOnDraftOrMissingInvoice(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	draft, err := f.svc.IssueInvoice(ctx, IssueInvoiceInput{ClientID: 1, Total: dec("10"), Draft: true})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: draft.ID, Amount: dec("5"), Method: "cash"})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: 999, Amount: dec("5"), Method: "cash"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSendInvoice(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	draft, err := f.svc.IssueInvoice(ctx, IssueInvoiceInput{ClientID: 1, Total: dec("10"), Draft: true})
	require.NoError(t, err)

	sent, err := f.svc.SendInvoice(ctx, draft.ID, draft.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	assert.NotNil(t, sent.SentAt)

	_, err = f.svc.SendInvoice(ctx, draft.ID, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestReconcileInvoiceSurfacesOverpaidData(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "100", day(2024, 3, 31))
	// Rows written outside the engine.
	f.repo.payments[inv.ID] = []Payment{pay(1, "80", day(2024, 3, 2)), pay(2, "50", day(2024, 3, 3))}

	rec, err := f.svc.ReconcileInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, shared.ErrOverpayment)
	assert.True(t, rec.Excess.Equal(dec("30")))
	assert.True(t, rec.BalanceAmount.IsZero())
	assert.Equal(t, StatusPaid, rec.Status)
	assert.Equal(t, 2, rec.PaymentCount)
}

func TestReconcileInvoice(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "100", day(2024, 3, 31))
	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("40"), Method: "cash"})
	require.NoError(t, err)

	rec, err := f.svc.ReconcileInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, rec.PaidAmount.Equal(dec("40")))
	assert.True(t, rec.BalanceAmount.Equal(dec("60")))
	assert.Equal(t, StatusPartiallyPaid, rec.Status)

	_, err = f.svc.ReconcileInvoice(ctx, 404)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestListInvoicesFiltersOnDerivedStatus(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	early := f.issue(t, "100", day(2024, 3, 15))
	f.issue(t, "100", day(2024, 4, 15))

	f.now = day(2024, 3, 20)
	overdue, err := f.svc.ListInvoices(ctx, ListFilter{Status: StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, early.ID, overdue[0].ID)

	_, err = f.svc.ListInvoices(ctx, ListFilter{Status: "bogus"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	limited, err := f.svc.ListInvoices(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSyncStatusesPersistsDrift(t *testing.T) {
	f := newFixture(t, day(2024, 3, 10))
	ctx := context.Background()
	inv := f.issue(t, "100", day(2024, 3, 15))

	changed, err := f.svc.SyncStatuses(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)

	f.now = day(2024, 3, 16)
	changed, err = f.svc.SyncStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, StatusOverdue, f.repo.invoices[inv.ID].Status)
}
