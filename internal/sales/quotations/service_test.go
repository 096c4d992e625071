package quotations

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/ar"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

type memoryQuotationRepo struct {
	mu     sync.Mutex
	rows   map[int64]*Quotation
	nextID int64
}

func newMemoryQuotationRepo() *memoryQuotationRepo {
	return &memoryQuotationRepo{rows: map[int64]*Quotation{}}
}

func (r *memoryQuotationRepo) NextNumber(ctx context.Context) (string, error) {
	return fmt.Sprintf("QUO-%04d", r.nextID+1), nil
}

func (r *memoryQuotationRepo) Create(ctx context.Context, q Quotation) (*Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	q.ID = r.nextID
	q.Version = 1
	for i := range q.Lines {
		q.Lines[i].QuotationID = q.ID
		q.Lines[i].ID = int64(i + 1)
	}
	r.rows[q.ID] = &q
	cp := q
	return &cp, nil
}

func (r *memoryQuotationRepo) Get(ctx context.Context, id int64) (*Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	cp := *q
	return &cp, nil
}

func (r *memoryQuotationRepo) List(ctx context.Context, clientID int64) ([]Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Quotation
	for id := int64(1); id <= r.nextID; id++ {
		if q, ok := r.rows[id]; ok && (clientID == 0 || q.ClientID == clientID) {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (r *memoryQuotationRepo) UpdateStatus(ctx context.Context, id, version int64, status Status, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.rows[id]
	if q.Version != version {
		return 0, shared.ErrConcurrentModification
	}
	q.Status = status
	q.Version++
	return q.Version, nil
}

func (r *memoryQuotationRepo) LinkInvoice(ctx context.Context, id, version, invoiceID int64, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.rows[id]
	if q.InvoiceID != nil {
		return 0, shared.ErrAlreadyConverted
	}
	if q.Version != version {
		return 0, shared.ErrConcurrentModification
	}
	q.InvoiceID = &invoiceID
	q.ConvertedAt = &at
	q.Version++
	return q.Version, nil
}

func (r *memoryQuotationRepo) ListSentExpiringBefore(ctx context.Context, day time.Time) ([]Quotation, error) {
	all, _ := r.List(ctx, 0)
	var out []Quotation
	for _, q := range all {
		if q.Status == StatusSent && q.ExpiryDate.Before(day) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *memoryQuotationRepo) MarkExpired(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[id].Status != StatusSent {
		return false, nil
	}
	r.rows[id].Status = StatusExpired
	return true, nil
}

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// trackedTx marks the window in which the closure runs; commit happens when it returns.
type trackedTx struct{ open *bool }

func (t trackedTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	*t.open = true
	defer func() { *t.open = false }()
	return fn(ctx)
}

// phaseInvalidator records whether each invalidation happened before or after commit.
type phaseInvalidator struct {
	open         *bool
	beforeCommit int
	afterCommit  int
}

func (p *phaseInvalidator) Invalidate(ctx context.Context) error {
	if *p.open {
		p.beforeCommit++
	} else {
		p.afterCommit++
	}
	return nil
}

type fakeIssuer struct {
	issued   []ar.IssueInvoiceInput
	err      error
	currency string
}

func (f *fakeIssuer) DefaultCurrency() string {
	if f.currency == "" {
		return "IDR"
	}
	return f.currency
}

func (f *fakeIssuer) IssueInvoiceInTx(ctx context.Context, input ar.IssueInvoiceInput) (*ar.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.issued = append(f.issued, input)
	return &ar.Invoice{
		ID:          int64(100 + len(f.issued)),
		Number:      fmt.Sprintf("INV-%d", len(f.issued)),
		ClientID:    input.ClientID,
		QuotationID: input.QuotationID,
		Total:       input.Total,
		Sent:        !input.Draft,
	}, nil
}

type quoteFixture struct {
	svc    *Service
	repo   *memoryQuotationRepo
	issuer *fakeIssuer
	now    time.Time
}

func newQuoteFixture(t *testing.T) *quoteFixture {
	t.Helper()
	f := &quoteFixture{repo: newMemoryQuotationRepo(), issuer: &fakeIssuer{}, now: date(2024, 3, 1)}
	f.svc = NewService(f.repo, inlineTx{}, f.issuer, nil)
	f.svc.WithClock(shared.ClockFunc(func() time.Time { return f.now }))
	return f
}

func (f *quoteFixture) create(t *testing.T) *Quotation {
	t.Helper()
	q, err := f.svc.Create(context.Background(), CreateInput{
		ClientID:   4,
		IssueDate:  date(2024, 3, 1),
		ExpiryDate: date(2024, 3, 31),
		Lines: []LineInput{
			{Description: "Design", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(1000), TaxPercent: decimal.NewFromInt(11)},
			{Description: "Hosting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(500), DiscountPercent: decimal.NewFromInt(10)},
		},
	})
	require.NoError(t, err)
	return q
}

func (f *quoteFixture) approve(t *testing.T, id int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Transition(ctx, id, ActionSend, 0)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, id, ActionApprove, 0)
	require.NoError(t, err)
}

func TestCreateComputesHeaderFromLines(t *testing.T) {
	f := newQuoteFixture(t)
	q := f.create(t)
	assert.Equal(t, "2450", q.Subtotal.String())
	assert.Equal(t, "220", q.TaxAmount.String())
	assert.Equal(t, "2670", q.Total.String())
	assert.Equal(t, StatusDraft, q.Status)
	assert.Equal(t, "QUO-0001", q.Number)
	assert.Len(t, q.Lines, 2)
}

func TestCreateValidation(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, CreateInput{ClientID: 1, ExpiryDate: date(2024, 3, 31)})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{ClientID: 1, IssueDate: date(2024, 3, 2), ExpiryDate: date(2024, 3, 1),
		Lines: []LineInput{{Description: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1)}}})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{ClientID: 1, ExpiryDate: date(2024, 3, 31),
		Lines: []LineInput{{Description: "free", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.Zero}}})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestTransitionLifecycle(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	q := f.create(t)

	sent, err := f.svc.Transition(ctx, q.ID, ActionSend, q.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	_, err = f.svc.Transition(ctx, q.ID, ActionApprove, q.Version)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification, "stale version")

	rejected, err := f.svc.Transition(ctx, q.ID, ActionReject, sent.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)

	_, err = f.svc.Transition(ctx, q.ID, ActionApprove, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.Transition(ctx, 999, ActionSend, 0)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransitionAfterExpiry(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	q := f.create(t)
	_, err := f.svc.Transition(ctx, q.ID, ActionSend, 0)
	require.NoError(t, err)

	f.now = date(2024, 4, 1)
	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	_, err = f.svc.Transition(ctx, q.ID, ActionApprove, 0)
	assert.ErrorIs(t, err, shared.ErrExpired)
}

func TestConvertToInvoiceOnce(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	q := f.create(t)
	f.approve(t, q.ID)

	inv, err := f.svc.ConvertToInvoice(ctx, q.ID, ConvertInput{})
	require.NoError(t, err)
	require.Len(t, f.issuer.issued, 1)
	issued := f.issuer.issued[0]
	assert.Equal(t, int64(4), issued.ClientID)
	assert.True(t, issued.Total.Equal(q.Total))
	assert.True(t, issued.Subtotal.Equal(q.Subtotal))
	assert.True(t, issued.TaxAmount.Equal(q.TaxAmount))
	require.NotNil(t, issued.QuotationID)
	assert.Equal(t, q.ID, *issued.QuotationID)
	assert.Equal(t, date(2024, 3, 1), issued.IssueDate)
	assert.False(t, issued.Draft)

	stored, _ := f.repo.Get(ctx, q.ID)
	require.NotNil(t, stored.InvoiceID)
	assert.Equal(t, inv.ID, *stored.InvoiceID)

	_, err = f.svc.ConvertToInvoice(ctx, q.ID, ConvertInput{})
	assert.ErrorIs(t, err, shared.ErrAlreadyConverted)
	assert.Len(t, f.issuer.issued, 1, "no second invoice")
}

func TestConvertInvalidatesReportsAfterCommit(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	q := f.create(t)
	f.approve(t, q.ID)

	open := false
	reports := &phaseInvalidator{open: &open}
	svc := NewService(f.repo, trackedTx{open: &open}, f.issuer, nil)
	svc.WithClock(shared.FixedClock(f.now))
	svc.SetReportInvalidator(reports)

	_, err := svc.ConvertToInvoice(ctx, q.ID, ConvertInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, reports.beforeCommit)
	assert.Equal(t, 1, reports.afterCommit)

	_, err = svc.ConvertToInvoice(ctx, q.ID, ConvertInput{})
	assert.ErrorIs(t, err, shared.ErrAlreadyConverted)
	assert.Equal(t, 1, reports.afterCommit, "failed conversion leaves the cache alone")
}

func TestCreateUsesLedgerDefaultCurrency(t *testing.T) {
	f := newQuoteFixture(t)
	f.issuer.currency = "usd"
	q := f.create(t)
	assert.Equal(t, "USD", q.Currency)
}

func TestConvertRequiresApproval(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	q := f.create(t)

	_, err := f.svc.ConvertToInvoice(ctx, q.ID, ConvertInput{})
	assert.ErrorIs(t, err, shared.ErrNotApproved)

	_, err = f.svc.Transition(ctx, q.ID, ActionSend, 0)
	require.NoError(t, err)
	_, err = f.svc.ConvertToInvoice(ctx, q.ID, ConvertInput{})
	assert.ErrorIs(t, err, shared.ErrNotApproved)
	assert.Empty(t, f.issuer.issued)
}

func TestConvertPropagatesIssuerFailure(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	q := f.create(t)
	f.approve(t, q.ID)
	f.issuer.err = fmt.Errorf("%w: total", shared.ErrInvalidAmount)

	_, err := f.svc.ConvertToInvoice(ctx, q.ID, ConvertInput{Draft: true})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)
	stored, _ := f.repo.Get(ctx, q.ID)
	assert.Nil(t, stored.InvoiceID)
}

func TestExpireStalePersistsDerivedStatus(t *testing.T) {
	f := newQuoteFixture(t)
	ctx := context.Background()
	stale := f.create(t)
	_, err := f.svc.Transition(ctx, stale.ID, ActionSend, 0)
	require.NoError(t, err)
	draft := f.create(t)

	f.now = date(2024, 4, 2)
	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusExpired, f.repo.rows[stale.ID].Status)
	assert.Equal(t, StatusDraft, f.repo.rows[draft.ID].Status)

	list, err := f.svc.List(ctx, ListFilter{Status: StatusExpired})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
