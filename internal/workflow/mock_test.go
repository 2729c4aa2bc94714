package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

type mockGateway struct {
	mock.Mock
}

var _ service.Gateway = (*mockGateway)(nil)

func (m *mockGateway) ListInvoices(ctx context.Context, filter model.InvoiceFilter) (*service.Page[model.Invoice], error) {
	args := m.Called(ctx, filter)
	page, _ := args.Get(0).(*service.Page[model.Invoice])
	return page, args.Error(1)
}

func (m *mockGateway) GetInvoice(ctx context.Context, id int64) (*model.Invoice, error) {
	args := m.Called(ctx, id)
	inv, _ := args.Get(0).(*model.Invoice)
	return inv, args.Error(1)
}

func (m *mockGateway) UpdateInvoicePaymentStatus(ctx context.Context, id int64, status model.PaymentStatus, paid *decimal.Decimal) (*service.InvoiceStatusResult, error) {
	args := m.Called(ctx, id, status, paid)
	res, _ := args.Get(0).(*service.InvoiceStatusResult)
	return res, args.Error(1)
}

func (m *mockGateway) InvoiceLinks(ctx context.Context, id int64) ([]model.ReconciliationLink, error) {
	args := m.Called(ctx, id)
	links, _ := args.Get(0).([]model.ReconciliationLink)
	return links, args.Error(1)
}

func (m *mockGateway) ListTransactions(ctx context.Context, filter model.TransactionFilter) (*service.Page[model.BankTransaction], error) {
	args := m.Called(ctx, filter)
	page, _ := args.Get(0).(*service.Page[model.BankTransaction])
	return page, args.Error(1)
}

func (m *mockGateway) GetTransaction(ctx context.Context, id int64) (*model.BankTransaction, error) {
	args := m.Called(ctx, id)
	txn, _ := args.Get(0).(*model.BankTransaction)
	return txn, args.Error(1)
}

func (m *mockGateway) UpdateTransactionStatus(ctx context.Context, id int64, status model.ReconciliationStatus, reconciled *decimal.Decimal) (*service.TransactionStatusResult, error) {
	args := m.Called(ctx, id, status, reconciled)
	res, _ := args.Get(0).(*service.TransactionStatusResult)
	return res, args.Error(1)
}

func (m *mockGateway) BatchUpdateTransactionStatus(ctx context.Context, ids []int64, status model.ReconciliationStatus) (*service.BatchStatusResult, error) {
	args := m.Called(ctx, ids, status)
	res, _ := args.Get(0).(*service.BatchStatusResult)
	return res, args.Error(1)
}

func (m *mockGateway) TransactionLinks(ctx context.Context, id int64) ([]model.ReconciliationLink, error) {
	args := m.Called(ctx, id)
	links, _ := args.Get(0).([]model.ReconciliationLink)
	return links, args.Error(1)
}

func (m *mockGateway) ListAnagraphics(ctx context.Context, filter model.AnagraphicsFilter) (*service.Page[model.Anagraphics], error) {
	args := m.Called(ctx, filter)
	page, _ := args.Get(0).(*service.Page[model.Anagraphics])
	return page, args.Error(1)
}

func (m *mockGateway) GetAnagraphics(ctx context.Context, id int64) (*model.Anagraphics, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*model.Anagraphics)
	return a, args.Error(1)
}

func (m *mockGateway) SmartSuggestions(ctx context.Context, transactionID int64, query service.SuggestionQuery) ([]model.MatchSuggestion, error) {
	args := m.Called(ctx, transactionID, query)
	list, _ := args.Get(0).([]model.MatchSuggestion)
	return list, args.Error(1)
}

func (m *mockGateway) MatchingOpportunities(ctx context.Context, query service.OpportunityQuery) ([]model.MatchSuggestion, error) {
	args := m.Called(ctx, query)
	list, _ := args.Get(0).([]model.MatchSuggestion)
	return list, args.Error(1)
}

func (m *mockGateway) ManualMatch(ctx context.Context, pair model.ReconciliationPair) error {
	args := m.Called(ctx, pair)
	return args.Error(0)
}

func (m *mockGateway) BatchReconcile(ctx context.Context, pairs []model.ReconciliationPair, opts service.MatchOptions) (*service.BatchReconcileResult, error) {
	args := m.Called(ctx, pairs, opts)
	res, _ := args.Get(0).(*service.BatchReconcileResult)
	return res, args.Error(1)
}

func (m *mockGateway) UndoReconciliation(ctx context.Context, invoiceID, transactionID int64) (*service.UndoResult, error) {
	args := m.Called(ctx, invoiceID, transactionID)
	res, _ := args.Get(0).(*service.UndoResult)
	return res, args.Error(1)
}

func (m *mockGateway) SuggestionFeedback(ctx context.Context, feedback service.SuggestionFeedback) error {
	args := m.Called(ctx, feedback)
	return args.Error(0)
}

type fakeClock struct {
	t  time.Time
	mu sync.Mutex
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type countingProgress struct {
	total int
	added int
	mu    sync.Mutex
}

func (p *countingProgress) Add(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added += n
	return nil
}

func testInvoice(id int64, total int64, day int) model.Invoice {
	inv := model.Invoice{
		ID:          id,
		DocNumber:   "FT-" + decimal.NewFromInt(id).String(),
		DocDate:     time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Type:        model.InvoiceActive,
		TotalAmount: decimal.NewFromInt(total),
	}
	inv.Normalize(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return inv
}

func testTransaction(id int64, amount int64) model.BankTransaction {
	txn := model.BankTransaction{
		ID:              id,
		TransactionDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Description:     "BONIFICO",
		Amount:          decimal.NewFromInt(amount),
	}
	txn.Normalize()
	return txn
}

func pairsMatching(want ...model.ReconciliationPair) any {
	return mock.MatchedBy(func(got []model.ReconciliationPair) bool {
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i].InvoiceID != want[i].InvoiceID || got[i].TransactionID != want[i].TransactionID || !got[i].Amount.Equal(want[i].Amount) {
				return false
			}
		}
		return true
	})
}

func pair(invoiceID, transactionID, amount int64) model.ReconciliationPair {
	return model.ReconciliationPair{InvoiceID: invoiceID, TransactionID: transactionID, Amount: decimal.NewFromInt(amount)}
}
