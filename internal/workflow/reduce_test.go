package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/model"
)

func TestReduce(t *testing.T) {
	paid := decimal.NewFromInt(40)

	tests := []struct {
		event Event
		name  string
		want  []cache.Patch
	}{
		{
			name:  "commit patches both sides of every pair",
			event: ReconciliationCommitted{Pairs: []model.ReconciliationPair{pair(1, 10, 100), pair(2, 10, 50)}},
			want: []cache.Patch{
				{Type: cache.Invoices, ID: 1, Invoice: model.InvoicePaymentApplied{Amount: decimal.NewFromInt(100)}},
				{Type: cache.Transactions, ID: 10, Transaction: model.TransactionAllocated{Amount: decimal.NewFromInt(100)}},
				{Type: cache.Invoices, ID: 2, Invoice: model.InvoicePaymentApplied{Amount: decimal.NewFromInt(50)}},
				{Type: cache.Transactions, ID: 10, Transaction: model.TransactionAllocated{Amount: decimal.NewFromInt(50)}},
			},
		},
		{
			name:  "undo reverts both sides",
			event: ReconciliationUndone{InvoiceID: 1, TransactionID: 10, Amount: decimal.NewFromInt(30)},
			want: []cache.Patch{
				{Type: cache.Invoices, ID: 1, Invoice: model.InvoicePaymentReverted{Amount: decimal.NewFromInt(30)}},
				{Type: cache.Transactions, ID: 10, Transaction: model.TransactionReleased{Amount: decimal.NewFromInt(30)}},
			},
		},
		{
			name:  "invoice status",
			event: InvoiceStatusUpdated{ID: 3, Status: model.PaymentPartiallyPaid, PaidAmount: &paid},
			want: []cache.Patch{
				{Type: cache.Invoices, ID: 3, Invoice: model.InvoiceStatusChanged{Status: model.PaymentPartiallyPaid, PaidAmount: &paid}},
			},
		},
		{
			name:  "transaction status",
			event: TransactionStatusUpdated{ID: 4, Status: model.ReconIgnored},
			want: []cache.Patch{
				{Type: cache.Transactions, ID: 4, Transaction: model.TransactionStatusChanged{Status: model.ReconIgnored}},
			},
		},
		{
			name:  "batch status",
			event: TransactionsBatchStatusUpdated{IDs: []int64{5, 6}, Status: model.ReconIgnored},
			want: []cache.Patch{
				{Type: cache.Transactions, ID: 5, Transaction: model.TransactionStatusChanged{Status: model.ReconIgnored}},
				{Type: cache.Transactions, ID: 6, Transaction: model.TransactionStatusChanged{Status: model.ReconIgnored}},
			},
		},
		{
			name:  "empty commit",
			event: ReconciliationCommitted{},
			want:  []cache.Patch{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.event))
		})
	}
}

func TestReduce_AppliedToCache(t *testing.T) {
	store := cache.NewStore()
	store.SetInvoices([]model.Invoice{testInvoice(1, 1000, 1)}, 1)
	store.SetTransactions([]model.BankTransaction{testTransaction(10, 1000)}, 1)

	applied := store.Apply(Reduce(ReconciliationCommitted{Pairs: []model.ReconciliationPair{pair(1, 10, 400)}}))
	require.Equal(t, 2, applied)

	inv, _ := store.Invoice(1)
	txn, _ := store.Transaction(10)
	assert.True(t, inv.OpenAmount.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, model.PaymentPartiallyPaid, inv.PaymentStatus)
	assert.True(t, txn.RemainingAmount.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, model.ReconPartial, txn.ReconciliationStatus)

	store.Apply(Reduce(ReconciliationUndone{InvoiceID: 1, TransactionID: 10, Amount: decimal.NewFromInt(400)}))

	inv, _ = store.Invoice(1)
	txn, _ = store.Transaction(10)
	assert.True(t, inv.OpenAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, model.ReconUnreconciled, txn.ReconciliationStatus)
}
