package session

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// Totals summarizes the current selection.
type Totals struct {
	InvoicesOpen          decimal.Decimal
	TransactionsRemaining decimal.Decimal
	Difference            decimal.Decimal
	Invoices              int
	Transactions          int
}

// Balanced reports whether the selected amounts cancel out exactly.
func (t Totals) Balanced() bool { return t.Difference.IsZero() }

// Totals returns the open invoice amount against the unreconciled transaction
// amount for the current selection.
func (s *Store) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Totals
	for _, inv := range s.selectedInvoices {
		t.InvoicesOpen = t.InvoicesOpen.Add(inv.OpenAmount)
	}
	for _, txn := range s.selectedTransactions {
		t.TransactionsRemaining = t.TransactionsRemaining.Add(txn.RemainingAmount)
	}
	t.Difference = t.TransactionsRemaining.Sub(t.InvoicesOpen)
	t.Invoices = len(s.selectedInvoices)
	t.Transactions = len(s.selectedTransactions)
	return t
}

// Allocate splits the selected transactions across the selected invoices,
// oldest invoice first, and returns one pair per (invoice, transaction)
// allocation. Entities with nothing left to allocate are skipped.
func (s *Store) Allocate() []model.ReconciliationPair {
	s.mu.Lock()
	invoices := slices.Clone(s.selectedInvoices)
	transactions := slices.Clone(s.selectedTransactions)
	s.mu.Unlock()

	return Allocate(invoices, transactions)
}

// Allocate pairs invoices with transactions greedily. Invoices are settled in
// document date order; transactions are consumed in the order given.
func Allocate(invoices []model.Invoice, transactions []model.BankTransaction) []model.ReconciliationPair {
	slices.SortStableFunc(invoices, func(a, b model.Invoice) int {
		return a.DocDate.Compare(b.DocDate)
	})

	open := make([]decimal.Decimal, len(invoices))
	for i, inv := range invoices {
		open[i] = inv.OpenAmount
	}

	var pairs []model.ReconciliationPair
	i := 0
	for _, txn := range transactions {
		left := txn.RemainingAmount
		for left.IsPositive() && i < len(invoices) {
			if !open[i].IsPositive() {
				i++
				continue
			}
			amount := decimal.Min(left, open[i])
			pairs = append(pairs, model.ReconciliationPair{
				InvoiceID:     invoices[i].ID,
				TransactionID: txn.ID,
				Amount:        amount,
			})
			left = left.Sub(amount)
			open[i] = open[i].Sub(amount)
		}
	}
	return pairs
}
