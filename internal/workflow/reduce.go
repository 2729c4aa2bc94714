// Package workflow drives remote operations and mirrors their confirmed
// results into the local cache and session.
package workflow

import (
	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// Event is a write the backend has confirmed.
type Event interface {
	event()
}

// ReconciliationCommitted reports pairs the backend linked.
type ReconciliationCommitted struct {
	Pairs []model.ReconciliationPair
}

// ReconciliationUndone reports a link the backend removed.
type ReconciliationUndone struct {
	Amount        decimal.Decimal
	InvoiceID     int64
	TransactionID int64
}

// InvoiceStatusUpdated reports an invoice payment status change.
type InvoiceStatusUpdated struct {
	PaidAmount *decimal.Decimal
	Status     model.PaymentStatus
	ID         int64
}

// TransactionStatusUpdated reports a transaction reconciliation status change.
type TransactionStatusUpdated struct {
	ReconciledAmount *decimal.Decimal
	Status           model.ReconciliationStatus
	ID               int64
}

// TransactionsBatchStatusUpdated reports a status applied to several
// transactions. The backend keeps each reconciled amount as it was.
type TransactionsBatchStatusUpdated struct {
	Status model.ReconciliationStatus
	IDs    []int64
}

func (ReconciliationCommitted) event()        {}
func (ReconciliationUndone) event()           {}
func (InvoiceStatusUpdated) event()           {}
func (TransactionStatusUpdated) event()       {}
func (TransactionsBatchStatusUpdated) event() {}

// Reduce translates a confirmed event into the cache patches that mirror it.
// It has no side effects.
func Reduce(e Event) []cache.Patch {
	switch e := e.(type) {
	case ReconciliationCommitted:
		patches := make([]cache.Patch, 0, 2*len(e.Pairs))
		for _, p := range e.Pairs {
			patches = append(patches,
				cache.Patch{Type: cache.Invoices, ID: p.InvoiceID, Invoice: model.InvoicePaymentApplied{Amount: p.Amount}},
				cache.Patch{Type: cache.Transactions, ID: p.TransactionID, Transaction: model.TransactionAllocated{Amount: p.Amount}},
			)
		}
		return patches

	case ReconciliationUndone:
		return []cache.Patch{
			{Type: cache.Invoices, ID: e.InvoiceID, Invoice: model.InvoicePaymentReverted{Amount: e.Amount}},
			{Type: cache.Transactions, ID: e.TransactionID, Transaction: model.TransactionReleased{Amount: e.Amount}},
		}

	case InvoiceStatusUpdated:
		return []cache.Patch{{
			Type:    cache.Invoices,
			ID:      e.ID,
			Invoice: model.InvoiceStatusChanged{Status: e.Status, PaidAmount: e.PaidAmount},
		}}

	case TransactionStatusUpdated:
		return []cache.Patch{{
			Type:        cache.Transactions,
			ID:          e.ID,
			Transaction: model.TransactionStatusChanged{Status: e.Status, ReconciledAmount: e.ReconciledAmount},
		}}

	case TransactionsBatchStatusUpdated:
		patches := make([]cache.Patch, 0, len(e.IDs))
		for _, id := range e.IDs {
			patches = append(patches, cache.Patch{
				Type:        cache.Transactions,
				ID:          id,
				Transaction: model.TransactionStatusChanged{Status: e.Status},
			})
		}
		return patches
	}
	return nil
}
