package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceUpdate is a closed set of changes that can be applied to a cached
// invoice. applyInvoice reports whether the status must be re-derived from the
// amounts afterwards.
type InvoiceUpdate interface {
	applyInvoice(inv *Invoice) (derive bool)
}

// InvoiceStatusChanged mirrors a status the backend stored. The status is kept
// verbatim. With no paid amount, the amount follows the status the same way
// the backend does: fully paid settles the invoice, open resets it, anything
// else keeps it.
type InvoiceStatusChanged struct {
	PaidAmount *decimal.Decimal
	Status     PaymentStatus
}

func (u InvoiceStatusChanged) applyInvoice(inv *Invoice) bool {
	switch {
	case u.PaidAmount != nil:
		inv.PaidAmount = *u.PaidAmount
	case u.Status == PaymentFullyPaid:
		inv.PaidAmount = inv.TotalAmount
	case u.Status == PaymentOpen:
		inv.PaidAmount = decimal.Zero
	}
	inv.PaymentStatus = u.Status
	return false
}

// InvoicePaymentApplied records an additional amount paid against the invoice.
type InvoicePaymentApplied struct {
	Amount decimal.Decimal
}

func (u InvoicePaymentApplied) applyInvoice(inv *Invoice) bool {
	inv.PaidAmount = inv.PaidAmount.Add(u.Amount)
	inv.PaymentStatus = ""
	return true
}

// InvoicePaymentReverted removes a previously applied payment.
type InvoicePaymentReverted struct {
	Amount decimal.Decimal
}

func (u InvoicePaymentReverted) applyInvoice(inv *Invoice) bool {
	inv.PaidAmount = inv.PaidAmount.Sub(u.Amount)
	inv.PaymentStatus = ""
	return true
}

// ApplyInvoiceUpdate applies u to inv and re-derives the dependent fields.
func ApplyInvoiceUpdate(inv *Invoice, u InvoiceUpdate, now time.Time) {
	if u.applyInvoice(inv) {
		inv.Normalize(now)
		return
	}
	inv.settleAmounts()
}

// TransactionUpdate is a closed set of changes that can be applied to a cached
// transaction. applyTransaction reports whether the status must be re-derived
// from the amounts afterwards.
type TransactionUpdate interface {
	applyTransaction(txn *BankTransaction) (derive bool)
}

// TransactionStatusChanged mirrors a status the backend stored. The status is
// kept verbatim; a nil amount keeps the current reconciled amount, as the
// backend does.
type TransactionStatusChanged struct {
	ReconciledAmount *decimal.Decimal
	Status           ReconciliationStatus
}

func (u TransactionStatusChanged) applyTransaction(txn *BankTransaction) bool {
	if u.ReconciledAmount != nil {
		txn.ReconciledAmount = *u.ReconciledAmount
	}
	txn.ReconciliationStatus = u.Status
	return false
}

// TransactionAllocated records an amount of the transaction matched to invoices.
type TransactionAllocated struct {
	Amount decimal.Decimal
}

func (u TransactionAllocated) applyTransaction(txn *BankTransaction) bool {
	txn.ReconciledAmount = txn.ReconciledAmount.Add(u.Amount)
	txn.ReconciliationStatus = ReconUnreconciled
	return true
}

// TransactionReleased removes a previously allocated amount.
type TransactionReleased struct {
	Amount decimal.Decimal
}

func (u TransactionReleased) applyTransaction(txn *BankTransaction) bool {
	txn.ReconciledAmount = txn.ReconciledAmount.Sub(u.Amount)
	txn.ReconciliationStatus = ReconUnreconciled
	return true
}

// ApplyTransactionUpdate applies u to txn and re-derives the dependent fields.
func ApplyTransactionUpdate(txn *BankTransaction, u TransactionUpdate) {
	if u.applyTransaction(txn) {
		txn.Normalize()
		return
	}
	txn.settleAmounts()
}

// AnagraphicsUpdate is a closed set of changes that can be applied to a cached counterparty.
type AnagraphicsUpdate interface {
	applyAnagraphics(a *Anagraphics)
}

// AnagraphicsRenamed changes the display denomination.
type AnagraphicsRenamed struct {
	Denomination string
}

func (u AnagraphicsRenamed) applyAnagraphics(a *Anagraphics) {
	a.Denomination = u.Denomination
}

// AnagraphicsScoreChanged replaces the reliability score.
type AnagraphicsScoreChanged struct {
	Score float64
}

func (u AnagraphicsScoreChanged) applyAnagraphics(a *Anagraphics) {
	a.Score = u.Score
}

// ApplyAnagraphicsUpdate applies u to a.
func ApplyAnagraphicsUpdate(a *Anagraphics, u AnagraphicsUpdate) {
	u.applyAnagraphics(a)
}
