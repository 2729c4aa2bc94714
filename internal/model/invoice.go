// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType distinguishes issued (receivable) from received (payable) invoices.
type InvoiceType string

// Invoice type constants, using the backend's wire values.
const (
	InvoiceActive  InvoiceType = "Attiva"
	InvoicePassive InvoiceType = "Passiva"
)

// PaymentStatus is the settlement state of an invoice.
type PaymentStatus string

// Payment status constants, using the backend's wire values.
const (
	PaymentOpen          PaymentStatus = "Aperta"
	PaymentPartiallyPaid PaymentStatus = "Pagata Parz."
	PaymentFullyPaid     PaymentStatus = "Pagata Tot."
	PaymentOverdue       PaymentStatus = "Scaduta"
	PaymentInsolvent     PaymentStatus = "Insoluta"
	PaymentReconciled    PaymentStatus = "Riconciliata"
)

// Valid reports whether s is a payment status the backend understands.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentOpen, PaymentPartiallyPaid, PaymentFullyPaid, PaymentOverdue, PaymentInsolvent, PaymentReconciled:
		return true
	}
	return false
}

// Invoice is the locally cached view of a backend invoice.
type Invoice struct {
	DocDate          time.Time       `json:"doc_date"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	DocNumber        string          `json:"doc_number"`
	Type             InvoiceType     `json:"type"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	OpenAmount       decimal.Decimal `json:"open_amount"`
	ID               int64           `json:"id"`
	AnagraphicsID    int64           `json:"anagraphics_id"`
}

// EntityID returns the invoice identifier.
func (i Invoice) EntityID() int64 { return i.ID }

// Normalize restores open_amount = total - paid and derives the payment status
// from the amounts. A paid amount outside [0, total] is clamped. Statuses the
// amounts cannot express (insolvent, reconciled) are kept as received.
func (i *Invoice) Normalize(now time.Time) {
	i.settleAmounts()

	if i.PaymentStatus == PaymentInsolvent || i.PaymentStatus == PaymentReconciled {
		return
	}

	switch {
	case i.OpenAmount.IsZero():
		i.PaymentStatus = PaymentFullyPaid
	case i.PaidAmount.IsPositive():
		i.PaymentStatus = PaymentPartiallyPaid
	case i.IsPastDue(now):
		i.PaymentStatus = PaymentOverdue
	default:
		i.PaymentStatus = PaymentOpen
	}
}

// settleAmounts clamps the paid amount to [0, total] and recomputes the open
// amount without touching the status.
func (i *Invoice) settleAmounts() {
	if i.PaidAmount.IsNegative() {
		i.PaidAmount = decimal.Zero
	}
	if i.PaidAmount.GreaterThan(i.TotalAmount) {
		i.PaidAmount = i.TotalAmount
	}
	i.OpenAmount = i.TotalAmount.Sub(i.PaidAmount)
}

// IsPastDue reports whether the due date lies before now's calendar day.
func (i *Invoice) IsPastDue(now time.Time) bool {
	if i.DueDate == nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return i.DueDate.Before(today)
}

// InvoiceFilter selects invoices on the backend list endpoint.
type InvoiceFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	MinAmount     *decimal.Decimal
	MaxAmount     *decimal.Decimal
	Type          InvoiceType
	Status        PaymentStatus
	Search        string
	AnagraphicsID int64
	Page          int
	Size          int
}
