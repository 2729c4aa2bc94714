package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationStatus is the matching state of a bank transaction.
type ReconciliationStatus string

// Reconciliation status constants, using the backend's wire values.
const (
	ReconUnreconciled ReconciliationStatus = "Da Riconciliare"
	ReconPartial      ReconciliationStatus = "Riconciliato Parz."
	ReconFull         ReconciliationStatus = "Riconciliato Tot."
	ReconExcess       ReconciliationStatus = "Riconciliato Eccesso"
	ReconIgnored      ReconciliationStatus = "Ignorato"
)

// Valid reports whether s is a reconciliation status the backend understands.
func (s ReconciliationStatus) Valid() bool {
	switch s {
	case ReconUnreconciled, ReconPartial, ReconFull, ReconExcess, ReconIgnored:
		return true
	}
	return false
}

// BankTransaction is the locally cached view of a bank movement.
// Amount is signed: positive for income, negative for expense.
type BankTransaction struct {
	TransactionDate      time.Time            `json:"transaction_date"`
	ValueDate            *time.Time           `json:"value_date,omitempty"`
	Description          string               `json:"description"`
	UniqueHash           string               `json:"unique_hash,omitempty"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status"`
	Amount               decimal.Decimal      `json:"amount"`
	ReconciledAmount     decimal.Decimal      `json:"reconciled_amount"`
	RemainingAmount      decimal.Decimal      `json:"remaining_amount"`
	ID                   int64                `json:"id"`
}

// EntityID returns the transaction identifier.
func (t BankTransaction) EntityID() int64 { return t.ID }

// IsIncome reports whether the movement is an inflow.
func (t *BankTransaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

// Normalize restores remaining = |amount| - reconciled and makes the status
// agree with it. An ignored transaction stays ignored; one reconciled in
// excess keeps its over-allocation and has nothing remaining.
func (t *BankTransaction) Normalize() {
	abs := t.Amount.Abs()
	if t.ReconciledAmount.IsNegative() {
		t.ReconciledAmount = decimal.Zero
	}
	if t.ReconciliationStatus == ReconExcess && t.ReconciledAmount.GreaterThanOrEqual(abs) {
		t.RemainingAmount = decimal.Zero
		return
	}
	if t.ReconciledAmount.GreaterThan(abs) {
		t.ReconciledAmount = abs
	}
	t.RemainingAmount = abs.Sub(t.ReconciledAmount)

	if t.ReconciliationStatus == ReconIgnored {
		return
	}

	switch {
	case t.RemainingAmount.IsZero() && abs.IsPositive():
		t.ReconciliationStatus = ReconFull
	case t.ReconciledAmount.IsZero():
		t.ReconciliationStatus = ReconUnreconciled
	default:
		t.ReconciliationStatus = ReconPartial
	}
}

// settleAmounts recomputes the remaining amount from the reconciled amount
// without touching the status.
func (t *BankTransaction) settleAmounts() {
	if t.ReconciledAmount.IsNegative() {
		t.ReconciledAmount = decimal.Zero
	}
	t.RemainingAmount = decimal.Max(t.Amount.Abs().Sub(t.ReconciledAmount), decimal.Zero)
}

// GenerateHash creates the duplicate-detection hash the backend expects for imports.
func (t *BankTransaction) GenerateHash(accountID string) string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.TransactionDate.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Description,
		accountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// TransactionFilter selects transactions on the backend list endpoint.
type TransactionFilter struct {
	StartDate       *time.Time
	EndDate         *time.Time
	MinAmount       *decimal.Decimal
	MaxAmount       *decimal.Decimal
	Status          ReconciliationStatus
	Search          string
	Page            int
	Size            int
	HidePOS         bool
	HideCommissions bool
}
