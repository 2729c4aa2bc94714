package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestInvoiceNormalize(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -10)
	future := now.AddDate(0, 0, 10)

	tests := []struct {
		due        *time.Time
		name       string
		total      string
		paid       string
		status     PaymentStatus
		wantOpen   string
		wantStatus PaymentStatus
	}{
		{name: "unpaid not due", total: "100", paid: "0", due: &future, wantOpen: "100", wantStatus: PaymentOpen},
		{name: "unpaid past due", total: "100", paid: "0", due: &past, wantOpen: "100", wantStatus: PaymentOverdue},
		{name: "partially paid", total: "100", paid: "40", wantOpen: "60", wantStatus: PaymentPartiallyPaid},
		{name: "fully paid", total: "100", paid: "100", wantOpen: "0", wantStatus: PaymentFullyPaid},
		{name: "overpaid is clamped", total: "100", paid: "150", wantOpen: "0", wantStatus: PaymentFullyPaid},
		{name: "negative paid is clamped", total: "100", paid: "-5", wantOpen: "100", wantStatus: PaymentOpen},
		{name: "insolvent kept", total: "100", paid: "0", status: PaymentInsolvent, wantOpen: "100", wantStatus: PaymentInsolvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := Invoice{TotalAmount: dec(tt.total), PaidAmount: dec(tt.paid), DueDate: tt.due, PaymentStatus: tt.status}
			inv.Normalize(now)
			assert.True(t, dec(tt.wantOpen).Equal(inv.OpenAmount), "open amount %s", inv.OpenAmount)
			assert.Equal(t, tt.wantStatus, inv.PaymentStatus)
			assert.False(t, inv.OpenAmount.IsNegative())
		})
	}
}

func TestTransactionNormalize(t *testing.T) {
	tests := []struct {
		name          string
		amount        string
		reconciled    string
		status        ReconciliationStatus
		wantRemaining string
		wantStatus    ReconciliationStatus
	}{
		{name: "income untouched", amount: "250", reconciled: "0", wantRemaining: "250", wantStatus: ReconUnreconciled},
		{name: "expense partial", amount: "-250", reconciled: "100", wantRemaining: "150", wantStatus: ReconPartial},
		{name: "expense full", amount: "-250", reconciled: "250", wantRemaining: "0", wantStatus: ReconFull},
		{name: "ignored stays ignored", amount: "80", reconciled: "0", status: ReconIgnored, wantRemaining: "80", wantStatus: ReconIgnored},
		{name: "excess keeps over-allocation", amount: "80", reconciled: "90", status: ReconExcess, wantRemaining: "0", wantStatus: ReconExcess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := BankTransaction{Amount: dec(tt.amount), ReconciledAmount: dec(tt.reconciled), ReconciliationStatus: tt.status}
			txn.Normalize()
			assert.True(t, dec(tt.wantRemaining).Equal(txn.RemainingAmount), "remaining %s", txn.RemainingAmount)
			assert.Equal(t, tt.wantStatus, txn.ReconciliationStatus)
		})
	}
}

func TestApplyInvoiceUpdate(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("payment applied settles invoice", func(t *testing.T) {
		inv := Invoice{ID: 1, TotalAmount: dec("1000"), PaidAmount: dec("0")}
		inv.Normalize(now)

		ApplyInvoiceUpdate(&inv, InvoicePaymentApplied{Amount: dec("1000")}, now)

		assert.True(t, inv.OpenAmount.IsZero())
		assert.Equal(t, PaymentFullyPaid, inv.PaymentStatus)
	})

	t.Run("payment reverted reopens invoice", func(t *testing.T) {
		inv := Invoice{ID: 1, TotalAmount: dec("1000"), PaidAmount: dec("1000")}
		inv.Normalize(now)

		ApplyInvoiceUpdate(&inv, InvoicePaymentReverted{Amount: dec("400")}, now)

		assert.True(t, dec("400").Equal(inv.OpenAmount))
		assert.Equal(t, PaymentPartiallyPaid, inv.PaymentStatus)
	})

	t.Run("status change without amount follows status", func(t *testing.T) {
		inv := Invoice{ID: 1, TotalAmount: dec("300"), PaidAmount: dec("100")}

		ApplyInvoiceUpdate(&inv, InvoiceStatusChanged{Status: PaymentFullyPaid}, now)
		assert.True(t, dec("300").Equal(inv.PaidAmount))
		assert.Equal(t, PaymentFullyPaid, inv.PaymentStatus)

		ApplyInvoiceUpdate(&inv, InvoiceStatusChanged{Status: PaymentOpen}, now)
		assert.True(t, inv.PaidAmount.IsZero())
		assert.Equal(t, PaymentOpen, inv.PaymentStatus)
	})

	t.Run("status change with explicit amount", func(t *testing.T) {
		inv := Invoice{ID: 1, TotalAmount: dec("300")}

		ApplyInvoiceUpdate(&inv, InvoiceStatusChanged{Status: PaymentPartiallyPaid, PaidAmount: decPtr("120")}, now)

		assert.True(t, dec("180").Equal(inv.OpenAmount))
		assert.Equal(t, PaymentPartiallyPaid, inv.PaymentStatus)
	})
}

func TestStatusChangesKeepStoredStatus(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("overdue without due date", func(t *testing.T) {
		inv := Invoice{ID: 1, TotalAmount: dec("100")}
		inv.Normalize(now)

		ApplyInvoiceUpdate(&inv, InvoiceStatusChanged{Status: PaymentOverdue}, now)

		assert.Equal(t, PaymentOverdue, inv.PaymentStatus)
		assert.True(t, dec("100").Equal(inv.OpenAmount))
	})

	t.Run("fully paid with explicit partial amount", func(t *testing.T) {
		inv := Invoice{ID: 1, TotalAmount: dec("100")}

		ApplyInvoiceUpdate(&inv, InvoiceStatusChanged{Status: PaymentFullyPaid, PaidAmount: decPtr("40")}, now)

		assert.Equal(t, PaymentFullyPaid, inv.PaymentStatus)
		assert.True(t, dec("60").Equal(inv.OpenAmount))
	})

	t.Run("transaction full without amount keeps reconciled", func(t *testing.T) {
		txn := BankTransaction{ID: 1, Amount: dec("1000")}
		txn.Normalize()

		ApplyTransactionUpdate(&txn, TransactionStatusChanged{Status: ReconFull})

		assert.Equal(t, ReconFull, txn.ReconciliationStatus)
		assert.True(t, txn.ReconciledAmount.IsZero())
		assert.True(t, dec("1000").Equal(txn.RemainingAmount))
	})

	t.Run("transaction partial keeps earlier allocation", func(t *testing.T) {
		txn := BankTransaction{ID: 1, Amount: dec("-300"), ReconciledAmount: dec("300")}
		txn.Normalize()

		ApplyTransactionUpdate(&txn, TransactionStatusChanged{Status: ReconPartial})

		assert.Equal(t, ReconPartial, txn.ReconciliationStatus)
		assert.True(t, txn.RemainingAmount.IsZero())
	})
}

func TestApplyTransactionUpdate(t *testing.T) {
	txn := BankTransaction{ID: 7, Amount: dec("-500")}
	txn.Normalize()

	ApplyTransactionUpdate(&txn, TransactionAllocated{Amount: dec("200")})
	assert.Equal(t, ReconPartial, txn.ReconciliationStatus)
	assert.True(t, dec("300").Equal(txn.RemainingAmount))

	ApplyTransactionUpdate(&txn, TransactionAllocated{Amount: dec("300")})
	assert.Equal(t, ReconFull, txn.ReconciliationStatus)
	assert.True(t, txn.RemainingAmount.IsZero())

	ApplyTransactionUpdate(&txn, TransactionReleased{Amount: dec("500")})
	assert.Equal(t, ReconUnreconciled, txn.ReconciliationStatus)
	assert.True(t, dec("500").Equal(txn.RemainingAmount))

	ApplyTransactionUpdate(&txn, TransactionStatusChanged{Status: ReconIgnored})
	assert.Equal(t, ReconIgnored, txn.ReconciliationStatus)
}

func TestMatchSuggestionKey(t *testing.T) {
	s := MatchSuggestion{InvoiceIDs: []int64{3, 12}, TransactionIDs: []int64{40}}
	assert.Equal(t, "3,12|40", s.Key())
}
