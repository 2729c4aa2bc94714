package cli

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

func TestStatusLabelsKeepTheirText(t *testing.T) {
	for _, s := range []model.PaymentStatus{
		model.PaymentOpen, model.PaymentPartiallyPaid, model.PaymentFullyPaid,
		model.PaymentOverdue, model.PaymentInsolvent, model.PaymentReconciled,
	} {
		assert.Equal(t, lipgloss.Width(string(s)), lipgloss.Width(PaymentStatus(s)), s)
		assert.Contains(t, PaymentStatus(s), string(s))
	}
	for _, s := range []model.ReconciliationStatus{
		model.ReconUnreconciled, model.ReconPartial, model.ReconFull,
		model.ReconExcess, model.ReconIgnored,
	} {
		assert.Equal(t, lipgloss.Width(string(s)), lipgloss.Width(ReconStatus(s)), s)
		assert.Contains(t, ReconStatus(s), string(s))
	}
	assert.Equal(t, string(model.PaymentOpen), PaymentStatus(model.PaymentOpen))
}
