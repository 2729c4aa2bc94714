// Package cli renders the recon command's terminal output.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// Palette. Settled items are teal, partially settled amber, open items plain
// and overdue or failed items red.
var (
	AccentColor  = lipgloss.Color("#5B8DEF")
	SettledColor = lipgloss.Color("#4ECDC4")
	PartialColor = lipgloss.Color("#FFE66D")
	AlertColor   = lipgloss.Color("#FF6B6B")
	NoticeColor  = lipgloss.Color("#95E1D3")
	MutedColor   = lipgloss.Color("#666666")
	BorderColor  = lipgloss.Color("#333")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(AccentColor)
	SuccessStyle = lipgloss.NewStyle().Foreground(SettledColor)
	WarningStyle = lipgloss.NewStyle().Foreground(PartialColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(AlertColor)
	InfoStyle    = lipgloss.NewStyle().Foreground(NoticeColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(MutedColor)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// BoxStyle frames detail views (invoice, transaction, selection).
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(BorderColor)
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	LinkIcon    = "🔗"
	ChartIcon   = "📊"
)

func FormatSuccess(message string) string { return SuccessStyle.Render(SuccessIcon + " " + message) }
func FormatError(message string) string   { return ErrorStyle.Render(ErrorIcon + " " + message) }
func FormatWarning(message string) string { return WarningStyle.Render(WarningIcon + " " + message) }
func FormatInfo(message string) string    { return InfoStyle.Render(InfoIcon + " " + message) }

// RenderBox frames content under a title.
func RenderBox(title, content string) string {
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), content))
}

// PaymentStatus colors an invoice status by how settled the invoice is.
func PaymentStatus(s model.PaymentStatus) string {
	switch s {
	case model.PaymentFullyPaid, model.PaymentReconciled:
		return SuccessStyle.Render(string(s))
	case model.PaymentPartiallyPaid:
		return WarningStyle.Render(string(s))
	case model.PaymentOverdue, model.PaymentInsolvent:
		return ErrorStyle.Render(string(s))
	default:
		return string(s)
	}
}

// ReconStatus colors a transaction status by how much of it is reconciled.
func ReconStatus(s model.ReconciliationStatus) string {
	switch s {
	case model.ReconFull:
		return SuccessStyle.Render(string(s))
	case model.ReconPartial:
		return WarningStyle.Render(string(s))
	case model.ReconExcess:
		return ErrorStyle.Render(string(s))
	case model.ReconIgnored:
		return SubtleStyle.Render(string(s))
	default:
		return string(s)
	}
}
