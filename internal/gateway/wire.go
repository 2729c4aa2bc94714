package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// The backend serializes dates as plain "2006-01-02" strings and timestamps
// in several layouts, so entities are decoded through these wire types.

var timeLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type invoiceWire struct {
	DueDate          *string         `json:"due_date"`
	DocDate          string          `json:"doc_date"`
	DocNumber        string          `json:"doc_number"`
	Type             string          `json:"type"`
	CounterpartyName string          `json:"counterparty_name"`
	PaymentStatus    string          `json:"payment_status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	ID               int64           `json:"id"`
	AnagraphicsID    int64           `json:"anagraphics_id"`
}

func (w invoiceWire) toModel(now time.Time) (model.Invoice, error) {
	docDate, err := parseTime(w.DocDate)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("invoice %d: doc_date: %w", w.ID, err)
	}
	dueDate, err := parseOptionalTime(w.DueDate)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("invoice %d: due_date: %w", w.ID, err)
	}

	inv := model.Invoice{
		ID:               w.ID,
		Type:             model.InvoiceType(w.Type),
		DocNumber:        w.DocNumber,
		DocDate:          docDate,
		DueDate:          dueDate,
		CounterpartyName: w.CounterpartyName,
		AnagraphicsID:    w.AnagraphicsID,
		PaymentStatus:    model.PaymentStatus(w.PaymentStatus),
		TotalAmount:      w.TotalAmount,
		PaidAmount:       w.PaidAmount,
	}
	inv.Normalize(now)
	return inv, nil
}

type transactionWire struct {
	ValueDate            *string         `json:"value_date"`
	TransactionDate      string          `json:"transaction_date"`
	Description          string          `json:"description"`
	UniqueHash           string          `json:"unique_hash"`
	ReconciliationStatus string          `json:"reconciliation_status"`
	Amount               decimal.Decimal `json:"amount"`
	ReconciledAmount     decimal.Decimal `json:"reconciled_amount"`
	ID                   int64           `json:"id"`
}

func (w transactionWire) toModel() (model.BankTransaction, error) {
	date, err := parseTime(w.TransactionDate)
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("transaction %d: transaction_date: %w", w.ID, err)
	}
	valueDate, err := parseOptionalTime(w.ValueDate)
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("transaction %d: value_date: %w", w.ID, err)
	}

	txn := model.BankTransaction{
		ID:                   w.ID,
		TransactionDate:      date,
		ValueDate:            valueDate,
		Description:          w.Description,
		UniqueHash:           w.UniqueHash,
		ReconciliationStatus: model.ReconciliationStatus(w.ReconciliationStatus),
		Amount:               w.Amount,
		ReconciledAmount:     w.ReconciledAmount,
	}
	txn.Normalize()
	return txn, nil
}

type anagraphicsWire struct {
	UpdatedAt    *string `json:"updated_at"`
	Type         string  `json:"type"`
	Denomination string  `json:"denomination"`
	VATNumber    string  `json:"piva"`
	FiscalCode   string  `json:"cf"`
	City         string  `json:"city"`
	Score        float64 `json:"score"`
	ID           int64   `json:"id"`
}

func (w anagraphicsWire) toModel() (model.Anagraphics, error) {
	a := model.Anagraphics{
		ID:           w.ID,
		Type:         model.AnagraphicsType(w.Type),
		Denomination: w.Denomination,
		VATNumber:    w.VATNumber,
		FiscalCode:   w.FiscalCode,
		City:         w.City,
		Score:        w.Score,
	}
	updated, err := parseOptionalTime(w.UpdatedAt)
	if err != nil {
		return model.Anagraphics{}, fmt.Errorf("anagraphics %d: updated_at: %w", w.ID, err)
	}
	if updated != nil {
		a.UpdatedAt = *updated
	}
	return a, nil
}

type linkWire struct {
	ReconciliationDate string          `json:"reconciliation_date"`
	ReconciledAmount   decimal.Decimal `json:"reconciled_amount"`
	ID                 int64           `json:"id"`
	InvoiceID          int64           `json:"invoice_id"`
	TransactionID      int64           `json:"transaction_id"`
}

func (w linkWire) toModel() (model.ReconciliationLink, error) {
	link := model.ReconciliationLink{
		ID:            w.ID,
		InvoiceID:     w.InvoiceID,
		TransactionID: w.TransactionID,
		Amount:        w.ReconciledAmount,
	}
	if w.ReconciliationDate != "" {
		at, err := parseTime(w.ReconciliationDate)
		if err != nil {
			return model.ReconciliationLink{}, fmt.Errorf("link %d: reconciliation_date: %w", w.ID, err)
		}
		link.CreatedAt = at
	}
	return link, nil
}

type pageWire[W any] struct {
	Items []W `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

func convertAll[W, T any](in []W, conv func(W) (T, error)) ([]T, error) {
	out := make([]T, 0, len(in))
	for _, w := range in {
		t, err := conv(w)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
