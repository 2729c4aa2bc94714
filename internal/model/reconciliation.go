package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MatchType tags how a suggestion was produced by the matching service.
type MatchType string

// Match type constants.
const (
	MatchExact       MatchType = "exact"
	MatchFuzzy       MatchType = "fuzzy"
	MatchPartial     MatchType = "partial"
	MatchCombination MatchType = "combination"
	MatchSmartClient MatchType = "smart_client"
	MatchAI          MatchType = "ai"
)

// ReconciliationLink pairs one transaction with one invoice for a specific amount.
type ReconciliationLink struct {
	CreatedAt     time.Time       `json:"reconciliation_date"`
	Amount        decimal.Decimal `json:"reconciled_amount"`
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	InvoiceID     int64           `json:"invoice_id"`
}

// MatchSuggestion is a proposed pairing with a confidence score in [0,1].
// Suggestions are never persisted by the backend; the client only ranks them.
type MatchSuggestion struct {
	Description     string          `json:"description"`
	Confidence      string          `json:"confidence"`
	MatchType       MatchType       `json:"match_type,omitempty"`
	InvoiceIDs      []int64         `json:"invoice_ids"`
	TransactionIDs  []int64         `json:"transaction_ids,omitempty"`
	Reasons         []string        `json:"reasons,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ConfidenceScore float64         `json:"confidence_score"`
	AIEnhanced      bool            `json:"ai_enhanced,omitempty"`
}

// Key identifies a suggestion by the entities it pairs.
func (s MatchSuggestion) Key() string {
	return idsKey(s.InvoiceIDs) + "|" + idsKey(s.TransactionIDs)
}

// ReconciliationPair is a single allocation submitted to the backend.
type ReconciliationPair struct {
	Amount        decimal.Decimal `json:"amount"`
	InvoiceID     int64           `json:"invoice_id"`
	TransactionID int64           `json:"transaction_id"`
}

// ReconciliationSource records how a reconciliation was initiated.
type ReconciliationSource string

// Reconciliation sources.
const (
	SourceManual     ReconciliationSource = "manual"
	SourceSuggestion ReconciliationSource = "suggestion"
	SourceAuto       ReconciliationSource = "auto"
	SourceUndo       ReconciliationSource = "undo"
)

// RecentReconciliation is one entry of the session's reconciliation history.
type RecentReconciliation struct {
	At     time.Time            `json:"at"`
	ID     string               `json:"id"`
	Source ReconciliationSource `json:"source"`
	Pairs  []ReconciliationPair `json:"pairs"`
	Total  decimal.Decimal      `json:"total"`
}

func idsKey(ids []int64) string {
	out := make([]byte, 0, len(ids)*4)
	for i, id := range ids {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendInt(out, id, 10)
	}
	return string(out)
}
