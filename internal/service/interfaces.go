// Package service defines the contracts between the local state layer and the backend.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// Page is one page of a paginated backend list.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// InvoiceGateway reads and updates invoices on the backend.
type InvoiceGateway interface {
	ListInvoices(ctx context.Context, filter model.InvoiceFilter) (*Page[model.Invoice], error)
	GetInvoice(ctx context.Context, id int64) (*model.Invoice, error)
	UpdateInvoicePaymentStatus(ctx context.Context, id int64, status model.PaymentStatus, paid *decimal.Decimal) (*InvoiceStatusResult, error)
	InvoiceLinks(ctx context.Context, id int64) ([]model.ReconciliationLink, error)
}

// TransactionGateway reads and updates bank transactions on the backend.
type TransactionGateway interface {
	ListTransactions(ctx context.Context, filter model.TransactionFilter) (*Page[model.BankTransaction], error)
	GetTransaction(ctx context.Context, id int64) (*model.BankTransaction, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status model.ReconciliationStatus, reconciled *decimal.Decimal) (*TransactionStatusResult, error)
	BatchUpdateTransactionStatus(ctx context.Context, ids []int64, status model.ReconciliationStatus) (*BatchStatusResult, error)
	TransactionLinks(ctx context.Context, id int64) ([]model.ReconciliationLink, error)
}

// AnagraphicsGateway reads the counterparty registry.
type AnagraphicsGateway interface {
	ListAnagraphics(ctx context.Context, filter model.AnagraphicsFilter) (*Page[model.Anagraphics], error)
	GetAnagraphics(ctx context.Context, id int64) (*model.Anagraphics, error)
}

// ReconciliationGateway talks to the backend matching service.
type ReconciliationGateway interface {
	SmartSuggestions(ctx context.Context, transactionID int64, query SuggestionQuery) ([]model.MatchSuggestion, error)
	MatchingOpportunities(ctx context.Context, query OpportunityQuery) ([]model.MatchSuggestion, error)
	ManualMatch(ctx context.Context, pair model.ReconciliationPair) error
	BatchReconcile(ctx context.Context, pairs []model.ReconciliationPair, opts MatchOptions) (*BatchReconcileResult, error)
	UndoReconciliation(ctx context.Context, invoiceID, transactionID int64) (*UndoResult, error)
	SuggestionFeedback(ctx context.Context, feedback SuggestionFeedback) error
}

// Gateway is the full set of backend operations used by the workflow layer.
type Gateway interface {
	InvoiceGateway
	TransactionGateway
	AnagraphicsGateway
	ReconciliationGateway
}

// MatchOptions are the session's policy knobs, forwarded verbatim to the backend.
type MatchOptions struct {
	ConfidenceThreshold float64
	AutoApply           bool
	PatternLearning     bool
	MaxSuggestions      int
}

// SuggestionQuery parameterizes a per-transaction suggestion request.
type SuggestionQuery struct {
	MatchOptions
	AnagraphicsHint int64
}

// ConfidenceLevel selects a tier of matching opportunities.
type ConfidenceLevel string

// Confidence tiers understood by the backend.
const (
	ConfidenceAny    ConfidenceLevel = "any"
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceExact  ConfidenceLevel = "exact"
)

// OpportunityQuery parameterizes a global matching-opportunities request.
type OpportunityQuery struct {
	Level            ConfidenceLevel
	MaxOpportunities int
}

// AppliedPair is a pair the backend confirmed together with the amount it actually allocated.
type AppliedPair struct {
	model.ReconciliationPair
	LinkID int64 `json:"link_id,omitempty"`
}

// BatchReconcileResult reports which pairs were applied.
type BatchReconcileResult struct {
	Applied []AppliedPair `json:"applied"`
	Failed  []FailedPair  `json:"failed"`
	Message string        `json:"message"`
}

// FailedPair is a pair the backend refused, with its reason.
type FailedPair struct {
	Reason string `json:"reason"`
	model.ReconciliationPair
}

// UndoResult reports the amount released by an undo.
type UndoResult struct {
	Amount        decimal.Decimal `json:"amount"`
	InvoiceID     int64           `json:"invoice_id"`
	TransactionID int64           `json:"transaction_id"`
}

// InvoiceStatusResult is the state the backend stored for an invoice status
// update. PaidAmount is nil when the response omitted it.
type InvoiceStatusResult struct {
	PaidAmount *decimal.Decimal    `json:"paid_amount"`
	Status     model.PaymentStatus `json:"new_status"`
}

// TransactionStatusResult is the state the backend stored for a transaction
// status update.
type TransactionStatusResult struct {
	ReconciledAmount *decimal.Decimal           `json:"reconciled_amount"`
	RemainingAmount  *decimal.Decimal           `json:"remaining_amount"`
	Status           model.ReconciliationStatus `json:"new_status"`
}

// BatchStatusResult reports the outcome of a batch status update.
type BatchStatusResult struct {
	Successful []int64 `json:"successful_ids"`
	Total      int     `json:"total"`
	Failed     int     `json:"failed"`
}

// SuggestionFeedback forwards the user's accept/reject decision on a suggestion.
type SuggestionFeedback struct {
	Suggestion model.MatchSuggestion `json:"suggestion"`
	Accepted   bool                  `json:"accepted"`
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
