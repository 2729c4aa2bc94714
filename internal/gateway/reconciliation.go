package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

// MaxBatchPairs is the backend's limit for one batch reconciliation request.
const MaxBatchPairs = 50

// Report is an open-ended analytics payload rendered as-is.
type Report map[string]any

// SmartSuggestions asks the matching service for candidate invoices for one transaction.
func (c *Client) SmartSuggestions(ctx context.Context, transactionID int64, query service.SuggestionQuery) ([]model.MatchSuggestion, error) {
	q := url.Values{}
	q.Set("confidence_threshold", strconv.FormatFloat(query.ConfidenceThreshold, 'f', -1, 64))
	q.Set("enable_pattern_learning", strconv.FormatBool(query.PatternLearning))
	if query.MaxSuggestions > 0 {
		q.Set("max_suggestions", strconv.Itoa(query.MaxSuggestions))
	}
	setInt(q, "anagraphics_id_hint", query.AnagraphicsHint)

	var data struct {
		Suggestions []model.MatchSuggestion `json:"suggestions"`
	}
	path := fmt.Sprintf("/api/reconciliation/ultra/smart-suggestions/%d", transactionID)
	if _, err := c.call(ctx, request{method: http.MethodGet, path: path, query: q, enveloped: true}, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch suggestions for transaction %d: %w", transactionID, err)
	}
	return data.Suggestions, nil
}

// MatchingOpportunities asks the matching service for reconciliations across all open items.
func (c *Client) MatchingOpportunities(ctx context.Context, query service.OpportunityQuery) ([]model.MatchSuggestion, error) {
	q := url.Values{}
	level := query.Level
	if level == "" {
		level = service.ConfidenceHigh
	}
	q.Set("confidence_level", string(level))
	if query.MaxOpportunities > 0 {
		q.Set("max_opportunities", strconv.Itoa(query.MaxOpportunities))
	}

	var data struct {
		Opportunities []model.MatchSuggestion `json:"opportunities"`
	}
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/reconciliation/ultra/intelligent-matching", query: q, enveloped: true}, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch matching opportunities: %w", err)
	}
	return data.Opportunities, nil
}

type pairWire struct {
	Amount        json.Number `json:"amount"`
	InvoiceID     int64       `json:"invoice_id"`
	TransactionID int64       `json:"transaction_id"`
}

func toPairWires(pairs []model.ReconciliationPair) []pairWire {
	out := make([]pairWire, len(pairs))
	for i, p := range pairs {
		out[i] = pairWire{InvoiceID: p.InvoiceID, TransactionID: p.TransactionID, Amount: json.Number(p.Amount.String())}
	}
	return out
}

// ManualMatch links one transaction to one invoice for amount.
func (c *Client) ManualMatch(ctx context.Context, pair model.ReconciliationPair) error {
	body := map[string]any{
		"invoice_id":      pair.InvoiceID,
		"transaction_id":  pair.TransactionID,
		"amount_to_match": json.Number(pair.Amount.String()),
	}
	if _, err := c.call(ctx, request{method: http.MethodPost, path: "/api/reconciliation/manual-match", body: body, enveloped: true}, nil); err != nil {
		return fmt.Errorf("failed to match invoice %d with transaction %d: %w", pair.InvoiceID, pair.TransactionID, err)
	}
	return nil
}

// BatchReconcile submits up to MaxBatchPairs pairs in one request.
func (c *Client) BatchReconcile(ctx context.Context, pairs []model.ReconciliationPair, opts service.MatchOptions) (*service.BatchReconcileResult, error) {
	if len(pairs) == 0 {
		return nil, common.ErrEmptySelection
	}
	if len(pairs) > MaxBatchPairs {
		return nil, fmt.Errorf("%w: %d pairs exceed the batch limit of %d", common.ErrInvalidConfig, len(pairs), MaxBatchPairs)
	}

	body := map[string]any{
		"pairs":                   toPairWires(pairs),
		"confidence_threshold":    opts.ConfidenceThreshold,
		"auto_apply":              opts.AutoApply,
		"enable_pattern_learning": opts.PatternLearning,
	}
	var result service.BatchReconcileResult
	msg, err := c.call(ctx, request{method: http.MethodPost, path: "/api/reconciliation/ultra/batch", body: body, enveloped: true}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile batch of %d pairs: %w", len(pairs), err)
	}
	if result.Message == "" {
		result.Message = msg
	}
	return &result, nil
}

// UndoReconciliation removes the link between an invoice and a transaction.
func (c *Client) UndoReconciliation(ctx context.Context, invoiceID, transactionID int64) (*service.UndoResult, error) {
	var result service.UndoResult
	path := fmt.Sprintf("/api/reconciliation/undo/%d/%d", invoiceID, transactionID)
	if _, err := c.call(ctx, request{method: http.MethodPost, path: path, enveloped: true}, &result); err != nil {
		return nil, fmt.Errorf("failed to undo reconciliation of invoice %d with transaction %d: %w", invoiceID, transactionID, err)
	}
	if result.InvoiceID == 0 {
		result.InvoiceID = invoiceID
	}
	if result.TransactionID == 0 {
		result.TransactionID = transactionID
	}
	return &result, nil
}

// SuggestionFeedback reports whether the user accepted a suggestion.
func (c *Client) SuggestionFeedback(ctx context.Context, feedback service.SuggestionFeedback) error {
	if _, err := c.call(ctx, request{method: http.MethodPost, path: "/api/reconciliation/ultra/feedback", body: feedback, enveloped: true}, nil); err != nil {
		return fmt.Errorf("failed to send suggestion feedback: %w", err)
	}
	return nil
}

// ReconciliationAnalytics returns the matching service's performance report.
func (c *Client) ReconciliationAnalytics(ctx context.Context) (Report, error) {
	return c.report(ctx, "/api/reconciliation/analytics")
}

// SystemHealth returns the matching service's health report.
func (c *Client) SystemHealth(ctx context.Context) (Report, error) {
	return c.report(ctx, "/api/reconciliation/system/status")
}

// DashboardKPIs returns the analytics key performance indicators.
func (c *Client) DashboardKPIs(ctx context.Context) (Report, error) {
	return c.report(ctx, "/api/analytics/kpis")
}

func (c *Client) report(ctx context.Context, path string) (Report, error) {
	var r Report
	if _, err := c.call(ctx, request{method: http.MethodGet, path: path, enveloped: true}, &r); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	return r, nil
}
