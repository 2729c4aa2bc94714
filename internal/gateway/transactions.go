package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

// MaxBatchStatusIDs is the backend's limit for one batch status update.
const MaxBatchStatusIDs = 100

// ListTransactions returns one page of bank transactions matching filter.
func (c *Client) ListTransactions(ctx context.Context, filter model.TransactionFilter) (*service.Page[model.BankTransaction], error) {
	q := url.Values{}
	setString(q, "status_filter", string(filter.Status))
	setString(q, "search", filter.Search)
	setDate(q, "start_date", filter.StartDate)
	setDate(q, "end_date", filter.EndDate)
	setDecimal(q, "min_amount", filter.MinAmount)
	setDecimal(q, "max_amount", filter.MaxAmount)
	setBool(q, "hide_pos", filter.HidePOS)
	setBool(q, "hide_commissions", filter.HideCommissions)
	setPaging(q, filter.Page, filter.Size)

	var page pageWire[transactionWire]
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/transactions/", query: q}, &page); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	items, err := convertAll(page.Items, transactionWire.toModel)
	if err != nil {
		return nil, err
	}
	return &service.Page[model.BankTransaction]{Items: items, Total: page.Total, Page: page.Page, Size: page.Size, Pages: page.Pages}, nil
}

// GetTransaction fetches a single bank transaction.
func (c *Client) GetTransaction(ctx context.Context, id int64) (*model.BankTransaction, error) {
	var w transactionWire
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/transactions/" + strconv.FormatInt(id, 10)}, &w); err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}
	txn, err := w.toModel()
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// UpdateTransactionStatus sets the reconciliation status. A nil amount keeps
// the backend's current reconciled amount. The result carries the status and
// amounts the backend stored.
func (c *Client) UpdateTransactionStatus(ctx context.Context, id int64, status model.ReconciliationStatus, reconciled *decimal.Decimal) (*service.TransactionStatusResult, error) {
	body := map[string]any{"reconciliation_status": string(status)}
	if reconciled != nil {
		body["reconciled_amount"] = json.Number(reconciled.String())
	}

	var res service.TransactionStatusResult
	path := fmt.Sprintf("/api/transactions/%d/update-status", id)
	if _, err := c.call(ctx, request{method: http.MethodPost, path: path, body: body, enveloped: true}, &res); err != nil {
		return nil, fmt.Errorf("failed to update transaction %d status: %w", id, err)
	}
	if res.Status == "" {
		res.Status = status
	}
	if res.ReconciledAmount == nil {
		res.ReconciledAmount = reconciled
	}
	return &res, nil
}

type batchStatusWire struct {
	Details []struct {
		Message       string `json:"message"`
		TransactionID int64  `json:"transaction_id"`
		Success       bool   `json:"success"`
	} `json:"details"`
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchUpdateTransactionStatus sets status on up to MaxBatchStatusIDs transactions.
func (c *Client) BatchUpdateTransactionStatus(ctx context.Context, ids []int64, status model.ReconciliationStatus) (*service.BatchStatusResult, error) {
	if len(ids) == 0 {
		return nil, common.ErrEmptySelection
	}
	if len(ids) > MaxBatchStatusIDs {
		return nil, fmt.Errorf("%w: %d transactions exceed the batch limit of %d", common.ErrInvalidConfig, len(ids), MaxBatchStatusIDs)
	}

	body := map[string]any{
		"transaction_ids":       ids,
		"reconciliation_status": string(status),
	}
	var w batchStatusWire
	if _, err := c.call(ctx, request{method: http.MethodPost, path: "/api/transactions/batch/update-status", body: body, enveloped: true}, &w); err != nil {
		return nil, fmt.Errorf("failed to batch update transactions: %w", err)
	}

	result := &service.BatchStatusResult{Total: w.Total, Failed: w.Failed}
	for _, d := range w.Details {
		if d.Success {
			result.Successful = append(result.Successful, d.TransactionID)
		}
	}
	return result, nil
}

// TransactionLinks lists the reconciliation links of a transaction.
func (c *Client) TransactionLinks(ctx context.Context, id int64) ([]model.ReconciliationLink, error) {
	var rows []linkWire
	path := fmt.Sprintf("/api/transactions/%d/reconciliation-links", id)
	if _, err := c.call(ctx, request{method: http.MethodGet, path: path, enveloped: true}, &rows); err != nil {
		return nil, fmt.Errorf("failed to list links of transaction %d: %w", id, err)
	}
	return convertAll(rows, func(w linkWire) (model.ReconciliationLink, error) {
		w.TransactionID = id
		return w.toModel()
	})
}
