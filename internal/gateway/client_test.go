package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL: srv.URL,
		Token:   "secret-token",
		Retry:   service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return c, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr error
	}{
		{name: "valid", baseURL: "http://localhost:8000"},
		{name: "trailing slash", baseURL: "https://fatture.example.com/"},
		{name: "missing", baseURL: "", wantErr: common.ErrMissingConfig},
		{name: "bad scheme", baseURL: "ftp://example.com", wantErr: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{BaseURL: tt.baseURL})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestListInvoices(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/invoices/", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "Attiva", r.URL.Query().Get("type_filter"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("start_date"))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"items": []map[string]any{{
				"id":                3,
				"type":              "Attiva",
				"doc_number":        "FT-2024-003",
				"doc_date":          "2024-01-15",
				"due_date":          "2099-02-15",
				"total_amount":      1220.50,
				"paid_amount":       220.50,
				"payment_status":    "Pagata Parz.",
				"anagraphics_id":    7,
				"counterparty_name": "Rossi Srl",
			}},
			"total": 51, "page": 2, "size": 50, "pages": 2,
		})
	})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := c.ListInvoices(context.Background(), model.InvoiceFilter{Type: model.InvoiceActive, Page: 2, StartDate: &start})
	require.NoError(t, err)

	assert.Equal(t, 51, page.Total)
	require.Len(t, page.Items, 1)
	inv := page.Items[0]
	assert.Equal(t, int64(3), inv.ID)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), inv.DocDate)
	assert.True(t, inv.OpenAmount.Equal(decimal.NewFromInt(1000)), inv.OpenAmount.String())
	assert.Equal(t, model.PaymentPartiallyPaid, inv.PaymentStatus)
	assert.Equal(t, "Rossi Srl", inv.CounterpartyName)
}

func TestGetTransaction(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions/12", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":                    12,
			"transaction_date":      "2024-01-20",
			"value_date":            "2024-01-21",
			"amount":                -300,
			"description":           "BONIFICO A FORNITORE",
			"reconciled_amount":     100,
			"reconciliation_status": "Riconciliato Parz.",
		})
	})

	txn, err := c.GetTransaction(context.Background(), 12)
	require.NoError(t, err)

	assert.True(t, txn.RemainingAmount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, model.ReconPartial, txn.ReconciliationStatus)
	require.NotNil(t, txn.ValueDate)
	assert.Equal(t, 21, txn.ValueDate.Day())
}

func TestUpdateInvoicePaymentStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/invoices/3/update-payment-status", r.URL.Path)
		assert.Equal(t, "Pagata Parz.", r.URL.Query().Get("payment_status"))
		assert.Equal(t, "150.25", r.URL.Query().Get("paid_amount"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Payment status updated to Pagata Parz.",
			"data":    map[string]any{"invoice_id": 3, "new_status": "Pagata Parz.", "paid_amount": 150.25},
		})
	})

	paid := decimal.RequireFromString("150.25")
	res, err := c.UpdateInvoicePaymentStatus(context.Background(), 3, model.PaymentPartiallyPaid, &paid)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPartiallyPaid, res.Status)
	require.NotNil(t, res.PaidAmount)
	assert.True(t, paid.Equal(*res.PaidAmount))
}

func TestUpdateTransactionStatusDecodesStoredState(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions/9/update-status", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "reconciled_amount")

		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"transaction_id": 9, "new_status": "Riconciliato Tot.",
				"reconciled_amount": 0, "remaining_amount": 1000,
			},
		})
	})

	res, err := c.UpdateTransactionStatus(context.Background(), 9, model.ReconFull, nil)
	require.NoError(t, err)

	assert.Equal(t, model.ReconFull, res.Status)
	require.NotNil(t, res.ReconciledAmount)
	assert.True(t, res.ReconciledAmount.IsZero())
	require.NotNil(t, res.RemainingAmount)
	assert.True(t, decimal.NewFromInt(1000).Equal(*res.RemainingAmount))
}

func TestUpdateStatusWithoutDataFallsBackToRequest(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "message": "ok"})
	})

	res, err := c.UpdateInvoicePaymentStatus(context.Background(), 3, model.PaymentInsolvent, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInsolvent, res.Status)
	assert.Nil(t, res.PaidAmount)
}

func TestRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusBadRequest, map[string]any{"detail": "Paid amount must be between 0 and total amount"})
	})

	_, err := c.UpdateInvoicePaymentStatus(context.Background(), 3, model.PaymentOpen, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBackendRejected)
	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Paid amount must be between 0 and total amount", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnvelopeFailureIsRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": false, "message": "Transaction already reconciled"})
	})

	_, err := c.UpdateTransactionStatus(context.Background(), 9, model.ReconFull, nil)

	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "Transaction already reconciled", apiErr.Message)
	assert.False(t, common.IsRetryable(err))
}

func TestNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{"detail": "Invoice not found"})
	})

	_, err := c.GetInvoice(context.Background(), 404)

	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUnavailableIsRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "Database or external service connection failed"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": 1, "type": "Cliente", "denomination": "Bianchi SpA"})
	})

	a, err := c.GetAnagraphics(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "Bianchi SpA", a.Denomination)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWriteIsNotRetriedAfterGatewayError(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/reconciliation/manual-match", r.URL.Path)
		writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{"detail": "upstream timeout"})
	})

	err := c.ManualMatch(context.Background(), model.ReconciliationPair{InvoiceID: 3, TransactionID: 12, Amount: decimal.NewFromInt(100)})

	require.ErrorIs(t, err, common.ErrBackendUnreachable)
	assert.NotErrorIs(t, err, common.ErrMaxRetries)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWriteIsRetriedWhenNeverSent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Retry: service.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond}})
	require.NoError(t, err)

	_, err = c.UpdateTransactionStatus(context.Background(), 9, model.ReconIgnored, nil)

	assert.ErrorIs(t, err, common.ErrBackendUnreachable)
	assert.ErrorIs(t, err, common.ErrMaxRetries)
}

func TestValidationIsRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(t, w, http.StatusBadGateway, map[string]any{"detail": "bad gateway"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"validation_status": "valid", "can_import": true},
		})
	})

	v, err := c.ValidateCSV(context.Background(), "transactions", File{Name: "estratto.csv", Content: strings.NewReader("DATA;VALUTA\n")})

	require.NoError(t, err)
	assert.True(t, v.CanImport)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Retry: service.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond}})
	require.NoError(t, err)

	_, err = c.ListTransactions(context.Background(), model.TransactionFilter{})

	assert.ErrorIs(t, err, common.ErrBackendUnreachable)
	assert.ErrorIs(t, err, common.ErrMaxRetries)
}

func TestBatchUpdateTransactionStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string  `json:"reconciliation_status"`
			IDs    []int64 `json:"transaction_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int64{1, 2, 3}, body.IDs)
		assert.Equal(t, "Ignorato", body.Status)

		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Batch update completed: 2 successful, 1 failed",
			"data": map[string]any{
				"total": 3, "successful": 2, "failed": 1,
				"details": []map[string]any{
					{"transaction_id": 1, "success": true},
					{"transaction_id": 2, "success": false, "message": "Transaction not found"},
					{"transaction_id": 3, "success": true},
				},
			},
		})
	})

	result, err := c.BatchUpdateTransactionStatus(context.Background(), []int64{1, 2, 3}, model.ReconIgnored)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3}, result.Successful)
	assert.Equal(t, 1, result.Failed)
}

func TestBatchLimitsAreEnforcedLocally(t *testing.T) {
	c, _ := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.BatchUpdateTransactionStatus(context.Background(), make([]int64, MaxBatchStatusIDs+1), model.ReconIgnored)
	require.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = c.BatchReconcile(context.Background(), make([]model.ReconciliationPair, MaxBatchPairs+1), service.MatchOptions{})
	require.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = c.BatchReconcile(context.Background(), nil, service.MatchOptions{})
	require.ErrorIs(t, err, common.ErrEmptySelection)
}

func TestSmartSuggestions(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reconciliation/ultra/smart-suggestions/40", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "0.75", q.Get("confidence_threshold"))
		assert.Equal(t, "true", q.Get("enable_pattern_learning"))
		assert.Equal(t, "10", q.Get("max_suggestions"))
		assert.Equal(t, "7", q.Get("anagraphics_id_hint"))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Ultra smart suggestions: 1 high-quality matches found",
			"data": map[string]any{
				"suggestions": []map[string]any{{
					"invoice_ids":      []int64{3},
					"transaction_ids":  []int64{40},
					"confidence":       "Alta",
					"confidence_score": 0.93,
					"total_amount":     1000,
					"match_type":       "exact",
					"description":      "Importo esatto",
				}},
			},
		})
	})

	list, err := c.SmartSuggestions(context.Background(), 40, service.SuggestionQuery{
		MatchOptions:    service.MatchOptions{ConfidenceThreshold: 0.75, PatternLearning: true, MaxSuggestions: 10},
		AnagraphicsHint: 7,
	})
	require.NoError(t, err)

	require.Len(t, list, 1)
	assert.InDelta(t, 0.93, list[0].ConfidenceScore, 1e-9)
	assert.Equal(t, "3|40", list[0].Key())
	assert.True(t, list[0].TotalAmount.Equal(decimal.NewFromInt(1000)))
}

func TestBatchReconcile(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reconciliation/ultra/batch", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"amount":1000.5`)
		assert.Contains(t, string(raw), `"confidence_threshold":0.8`)

		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"message": "1 reconciliation applied",
			"data": map[string]any{
				"applied": []map[string]any{{"invoice_id": 3, "transaction_id": 12, "amount": "1000.5", "link_id": 99}},
			},
		})
	})

	pairs := []model.ReconciliationPair{{InvoiceID: 3, TransactionID: 12, Amount: decimal.RequireFromString("1000.5")}}
	result, err := c.BatchReconcile(context.Background(), pairs, service.MatchOptions{ConfidenceThreshold: 0.8})
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, int64(99), result.Applied[0].LinkID)
	assert.Equal(t, "1 reconciliation applied", result.Message)
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

func TestImportTransactionsCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/import-export/transactions/csv", r.URL.Path)
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		content, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "estratto.csv", header.Filename)
		assert.True(t, strings.HasPrefix(string(content), "Data,DataValuta"))

		writeJSON(t, w, http.StatusOK, map[string]any{"processed": 2, "success": 2, "duplicates": 0, "errors": 0})
	}))
	t.Cleanup(srv.Close)

	progress := &countingWriter{}
	c, err := New(Config{
		BaseURL:  srv.URL,
		Progress: func(_ int64, _ string) io.Writer { return progress },
	})
	require.NoError(t, err)

	csv := "Data,DataValuta,Importo,Descrizione\n2024-01-20,2024-01-20,100.00,BONIFICO\n"
	result, err := c.ImportTransactionsCSV(context.Background(), File{Name: "estratto.csv", Content: strings.NewReader(csv)})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Success)
	assert.Positive(t, progress.n)
}

func TestExportStreams(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/import-export/export/invoices", r.URL.Path)
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("id,doc_number\n3,FT-3\n"))
	})

	var buf bytes.Buffer
	n, err := c.Export(context.Background(), "invoices", ExportCSV, ExportFilter{}, &buf)
	require.NoError(t, err)

	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "id,doc_number\n3,FT-3\n", buf.String())

	_, err = c.Export(context.Background(), "payments", ExportCSV, ExportFilter{}, &buf)
	assert.Error(t, err)
}

func TestSyncEndpoints(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sync/status":
			writeJSON(t, w, http.StatusOK, map[string]any{"enabled": true, "service_available": true, "auto_sync_running": false})
		case "/api/sync/manual":
			assert.Equal(t, "upload", r.URL.Query().Get("force_direction"))
			writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "message": "Sync completed", "data": map[string]any{"action": "upload", "duration_ms": 1200}})
		case "/api/sync/auto-sync/interval":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "300", r.URL.Query().Get("interval_seconds"))
			writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "message": "Interval updated"})
		default:
			writeJSON(t, w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
		}
	})
	ctx := context.Background()

	status, err := c.SyncStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Enabled)

	result, err := c.ManualSync(ctx, SyncUpload)
	require.NoError(t, err)
	assert.Equal(t, "upload", result.Action)
	assert.Equal(t, "Sync completed", result.Message)

	msg, err := c.SetAutoSyncInterval(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "Interval updated", msg)

	_, err = c.SetAutoSyncInterval(ctx, 10*time.Second)
	require.Error(t, err)

	_, err = c.ListBackups(ctx)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
