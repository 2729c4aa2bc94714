package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

// ListInvoices returns one page of invoices matching filter.
func (c *Client) ListInvoices(ctx context.Context, filter model.InvoiceFilter) (*service.Page[model.Invoice], error) {
	q := url.Values{}
	setString(q, "type_filter", string(filter.Type))
	setString(q, "status_filter", string(filter.Status))
	setString(q, "search", filter.Search)
	setInt(q, "anagraphics_id", filter.AnagraphicsID)
	setDate(q, "start_date", filter.StartDate)
	setDate(q, "end_date", filter.EndDate)
	setDecimal(q, "min_amount", filter.MinAmount)
	setDecimal(q, "max_amount", filter.MaxAmount)
	setPaging(q, filter.Page, filter.Size)

	var page pageWire[invoiceWire]
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/invoices/", query: q}, &page); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	now := time.Now()
	items, err := convertAll(page.Items, func(w invoiceWire) (model.Invoice, error) { return w.toModel(now) })
	if err != nil {
		return nil, err
	}
	return &service.Page[model.Invoice]{Items: items, Total: page.Total, Page: page.Page, Size: page.Size, Pages: page.Pages}, nil
}

// GetInvoice fetches a single invoice.
func (c *Client) GetInvoice(ctx context.Context, id int64) (*model.Invoice, error) {
	var w invoiceWire
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/invoices/" + strconv.FormatInt(id, 10)}, &w); err != nil {
		return nil, fmt.Errorf("failed to get invoice %d: %w", id, err)
	}
	inv, err := w.toModel(time.Now())
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// UpdateInvoicePaymentStatus sets the invoice's payment status. A nil paid
// amount lets the backend derive it from the status. The result carries the
// status and amount the backend stored.
func (c *Client) UpdateInvoicePaymentStatus(ctx context.Context, id int64, status model.PaymentStatus, paid *decimal.Decimal) (*service.InvoiceStatusResult, error) {
	q := url.Values{"payment_status": {string(status)}}
	setDecimal(q, "paid_amount", paid)

	var res service.InvoiceStatusResult
	path := fmt.Sprintf("/api/invoices/%d/update-payment-status", id)
	if _, err := c.call(ctx, request{method: http.MethodPost, path: path, query: q, enveloped: true}, &res); err != nil {
		return nil, fmt.Errorf("failed to update invoice %d status: %w", id, err)
	}
	if res.Status == "" {
		res.Status = status
	}
	if res.PaidAmount == nil {
		res.PaidAmount = paid
	}
	return &res, nil
}

// InvoiceLinks lists the reconciliation links of an invoice.
func (c *Client) InvoiceLinks(ctx context.Context, id int64) ([]model.ReconciliationLink, error) {
	var rows []linkWire
	path := fmt.Sprintf("/api/invoices/%d/reconciliation-links", id)
	if _, err := c.call(ctx, request{method: http.MethodGet, path: path, enveloped: true}, &rows); err != nil {
		return nil, fmt.Errorf("failed to list links of invoice %d: %w", id, err)
	}
	return convertAll(rows, func(w linkWire) (model.ReconciliationLink, error) {
		w.InvoiceID = id
		return w.toModel()
	})
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func setInt(q url.Values, key string, v int64) {
	if v != 0 {
		q.Set(key, strconv.FormatInt(v, 10))
	}
}

func setBool(q url.Values, key string, v bool) {
	if v {
		q.Set(key, "true")
	}
}

func setDate(q url.Values, key string, v *time.Time) {
	if v != nil {
		q.Set(key, v.Format("2006-01-02"))
	}
}

func setDecimal(q url.Values, key string, v *decimal.Decimal) {
	if v != nil {
		q.Set(key, v.String())
	}
}

func setPaging(q url.Values, page, size int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}
}
