package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

// ListAnagraphics returns one page of counterparties matching filter.
func (c *Client) ListAnagraphics(ctx context.Context, filter model.AnagraphicsFilter) (*service.Page[model.Anagraphics], error) {
	q := url.Values{}
	setString(q, "type_filter", string(filter.Type))
	setString(q, "search", filter.Search)
	setString(q, "city", filter.City)
	setPaging(q, filter.Page, filter.Size)

	var page pageWire[anagraphicsWire]
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/anagraphics/", query: q}, &page); err != nil {
		return nil, fmt.Errorf("failed to list anagraphics: %w", err)
	}

	items, err := convertAll(page.Items, anagraphicsWire.toModel)
	if err != nil {
		return nil, err
	}
	return &service.Page[model.Anagraphics]{Items: items, Total: page.Total, Page: page.Page, Size: page.Size, Pages: page.Pages}, nil
}

// GetAnagraphics fetches a single counterparty.
func (c *Client) GetAnagraphics(ctx context.Context, id int64) (*model.Anagraphics, error) {
	var w anagraphicsWire
	if _, err := c.call(ctx, request{method: http.MethodGet, path: "/api/anagraphics/" + strconv.FormatInt(id, 10)}, &w); err != nil {
		return nil, fmt.Errorf("failed to get anagraphics %d: %w", id, err)
	}
	a, err := w.toModel()
	if err != nil {
		return nil, err
	}
	return &a, nil
}
