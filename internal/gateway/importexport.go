package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ImportResult reports the outcome of an import.
type ImportResult struct {
	Summary     string           `json:"summary,omitempty" yaml:"summary,omitempty"`
	Files       []map[string]any `json:"files,omitempty" yaml:"files,omitempty"`
	Processed   int              `json:"processed" yaml:"processed"`
	Success     int              `json:"success" yaml:"success"`
	Duplicates  int              `json:"duplicates" yaml:"duplicates"`
	Errors      int              `json:"errors" yaml:"errors"`
	Unsupported int              `json:"unsupported" yaml:"unsupported"`
}

// Validation reports whether an import file can be imported.
type Validation struct {
	Status          string         `json:"validation_status" yaml:"status"`
	Details         map[string]any `json:"validation_details,omitempty" yaml:"details,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
	CanImport       bool           `json:"can_import" yaml:"can_import"`
}

// ExportFormat is a file format offered by the export endpoint.
type ExportFormat string

// Export formats.
const (
	ExportExcel ExportFormat = "excel"
	ExportCSV   ExportFormat = "csv"
	ExportJSON  ExportFormat = "json"
)

// ExportFilter narrows an export.
type ExportFilter struct {
	StartDate      string
	EndDate        string
	Type           string
	Status         string
	IncludeDetails bool
}

// ImportInvoicesZIP imports a ZIP archive of electronic invoices.
func (c *Client) ImportInvoicesZIP(ctx context.Context, file File) (*ImportResult, error) {
	return c.importFiles(ctx, "/api/import-export/invoices/zip", "file", file)
}

// ImportInvoicesXML imports one or more XML or P7M invoices.
func (c *Client) ImportInvoicesXML(ctx context.Context, files ...File) (*ImportResult, error) {
	return c.importFiles(ctx, "/api/import-export/invoices/xml", "files", files...)
}

// ImportTransactionsCSV imports a bank statement in the backend's CSV layout.
func (c *Client) ImportTransactionsCSV(ctx context.Context, file File) (*ImportResult, error) {
	return c.importFiles(ctx, "/api/import-export/transactions/csv", "file", file)
}

func (c *Client) importFiles(ctx context.Context, path, field string, files ...File) (*ImportResult, error) {
	var result ImportResult
	r := request{method: http.MethodPost, path: path, upload: &upload{field: field, files: files}}
	if _, err := c.call(ctx, r, &result); err != nil {
		return nil, fmt.Errorf("failed to import: %w", err)
	}
	return &result, nil
}

// ValidateZIP checks a ZIP archive without importing it.
func (c *Client) ValidateZIP(ctx context.Context, file File) (*Validation, error) {
	return c.validate(ctx, "/api/import-export/validate-zip", nil, file)
}

// ValidateCSV checks a CSV file of dataType without importing it.
func (c *Client) ValidateCSV(ctx context.Context, dataType string, file File) (*Validation, error) {
	q := url.Values{}
	setString(q, "data_type", dataType)
	return c.validate(ctx, "/api/import-export/validate/csv", q, file)
}

func (c *Client) validate(ctx context.Context, path string, q url.Values, file File) (*Validation, error) {
	var v Validation
	r := request{method: http.MethodPost, path: path, query: q, upload: &upload{field: "file", files: []File{file}}, enveloped: true, replayable: true}
	if _, err := c.call(ctx, r, &v); err != nil {
		if apiErr, ok := IsAPIError(err); ok && apiErr.StatusCode == http.StatusOK {
			// A failed validation comes back as success:false with the details dropped.
			return &Validation{Status: "invalid", Recommendations: []string{apiErr.Message}}, nil
		}
		return nil, fmt.Errorf("failed to validate %s: %w", file.Name, err)
	}
	return &v, nil
}

// Export streams dataType (invoices, transactions or anagraphics) in format to w.
func (c *Client) Export(ctx context.Context, dataType string, format ExportFormat, filter ExportFilter, w io.Writer) (int64, error) {
	switch dataType {
	case "invoices", "transactions", "anagraphics":
	default:
		return 0, fmt.Errorf("unsupported export type %q", dataType)
	}

	q := url.Values{}
	setString(q, "format", string(format))
	setString(q, "start_date", filter.StartDate)
	setString(q, "end_date", filter.EndDate)
	setString(q, "type_filter", filter.Type)
	setString(q, "status_filter", filter.Status)
	setBool(q, "include_details", filter.IncludeDetails)

	n, err := c.stream(ctx, "/api/import-export/export/"+dataType, q, w)
	if err != nil {
		return n, fmt.Errorf("failed to export %s: %w", dataType, err)
	}
	return n, nil
}

// ImportStatistics returns counters about past imports.
func (c *Client) ImportStatistics(ctx context.Context) (Report, error) {
	return c.report(ctx, "/api/import-export/statistics")
}

// ImportHealth returns the import subsystem's health report.
func (c *Client) ImportHealth(ctx context.Context) (Report, error) {
	return c.report(ctx, "/api/import-export/health/enterprise")
}
