package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Veraticus/fattura-reconcile/internal/common"
)

// APIError is a request the backend understood and refused.
type APIError struct {
	Method     string
	Path       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap lets callers test with errors.Is against the common sentinels.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return common.ErrNotFound
	}
	return common.ErrBackendRejected
}

// errorBody covers both shapes the backend uses for failures: FastAPI's
// {"detail": ...} and the middleware's {"success": false, "message": ...}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return strings.TrimSpace(truncate(string(body), 200))
	}

	if len(eb.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(eb.Detail, &detail); err == nil {
			return detail
		}
		// Validation failures carry a list of field errors.
		return truncate(string(eb.Detail), 200)
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}

// classify maps a non-2xx response to an error. Gateway-class statuses are
// retryable; everything else is a rejection.
func classify(method, path string, status int, body []byte) error {
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Message:    errorMessage(body),
	}

	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, apiErr)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", common.ErrBackendUnreachable, apiErr)
	default:
		return apiErr
	}
}

// IsAPIError reports whether err carries a backend rejection and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
