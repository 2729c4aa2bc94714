package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
)

const dateLayout = "2006-01-02"

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", common.ErrInvalidConfig, s)
	}
	return id, nil
}

// parseIDs accepts ids as separate arguments, comma lists, or both.
func parseIDs(args []string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseID(part)
			if err != nil {
				return nil, err
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// parseAmount reads a positive or zero amount. A comma decimal separator is
// accepted.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.Replace(strings.TrimSpace(s), ",", ".", 1))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q", common.ErrInvalidConfig, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount %s must not be negative", common.ErrInvalidConfig, s)
	}
	return d, nil
}

func optionalAmount(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := parseAmount(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q must be YYYY-MM-DD", common.ErrInvalidConfig, s)
	}
	return &t, nil
}

var paymentStatusAliases = map[string]model.PaymentStatus{
	"open":       model.PaymentOpen,
	"partial":    model.PaymentPartiallyPaid,
	"paid":       model.PaymentFullyPaid,
	"overdue":    model.PaymentOverdue,
	"insolvent":  model.PaymentInsolvent,
	"reconciled": model.PaymentReconciled,
}

// parsePaymentStatus accepts the backend value or a short English alias.
func parsePaymentStatus(s string) (model.PaymentStatus, error) {
	if status, ok := paymentStatusAliases[strings.ToLower(s)]; ok {
		return status, nil
	}
	if status := model.PaymentStatus(s); status.Valid() {
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", common.ErrInvalidConfig, s)
}

var reconStatusAliases = map[string]model.ReconciliationStatus{
	"unreconciled": model.ReconUnreconciled,
	"partial":      model.ReconPartial,
	"reconciled":   model.ReconFull,
	"excess":       model.ReconExcess,
	"ignored":      model.ReconIgnored,
}

// parseReconStatus accepts the backend value or a short English alias.
func parseReconStatus(s string) (model.ReconciliationStatus, error) {
	if status, ok := reconStatusAliases[strings.ToLower(s)]; ok {
		return status, nil
	}
	if status := model.ReconciliationStatus(s); status.Valid() {
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown reconciliation status %q", common.ErrInvalidConfig, s)
}

// expandFiles resolves glob patterns to existing files.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("no files match %s", pattern)
			}
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}
	return files, nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
