package ofx

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// CSVHeader is the column layout of the backend's bank CSV import. Expenses go
// in DARE and income in AVERE, both as positive amounts.
var CSVHeader = []string{"DATA", "VALUTA", "DARE", "AVERE", "DESCRIZIONE OPERAZIONE"}

const csvDateLayout = "02/01/2006"

// WriteCSV writes transactions in the backend's import layout: semicolon
// separated, day-first dates and comma decimals.
func WriteCSV(w io.Writer, transactions []model.BankTransaction) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, txn := range transactions {
		if err := cw.Write(csvRecord(txn)); err != nil {
			return fmt.Errorf("failed to write transaction %s: %w", txn.UniqueHash, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

func csvRecord(txn model.BankTransaction) []string {
	valueDate := ""
	if txn.ValueDate != nil {
		valueDate = txn.ValueDate.Format(csvDateLayout)
	}

	var dare, avere string
	amount := italianAmount(txn.Amount.Abs().StringFixed(2))
	if txn.Amount.IsNegative() {
		dare = amount
	} else {
		avere = amount
	}

	return []string{
		txn.TransactionDate.Format(csvDateLayout),
		valueDate,
		dare,
		avere,
		txn.Description,
	}
}

func italianAmount(s string) string {
	return strings.Replace(s, ".", ",", 1)
}
