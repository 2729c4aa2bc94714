// Package ofx reads OFX/QFX bank statements and converts them into the CSV
// layout the backend's transaction import understands.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>\s*(INFO|WARN|ERROR)\b`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	spaceRegex    = regexp.MustCompile(`\s+`)
)

// Statement is one account's movements from an OFX file.
type Statement struct {
	AccountID    string
	Currency     string
	Transactions []model.BankTransaction
}

// Parser implements OFX/QFX file parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimSpace(content)

	// SEVERITY must be upper case.
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML files sometimes drop the closing bracket of a bare opening tag.
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseStatements parses every bank and credit card statement in the file.
func (p *Parser) ParseStatements(ctx context.Context, reader io.Reader) ([]Statement, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var statements []Statement
	for _, msg := range resp.Bank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			statements = append(statements, p.convertStatement(string(stmt.BankAcctFrom.AcctID), stmt.CurDef.String(), stmt.BankTranList))
		}
	}
	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			statements = append(statements, p.convertStatement(string(stmt.CCAcctFrom.AcctID), stmt.CurDef.String(), stmt.BankTranList))
		}
	}

	total := 0
	for _, s := range statements {
		total += len(s.Transactions)
	}
	slog.Info("Parsed OFX file",
		"statements", len(statements),
		"total_transactions", total)

	return statements, nil
}

// ParseFile parses an OFX/QFX file and returns the movements of every account.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.BankTransaction, error) {
	statements, err := p.ParseStatements(ctx, reader)
	if err != nil {
		return nil, err
	}
	var transactions []model.BankTransaction
	for _, s := range statements {
		transactions = append(transactions, s.Transactions...)
	}
	return transactions, nil
}

func (p *Parser) convertStatement(accountID, currency string, list *ofxgo.TransactionList) Statement {
	stmt := Statement{AccountID: accountID, Currency: currency}
	if list == nil {
		return stmt
	}
	for _, ofxTx := range list.Transactions {
		txn, err := p.convertTransaction(ofxTx, accountID)
		if err != nil {
			slog.Warn("Skipping OFX transaction",
				"account", accountID,
				"fitid", string(ofxTx.FiTID),
				"error", err)
			continue
		}
		stmt.Transactions = append(stmt.Transactions, txn)
	}
	return stmt
}

// convertTransaction converts an OFX transaction to a signed bank movement.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID string) (model.BankTransaction, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.Rat.FloatString(2))
	if err != nil {
		return model.BankTransaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	txn := model.BankTransaction{
		TransactionDate: ofxTx.DtPosted.Time,
		Description:     description(ofxTx),
		Amount:          amount,
	}
	if ofxTx.DtAvail != nil && !ofxTx.DtAvail.IsZero() {
		valueDate := ofxTx.DtAvail.Time
		txn.ValueDate = &valueDate
	}
	txn.UniqueHash = txn.GenerateHash(accountID)
	txn.Normalize()
	return txn, nil
}

// description builds the movement text the backend matches counterparties
// against: the NAME (or payee), followed by the MEMO when it adds anything.
func description(tx ofxgo.Transaction) string {
	name := strings.TrimSpace(string(tx.Name))
	if name == "" && tx.Payee != nil {
		name = strings.TrimSpace(string(tx.Payee.Name))
	}
	memo := strings.TrimSpace(string(tx.Memo))
	if memo != "" && !strings.Contains(strings.ToUpper(name), strings.ToUpper(memo)) {
		if name == "" {
			name = memo
		} else {
			name += " " + memo
		}
	}
	if tx.CheckNum != "" && !strings.Contains(name, string(tx.CheckNum)) {
		name += " ASSEGNO " + string(tx.CheckNum)
	}
	return spaceRegex.ReplaceAllString(strings.TrimSpace(name), " ")
}

// GetAccounts extracts unique account IDs from the OFX file.
func (p *Parser) GetAccounts(ctx context.Context, reader io.Reader) ([]string, error) {
	statements, err := p.ParseStatements(ctx, reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	for _, s := range statements {
		if s.AccountID != "" && !seen[s.AccountID] {
			seen[s.AccountID] = true
			accounts = append(accounts, s.AccountID)
		}
	}
	return accounts, nil
}
