// Package ofx parses OFX bank statement exports in both historical dialects:
// the SGML-like form where scalar tags are self-closing and the XML-like
// form with explicit closing tags.
//
// The parser never fails on malformed input. Problems inside one transaction
// block produce a warning and skip that single block; everything else in the
// file is still parsed. An empty result set itself produces a warning.
package ofx

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// Parser turns raw statement text into a ParsedStatement. It is stateless
// and safe for concurrent use.
type Parser struct {
	logger logger.Logger
}

// NewParser creates a statement parser.
func NewParser() *Parser {
	return &Parser{
		logger: logger.GetGlobalLogger().WithComponent("ofx_parser"),
	}
}

// Parse processes raw statement text. It always returns a statement;
// malformed records are reported through the Warnings field.
func (p *Parser) Parse(raw string) *models.ParsedStatement {
	doc := normalizeLineEndings(raw)
	stmt := &models.ParsedStatement{}

	p.parseAccountInfo(doc, stmt)
	p.parsePeriod(doc, stmt)
	p.parseBalances(doc, stmt)
	p.parseTransactions(doc, stmt)

	if len(stmt.Transactions) == 0 {
		stmt.Warnings = append(stmt.Warnings, "nenhuma transação encontrada no arquivo")
	}

	// Newest first. Display convenience only; matching must not rely on it.
	sort.SliceStable(stmt.Transactions, func(i, j int) bool {
		return stmt.Transactions[i].Date.After(stmt.Transactions[j].Date)
	})

	p.logger.WithFields(logger.Fields{
		"transactions": len(stmt.Transactions),
		"warnings":     len(stmt.Warnings),
		"account_id":   stmt.AccountID,
	}).Debug("Parsed statement")

	return stmt
}

func (p *Parser) parseAccountInfo(doc string, stmt *models.ParsedStatement) {
	stmt.Currency = tagValue(doc, "CURDEF")

	acct := tagBlock(doc, "BANKACCTFROM")
	if acct == "" {
		acct = tagBlock(doc, "CCACCTFROM")
	}
	if acct == "" {
		return
	}

	stmt.BankID = tagValue(acct, "BANKID")
	stmt.BranchID = tagValue(acct, "BRANCHID")
	stmt.AccountID = tagValue(acct, "ACCTID")
	stmt.AccountType = tagValue(acct, "ACCTTYPE")
}

func (p *Parser) parsePeriod(doc string, stmt *models.ParsedStatement) {
	list := tagBlock(doc, "BANKTRANLIST")
	if list == "" {
		list = doc
	}

	if start, err := ParseDate(tagValue(list, "DTSTART")); err == nil {
		stmt.PeriodStart = start
	}
	if end, err := ParseDate(tagValue(list, "DTEND")); err == nil {
		stmt.PeriodEnd = end
	}
}

func (p *Parser) parseBalances(doc string, stmt *models.ParsedStatement) {
	if block := tagBlock(doc, "LEDGERBAL"); block != "" {
		if bal := parseBalance(block); bal != nil {
			stmt.LedgerBalance = bal
		}
	}
	if block := tagBlock(doc, "AVAILBAL"); block != "" {
		if bal := parseBalance(block); bal != nil {
			stmt.AvailableBalance = bal
		}
	}
}

func parseBalance(block string) *models.Balance {
	amount, err := ParseAmount(tagValue(block, "BALAMT"))
	if err != nil {
		return nil
	}
	bal := &models.Balance{Amount: amount}
	if asOf, err := ParseDate(tagValue(block, "DTASOF")); err == nil {
		bal.AsOf = asOf
	}
	return bal
}

func (p *Parser) parseTransactions(doc string, stmt *models.ParsedStatement) {
	for _, block := range tagBlocks(doc, "STMTTRN") {
		tx, warn := parseTransaction(block)
		if warn != "" {
			stmt.Warnings = append(stmt.Warnings, warn)
			continue
		}
		stmt.Transactions = append(stmt.Transactions, tx)
	}
}

// parseTransaction parses one STMTTRN block. A non-empty warning means the
// block was skipped.
func parseTransaction(block string) (*models.BankTransaction, string) {
	fitID := tagValue(block, "FITID")
	if fitID == "" {
		return nil, "transação sem FITID ignorada"
	}

	rawAmount := tagValue(block, "TRNAMT")
	if rawAmount == "" {
		return nil, fmt.Sprintf("transação %s sem valor (TRNAMT ausente)", fitID)
	}
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, fmt.Sprintf("transação %s com valor inválido %q", fitID, rawAmount)
	}

	date, err := ParseDate(tagValue(block, "DTPOSTED"))
	if err != nil {
		return nil, fmt.Sprintf("transação %s com data inválida %q", fitID, tagValue(block, "DTPOSTED"))
	}

	typeCode := tagValue(block, "TRNTYPE")
	return &models.BankTransaction{
		FitID:          fitID,
		Type:           Classify(typeCode, amount),
		TypeCode:       typeCode,
		Date:           date,
		Amount:         amount,
		AbsoluteAmount: amount.Abs(),
		Description:    buildDescription(tagValue(block, "NAME"), tagValue(block, "MEMO"), typeCode),
		CheckNumber:    tagValue(block, "CHECKNUM"),
		RefNumber:      tagValue(block, "REFNUM"),
	}, ""
}

// buildDescription joins payee name and memo, falling back to the raw type
// code when both are empty.
func buildDescription(name, memo, typeCode string) string {
	switch {
	case name != "" && memo != "":
		return name + " - " + memo
	case name != "":
		return name
	case memo != "":
		return memo
	default:
		return typeCode
	}
}

// ParseDate parses the statement date format YYYYMMDD[HHMMSS[.fff]][tz].
// Any bracketed timezone suffix is informational only and stripped before
// parsing; dates are interpreted as naive calendar terms. Strings shorter
// than eight characters are rejected.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "["); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if len(s) < 8 {
		return time.Time{}, fmt.Errorf("no date in %q", s)
	}

	date, err := time.Parse("20060102", s[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}

	// Time components default to midnight when absent.
	if len(s) >= 14 {
		if clock, err := time.Parse("150405", s[8:14]); err == nil {
			date = date.Add(time.Duration(clock.Hour())*time.Hour +
				time.Duration(clock.Minute())*time.Minute +
				time.Duration(clock.Second())*time.Second)
		}
	}

	return date, nil
}

// ParseAmount parses a statement amount. The decimal separator may be '.'
// or ',' depending on the exporting bank's locale.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}
