package ofx

import (
	"strings"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"

	"github.com/shopspring/decimal"
)

// typeCodeTable maps the statement type codes with an unambiguous money
// direction. Codes outside this table (XFER, OTHER, unrecognized) carry no
// reliable direction across banks and are classified by amount sign instead.
var typeCodeTable = map[string]models.TransactionType{
	"DEP":         models.TransactionTypeCredit,
	"INT":         models.TransactionTypeCredit,
	"DIV":         models.TransactionTypeCredit,
	"DIRECTDEP":   models.TransactionTypeCredit,
	"CREDIT":      models.TransactionTypeCredit,
	"FEE":         models.TransactionTypeDebit,
	"SRVCHG":      models.TransactionTypeDebit,
	"ATM":         models.TransactionTypeDebit,
	"POS":         models.TransactionTypeDebit,
	"CHECK":       models.TransactionTypeDebit,
	"PAYMENT":     models.TransactionTypeDebit,
	"DIRECTDEBIT": models.TransactionTypeDebit,
	"CASH":        models.TransactionTypeDebit,
	"DEBIT":       models.TransactionTypeDebit,
}

// Classify determines the transaction class for a statement type code.
// Known codes win regardless of amount sign; anything else falls back to
// the sign of the amount (non-negative means credit).
func Classify(typeCode string, amount decimal.Decimal) models.TransactionType {
	if t, ok := typeCodeTable[strings.ToUpper(strings.TrimSpace(typeCode))]; ok {
		return t
	}
	if amount.IsNegative() {
		return models.TransactionTypeDebit
	}
	return models.TransactionTypeCredit
}

// KnownTypeCodes returns the fixed classification table, for reporting and
// tests. The returned map is a copy.
func KnownTypeCodes() map[string]models.TransactionType {
	out := make(map[string]models.TransactionType, len(typeCodeTable))
	for k, v := range typeCodeTable {
		out[k] = v
	}
	return out
}
