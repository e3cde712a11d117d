package reconciler

import (
	"github.com/shopspring/decimal"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
)

// Summary aggregates a session's items for reporting.
type Summary struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Matched int `json:"matched"`
	Created int `json:"created"`
	Ignored int `json:"ignored"`

	CreditCount int             `json:"creditCount"`
	DebitCount  int             `json:"debitCount"`
	CreditTotal decimal.Decimal `json:"creditTotal"`
	DebitTotal  decimal.Decimal `json:"debitTotal"`
}

// Resolved returns the number of items in a terminal state.
func (s *Summary) Resolved() int {
	return s.Matched + s.Created + s.Ignored
}

// Summarize computes the session summary over the given items.
func Summarize(items []*models.ReconciliationItem) *Summary {
	s := &Summary{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case models.ItemStatusMatched:
			s.Matched++
		case models.ItemStatusCreated:
			s.Created++
		case models.ItemStatusIgnored:
			s.Ignored++
		default:
			s.Pending++
		}

		tx := item.Transaction
		if tx == nil {
			continue
		}
		if tx.IsCredit() {
			s.CreditCount++
			s.CreditTotal = s.CreditTotal.Add(tx.AbsoluteAmount)
		} else {
			s.DebitCount++
			s.DebitTotal = s.DebitTotal.Add(tx.AbsoluteAmount)
		}
	}
	return s
}
