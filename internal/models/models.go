// Package models defines the domain types shared by the statement parser,
// the match scorer and the reconciliation orchestrator.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies the money direction of a statement line.
type TransactionType string

const (
	// TransactionTypeCredit is money entering the account.
	TransactionTypeCredit TransactionType = "credit"
	// TransactionTypeDebit is money leaving the account.
	TransactionTypeDebit TransactionType = "debit"
)

// String returns the string representation of the transaction type.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is one of the two known values.
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeCredit || t == TransactionTypeDebit
}

// BankTransaction is one statement line item. Instances are created once per
// parse pass and never mutated afterwards; persistence only ever references
// them through FitID.
type BankTransaction struct {
	// FitID is the statement format's own unique transaction identifier,
	// used as the reconciliation dedup key.
	FitID          string          `json:"fitId"`
	Type           TransactionType `json:"type"`
	TypeCode       string          `json:"typeCode"`
	Date           time.Time       `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	AbsoluteAmount decimal.Decimal `json:"absoluteAmount"`
	Description    string          `json:"description"`
	CheckNumber    string          `json:"checkNumber,omitempty"`
	RefNumber      string          `json:"refNumber,omitempty"`
}

// IsCredit returns true when the transaction brings money in.
func (t *BankTransaction) IsCredit() bool {
	return t.Type == TransactionTypeCredit
}

// IsDebit returns true when the transaction takes money out.
func (t *BankTransaction) IsDebit() bool {
	return t.Type == TransactionTypeDebit
}

// String returns a compact representation for logs.
func (t *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{FitID: %s, Type: %s, Amount: %s, Date: %s}",
		t.FitID, t.Type, t.Amount.String(), t.Date.Format("2006-01-02"))
}

// Balance is a statement balance with its as-of date. A zero AsOf means the
// statement did not carry one.
type Balance struct {
	Amount decimal.Decimal `json:"amount"`
	AsOf   time.Time       `json:"asOf,omitempty"`
}

// ParsedStatement is the result of one parse pass over a statement file.
// It is ephemeral: produced and consumed within a single import session.
type ParsedStatement struct {
	BankID      string `json:"bankId,omitempty"`
	BranchID    string `json:"branchId,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	AccountType string `json:"accountType,omitempty"`
	Currency    string `json:"currency,omitempty"`

	// PeriodStart and PeriodEnd bound the statement period; either may be
	// zero when the file omits them.
	PeriodStart time.Time `json:"periodStart,omitempty"`
	PeriodEnd   time.Time `json:"periodEnd,omitempty"`

	LedgerBalance    *Balance `json:"ledgerBalance,omitempty"`
	AvailableBalance *Balance `json:"availableBalance,omitempty"`

	// Transactions is sorted newest-first. The ordering is a display
	// convenience only; matching logic must not rely on it.
	Transactions []*BankTransaction `json:"transactions"`

	// Warnings accumulates non-fatal parse problems. When zero transactions
	// were parsed a warning is always present.
	Warnings []string `json:"warnings,omitempty"`
}

// EntryTable identifies which ledger a candidate entry belongs to.
type EntryTable string

const (
	TableReceivables EntryTable = "receivables"
	TablePayables    EntryTable = "payables"
)

// IsValid checks the table name against the two known ledgers.
func (t EntryTable) IsValid() bool {
	return t == TableReceivables || t == TablePayables
}

// TableForType returns the ledger a transaction of the given type can be
// reconciled against: credits settle receivables, debits settle payables.
func TableForType(tt TransactionType) EntryTable {
	if tt == TransactionTypeDebit {
		return TablePayables
	}
	return TableReceivables
}

// EntryStatus is the lifecycle state of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusPartial   EntryStatus = "partial"
	EntryStatusOverdue   EntryStatus = "overdue"
	EntryStatusPaid      EntryStatus = "paid"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// IsFinal reports whether the entry can no longer receive a payment.
func (s EntryStatus) IsFinal() bool {
	return s == EntryStatusPaid || s == EntryStatusCancelled
}

// OpenEntryStatuses are the states a candidate ledger entry may be in.
var OpenEntryStatuses = []EntryStatus{EntryStatusPending, EntryStatusPartial, EntryStatusOverdue}

// LedgerEntry is a receivable or payable row in the tenant's accounting
// system, as seen through the ledger gateway.
type LedgerEntry struct {
	ID             string          `json:"id"`
	Table          EntryTable      `json:"table"`
	TenantID       string          `json:"tenantId"`
	Description    string          `json:"description"`
	Category       string          `json:"category,omitempty"`
	CounterpartyID string          `json:"counterpartyId,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        time.Time       `json:"dueDate"`
	CompetenceDate time.Time       `json:"competenceDate,omitempty"`
	Status         EntryStatus     `json:"status"`

	// SettledAmount and SettledDate are stamped when the entry is paid.
	SettledAmount decimal.Decimal `json:"settledAmount,omitempty"`
	SettledDate   time.Time       `json:"settledDate,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// ConfidenceTier buckets a numeric match score for human-facing display.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
	ConfidenceNone   ConfidenceTier = "none"
)

// ReconciliationMatch is a scored suggestion linking a transaction to one
// candidate ledger entry. Suggestions are recomputed on every presentation
// of an unresolved transaction and are never persisted; only the eventually
// chosen match is.
type ReconciliationMatch struct {
	EntryID     string          `json:"entryId"`
	Table       EntryTable      `json:"table"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"dueDate"`
	Status      EntryStatus     `json:"status"`
	Category    string          `json:"category,omitempty"`
	Score       float64         `json:"score"`
	Confidence  ConfidenceTier  `json:"confidence"`
	Reasons     []string        `json:"reasons"`
}

// ItemStatus is the per-transaction reconciliation state.
type ItemStatus string

const (
	// ItemStatusPending is the initial state; the other three are terminal.
	ItemStatusPending ItemStatus = "pending"
	ItemStatusMatched ItemStatus = "matched"
	ItemStatusCreated ItemStatus = "created"
	ItemStatusIgnored ItemStatus = "ignored"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusMatched || s == ItemStatusCreated || s == ItemStatusIgnored
}

// ReconciliationItem is the working unit presented to an operator: one
// transaction plus its current state and, while unresolved, its ranked
// suggestions.
type ReconciliationItem struct {
	Transaction *BankTransaction       `json:"transaction"`
	Status      ItemStatus             `json:"status"`
	Suggestions []*ReconciliationMatch `json:"suggestedMatches,omitempty"`

	// LinkedEntryID and LinkedTable reference the resolved ledger entry for
	// matched/created items.
	LinkedEntryID string     `json:"linkedEntryId,omitempty"`
	LinkedTable   EntryTable `json:"linkedTable,omitempty"`

	// Record is the persisted resolution this item was rehydrated from, nil
	// for new pending items.
	Record *ReconciliationRecord `json:"record,omitempty"`
}

// IsResolved reports whether the item reached a terminal state.
func (i *ReconciliationItem) IsResolved() bool {
	return i.Status.IsTerminal()
}

// ReconciliationRecord is the durable audit row keyed by (tenant, fitId).
// It is the re-import dedup key: a transaction whose fitId already has a
// record is rehydrated, never rescored.
type ReconciliationRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	ImportID string `json:"importId,omitempty"`
	FitID    string `json:"fitId"`

	// Transaction snapshot at resolution time.
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Type        TransactionType `json:"type"`

	Status     ItemStatus `json:"status"`
	EntryID    string     `json:"entryId,omitempty"`
	EntryTable EntryTable `json:"entryTable,omitempty"`
	MatchScore *float64   `json:"matchScore,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	ResolvedAt time.Time  `json:"resolvedAt,omitempty"`
}

// ReconciliationImport is one statement-file import event with its
// file-level aggregates.
type ReconciliationImport struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	FileName string `json:"fileName"`

	BankID    string `json:"bankId,omitempty"`
	AccountID string `json:"accountId,omitempty"`

	PeriodStart time.Time `json:"periodStart,omitempty"`
	PeriodEnd   time.Time `json:"periodEnd,omitempty"`

	TransactionCount int             `json:"transactionCount"`
	CreditCount      int             `json:"creditCount"`
	DebitCount       int             `json:"debitCount"`
	CreditTotal      decimal.Decimal `json:"creditTotal"`
	DebitTotal       decimal.Decimal `json:"debitTotal"`

	// ReconciledCount is monotonically non-decreasing within the import's
	// lifetime and is always recomputed by the orchestrator.
	ReconciledCount int `json:"reconciledCount"`

	ImportedAt time.Time `json:"importedAt"`
	Actor      string    `json:"actor,omitempty"`
}

// Validate performs basic sanity checks on an import before persistence.
func (imp *ReconciliationImport) Validate() error {
	if strings.TrimSpace(imp.TenantID) == "" {
		return fmt.Errorf("import tenant cannot be empty")
	}
	if strings.TrimSpace(imp.FileName) == "" {
		return fmt.Errorf("import file name cannot be empty")
	}
	if imp.TransactionCount < 0 || imp.ReconciledCount < 0 {
		return fmt.Errorf("import counts cannot be negative")
	}
	return nil
}
