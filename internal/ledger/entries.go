package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/gateway"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/errors"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/logger"
)

// Entries reads and writes receivable and payable rows through the gateway.
type Entries struct {
	gw     gateway.Gateway
	logger logger.Logger
}

// NewEntries creates an entries repository over the given gateway.
func NewEntries(gw gateway.Gateway) *Entries {
	return &Entries{
		gw:     gw,
		logger: logger.GetGlobalLogger().WithComponent("ledger.entries"),
	}
}

// OpenCandidates lists the tenant's open entries in the given ledger, most
// recently due first. A missing table degrades to an empty list so an import
// can still run with no suggestions.
func (e *Entries) OpenCandidates(ctx context.Context, tenantID string, table models.EntryTable, limit int) ([]*models.LedgerEntry, error) {
	statuses := make([]string, len(models.OpenEntryStatuses))
	for i, s := range models.OpenEntryStatuses {
		statuses[i] = string(s)
	}

	rows, err := e.gw.List(ctx, string(table), gateway.ListOptions{
		Filters: []gateway.Filter{
			{Field: "tenant_id", Op: gateway.OpEqual, Value: tenantID},
			{Field: "status", Op: gateway.OpIn, Value: statuses},
		},
		SortField: "due_date",
		SortDesc:  true,
		Limit:     limit,
	})
	if err == gateway.ErrTableNotFound {
		e.logger.WithField("table", table).Warn("ledger table unavailable, matching will run without candidates")
		return nil, nil
	}
	if err != nil {
		return nil, errors.GatewayError(errors.CodeStoreUnavailable, string(table), err).
			WithContext("tenant", tenantID)
	}

	entries := make([]*models.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, decodeEntry(table, row))
	}
	return entries, nil
}

// Get fetches one entry by id, or nil when it does not exist.
func (e *Entries) Get(ctx context.Context, table models.EntryTable, id string) (*models.LedgerEntry, error) {
	rows, err := e.gw.List(ctx, string(table), gateway.ListOptions{
		Filters: []gateway.Filter{
			{Field: "id", Op: gateway.OpEqual, Value: id},
		},
		Limit: 1,
	})
	if err != nil {
		return nil, errors.GatewayError(errors.CodeStoreUnavailable, string(table), err).
			WithContext("entry", id)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return decodeEntry(table, rows[0]), nil
}

// Create inserts a new ledger entry and returns it with its generated id.
func (e *Entries) Create(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	row, err := e.gw.Create(ctx, string(entry.Table), encodeEntry(entry))
	if err != nil {
		return nil, errors.GatewayError(errors.CodeStoreFailure, string(entry.Table), err).
			WithContext("tenant", entry.TenantID)
	}
	return decodeEntry(entry.Table, row), nil
}

// MarkPaid settles an entry: stamps the settled amount and date, moves the
// status to paid and appends the audit note to the entry's notes.
func (e *Entries) MarkPaid(ctx context.Context, entry *models.LedgerEntry, amount decimal.Decimal, date time.Time, auditNote string) (*models.LedgerEntry, error) {
	amountField, dateField := settledFields(entry.Table)
	payload := gateway.Row{
		"id":        entry.ID,
		"status":    string(models.EntryStatusPaid),
		amountField: amount.String(),
		dateField:   date.Format(dateLayout),
	}
	if auditNote != "" {
		notes := entry.Notes
		if notes != "" {
			notes += "\n"
		}
		payload["notes"] = notes + auditNote
	}

	row, err := e.gw.Update(ctx, string(entry.Table), payload)
	if err != nil {
		return nil, errors.GatewayError(errors.CodeStoreFailure, string(entry.Table), err).
			WithContext("entry", entry.ID)
	}
	return decodeEntry(entry.Table, row), nil
}
