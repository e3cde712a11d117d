// Package ledger is the typed boundary over the generic gateway: it maps
// receivable, payable, reconciliation record and import rows to and from the
// domain types, so nothing above this package handles untyped rows.
package ledger

import (
	"time"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/gateway"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
)

const (
	dateLayout = "2006-01-02"

	tableRecords = "reconciliation_records"
	tableImports = "reconciliation_imports"
)

// settledFields returns the column pair a paid entry is stamped with. The
// two ledgers name them differently.
func settledFields(table models.EntryTable) (amountField, dateField string) {
	if table == models.TablePayables {
		return "amount_paid", "paid_date"
	}
	return "amount_received", "received_date"
}

func decodeEntry(table models.EntryTable, row gateway.Row) *models.LedgerEntry {
	amountField, dateField := settledFields(table)
	return &models.LedgerEntry{
		ID:             row.String("id"),
		Table:          table,
		TenantID:       row.String("tenant_id"),
		Description:    row.String("description"),
		Category:       row.String("category"),
		CounterpartyID: row.String("counterparty_id"),
		Amount:         row.Decimal("amount"),
		DueDate:        row.Time("due_date"),
		CompetenceDate: row.Time("competence_date"),
		Status:         models.EntryStatus(row.String("status")),
		SettledAmount:  row.Decimal(amountField),
		SettledDate:    row.Time(dateField),
		Notes:          row.String("notes"),
	}
}

func encodeEntry(entry *models.LedgerEntry) gateway.Row {
	row := gateway.Row{
		"tenant_id":   entry.TenantID,
		"description": entry.Description,
		"amount":      entry.Amount.String(),
		"due_date":    entry.DueDate.Format(dateLayout),
		"status":      string(entry.Status),
	}
	if entry.ID != "" {
		row["id"] = entry.ID
	}
	if entry.Category != "" {
		row["category"] = entry.Category
	}
	if entry.CounterpartyID != "" {
		row["counterparty_id"] = entry.CounterpartyID
	}
	if !entry.CompetenceDate.IsZero() {
		row["competence_date"] = entry.CompetenceDate.Format(dateLayout)
	}
	if entry.Notes != "" {
		row["notes"] = entry.Notes
	}
	if !entry.SettledAmount.IsZero() || !entry.SettledDate.IsZero() {
		amountField, dateField := settledFields(entry.Table)
		row[amountField] = entry.SettledAmount.String()
		row[dateField] = entry.SettledDate.Format(dateLayout)
	}
	return row
}

func decodeRecord(row gateway.Row) *models.ReconciliationRecord {
	rec := &models.ReconciliationRecord{
		ID:          row.String("id"),
		TenantID:    row.String("tenant_id"),
		ImportID:    row.String("import_id"),
		FitID:       row.String("fit_id"),
		Date:        row.Time("date"),
		Amount:      row.Decimal("amount"),
		Description: row.String("description"),
		Type:        models.TransactionType(row.String("type")),
		Status:      models.ItemStatus(row.String("status")),
		EntryID:     row.String("entry_id"),
		EntryTable:  models.EntryTable(row.String("entry_table")),
		Notes:       row.String("notes"),
		Actor:       row.String("actor"),
		ResolvedAt:  row.Time("resolved_at"),
	}
	if score, ok := row.Float("match_score"); ok {
		rec.MatchScore = &score
	}
	return rec
}

func encodeRecord(rec *models.ReconciliationRecord) gateway.Row {
	row := gateway.Row{
		"tenant_id":   rec.TenantID,
		"fit_id":      rec.FitID,
		"date":        rec.Date.Format(dateLayout),
		"amount":      rec.Amount.String(),
		"description": rec.Description,
		"type":        string(rec.Type),
		"status":      string(rec.Status),
	}
	if rec.ID != "" {
		row["id"] = rec.ID
	}
	if rec.ImportID != "" {
		row["import_id"] = rec.ImportID
	}
	if rec.EntryID != "" {
		row["entry_id"] = rec.EntryID
	}
	if rec.EntryTable != "" {
		row["entry_table"] = string(rec.EntryTable)
	}
	if rec.MatchScore != nil {
		row["match_score"] = *rec.MatchScore
	}
	if rec.Notes != "" {
		row["notes"] = rec.Notes
	}
	if rec.Actor != "" {
		row["actor"] = rec.Actor
	}
	if !rec.ResolvedAt.IsZero() {
		row["resolved_at"] = rec.ResolvedAt.Format(time.RFC3339)
	}
	return row
}

func decodeImport(row gateway.Row) *models.ReconciliationImport {
	return &models.ReconciliationImport{
		ID:               row.String("id"),
		TenantID:         row.String("tenant_id"),
		FileName:         row.String("file_name"),
		BankID:           row.String("bank_id"),
		AccountID:        row.String("account_id"),
		PeriodStart:      row.Time("period_start"),
		PeriodEnd:        row.Time("period_end"),
		TransactionCount: row.Int("transaction_count"),
		CreditCount:      row.Int("credit_count"),
		DebitCount:       row.Int("debit_count"),
		CreditTotal:      row.Decimal("credit_total"),
		DebitTotal:       row.Decimal("debit_total"),
		ReconciledCount:  row.Int("reconciled_count"),
		ImportedAt:       row.Time("imported_at"),
		Actor:            row.String("actor"),
	}
}

func encodeImport(imp *models.ReconciliationImport) gateway.Row {
	row := gateway.Row{
		"tenant_id":         imp.TenantID,
		"file_name":         imp.FileName,
		"transaction_count": imp.TransactionCount,
		"credit_count":      imp.CreditCount,
		"debit_count":       imp.DebitCount,
		"credit_total":      imp.CreditTotal.String(),
		"debit_total":       imp.DebitTotal.String(),
		"reconciled_count":  imp.ReconciledCount,
		"imported_at":       imp.ImportedAt.Format(time.RFC3339),
	}
	if imp.ID != "" {
		row["id"] = imp.ID
	}
	if imp.BankID != "" {
		row["bank_id"] = imp.BankID
	}
	if imp.AccountID != "" {
		row["account_id"] = imp.AccountID
	}
	if !imp.PeriodStart.IsZero() {
		row["period_start"] = imp.PeriodStart.Format(dateLayout)
	}
	if !imp.PeriodEnd.IsZero() {
		row["period_end"] = imp.PeriodEnd.Format(dateLayout)
	}
	if imp.Actor != "" {
		row["actor"] = imp.Actor
	}
	return row
}
