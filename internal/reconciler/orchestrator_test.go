package reconciler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/gateway"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
)

const testTenant = "acme"

func debitTransaction() *models.BankTransaction {
	return &models.BankTransaction{
		FitID:          "TX-DEB-001",
		Type:           models.TransactionTypeDebit,
		TypeCode:       "DEBIT",
		Date:           time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Amount:         decimal.NewFromFloat(-150.00),
		AbsoluteAmount: decimal.NewFromFloat(150.00),
		Description:    "PAGTO FORNECEDOR ALFA - Boleto mensal",
	}
}

func creditTransaction() *models.BankTransaction {
	return &models.BankTransaction{
		FitID:          "TX-CRED-001",
		Type:           models.TransactionTypeCredit,
		TypeCode:       "CREDIT",
		Date:           time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Amount:         decimal.NewFromFloat(500.00),
		AbsoluteAmount: decimal.NewFromFloat(500.00),
		Description:    "RECEBIMENTO CLIENTE BETA",
	}
}

func statementWith(txs ...*models.BankTransaction) *models.ParsedStatement {
	return &models.ParsedStatement{
		BankID:       "0341",
		AccountID:    "56789-0",
		Currency:     "BRL",
		PeriodStart:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		Transactions: txs,
	}
}

func seedPayable(t *testing.T, store *gateway.MemoryStore) string {
	t.Helper()
	row, err := store.Create(context.Background(), "payables", gateway.Row{
		"tenant_id":   testTenant,
		"description": "Fornecedor Alfa boleto",
		"amount":      "150.00",
		"due_date":    "2024-05-10",
		"status":      "pending",
		"notes":       "nota original",
	})
	if err != nil {
		t.Fatalf("failed to seed payable: %v", err)
	}
	return row.String("id")
}

func TestBuildItemsSuggestsCandidates(t *testing.T) {
	store := gateway.NewMemoryStore()
	entryID := seedPayable(t, store)
	o := NewOrchestrator(store, nil)

	items, err := o.BuildItems(context.Background(), testTenant, statementWith(debitTransaction()))
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.Status != models.ItemStatusPending {
		t.Errorf("expected pending, got %s", item.Status)
	}
	if len(item.Suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(item.Suggestions))
	}
	if item.Suggestions[0].EntryID != entryID {
		t.Errorf("suggestion should point at the seeded payable")
	}
	if item.Suggestions[0].Table != models.TablePayables {
		t.Errorf("debits must be matched against payables, got %s", item.Suggestions[0].Table)
	}
	if item.Suggestions[0].Confidence != models.ConfidenceHigh {
		t.Errorf("exact same-day candidate should score high, got %s", item.Suggestions[0].Confidence)
	}
}

func TestBuildItemsRehydratesPriorResolution(t *testing.T) {
	store := gateway.NewMemoryStore()
	seedPayable(t, store)
	ctx := context.Background()
	o := NewOrchestrator(store, nil)

	tx := debitTransaction()
	tx.FitID = "X1"

	items, err := o.BuildItems(ctx, testTenant, statementWith(tx))
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	result := o.Ignore(ctx, testTenant, "", items[0], "não é despesa da empresa", "maria")
	if !result.Success {
		t.Fatalf("ignore failed: %s", result.Error)
	}
	recordsBefore := store.Count("reconciliation_records")

	// Re-importing the same statement must rehydrate, not rescore.
	items, err = o.BuildItems(ctx, testTenant, statementWith(tx))
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	item := items[0]
	if item.Status != models.ItemStatusIgnored {
		t.Errorf("expected ignored after rehydration, got %s", item.Status)
	}
	if len(item.Suggestions) != 0 {
		t.Errorf("rehydrated items must carry no suggestions, got %d", len(item.Suggestions))
	}
	if item.Record == nil {
		t.Fatal("rehydrated item must reference its persisted record")
	}
	if item.Record.Notes != "não é despesa da empresa" {
		t.Errorf("unexpected record notes: %q", item.Record.Notes)
	}
	if got := store.Count("reconciliation_records"); got != recordsBefore {
		t.Errorf("re-import must not create records: %d -> %d", recordsBefore, got)
	}
}

func TestMatchSettlesEntry(t *testing.T) {
	store := gateway.NewMemoryStore()
	entryID := seedPayable(t, store)
	ctx := context.Background()
	o := NewOrchestrator(store, nil)

	items, err := o.BuildItems(ctx, testTenant, statementWith(debitTransaction()))
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	item := items[0]

	result := o.Match(ctx, testTenant, "imp-1", item, item.Suggestions[0], "maria")
	if !result.Success {
		t.Fatalf("match failed: %s", result.Error)
	}
	if item.Status != models.ItemStatusMatched {
		t.Errorf("expected matched, got %s", item.Status)
	}
	if item.LinkedEntryID != entryID {
		t.Errorf("item should link the settled entry")
	}

	entry := result.Entry
	if entry.Status != models.EntryStatusPaid {
		t.Errorf("entry should be paid, got %s", entry.Status)
	}
	if !entry.SettledAmount.Equal(decimal.NewFromFloat(150.00)) {
		t.Errorf("expected settled amount 150.00, got %s", entry.SettledAmount)
	}
	if !entry.SettledDate.Equal(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("settled date should be the transaction date, got %s", entry.SettledDate)
	}
	if !strings.Contains(entry.Notes, "nota original") {
		t.Errorf("existing notes must be preserved: %q", entry.Notes)
	}
	if !strings.Contains(entry.Notes, "[CONCILIADO]") || !strings.Contains(entry.Notes, "maria") {
		t.Errorf("audit note missing: %q", entry.Notes)
	}

	rec := result.Record
	if rec.Status != models.ItemStatusMatched {
		t.Errorf("record status should be matched, got %s", rec.Status)
	}
	if rec.MatchScore == nil || *rec.MatchScore <= 0 {
		t.Error("record should carry the match score")
	}
	if rec.ImportID != "imp-1" || rec.Actor != "maria" {
		t.Errorf("record metadata wrong: import %q actor %q", rec.ImportID, rec.Actor)
	}
	if rec.ResolvedAt.IsZero() {
		t.Error("record should be stamped with the resolution time")
	}
}

// flakyRecordStore fails the first N reconciliation record writes to
// simulate a store outage between settling an entry and recording it.
type flakyRecordStore struct {
	*gateway.MemoryStore
	failures int
}

func (s *flakyRecordStore) Create(ctx context.Context, table string, payload gateway.Row) (gateway.Row, error) {
	if table == "reconciliation_records" && s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("transient store failure")
	}
	return s.MemoryStore.Create(ctx, table, payload)
}

func TestMatchRetryAfterRecordWriteFailure(t *testing.T) {
	mem := gateway.NewMemoryStore()
	entryID := seedPayable(t, mem)
	store := &flakyRecordStore{MemoryStore: mem, failures: 1}
	ctx := context.Background()
	o := NewOrchestrator(store, nil)

	items, err := o.BuildItems(ctx, testTenant, statementWith(debitTransaction()))
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	item := items[0]

	result := o.Match(ctx, testTenant, "imp-1", item, item.Suggestions[0], "maria")
	if result.Success {
		t.Fatal("first match should fail on the record write")
	}
	if item.Status != models.ItemStatusPending {
		t.Fatalf("failed match must leave the item pending, got %s", item.Status)
	}

	retry := o.Match(ctx, testTenant, "imp-1", item, item.Suggestions[0], "maria")
	if !retry.Success {
		t.Fatalf("retry after record write failure must succeed: %s", retry.Error)
	}
	if item.Status != models.ItemStatusMatched {
		t.Errorf("expected matched after retry, got %s", item.Status)
	}
	if retry.Entry == nil || retry.Entry.ID != entryID {
		t.Error("retry should link the entry settled by the first attempt")
	}
	if n := strings.Count(retry.Entry.Notes, "[CONCILIADO]"); n != 1 {
		t.Errorf("entry must carry exactly one audit stamp, got %d: %q", n, retry.Entry.Notes)
	}
	if got := mem.Count("reconciliation_records"); got != 1 {
		t.Errorf("expected 1 persisted record, got %d", got)
	}
}

func TestMatchRejectsEntrySettledElsewhere(t *testing.T) {
	store := gateway.NewMemoryStore()
	seedPayable(t, store)
	ctx := context.Background()
	o := NewOrchestrator(store, nil)

	items, err := o.BuildItems(ctx, testTenant, statementWith(debitTransaction()))
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	item := items[0]
	match := item.Suggestions[0]

	other := creditTransaction()
	other.Type = models.TransactionTypeDebit
	other.FitID = "TX-DEB-OTHER"
	otherItem := &models.ReconciliationItem{Transaction: other, Status: models.ItemStatusPending}
	if res := o.Match(ctx, testTenant, "imp-1", otherItem, match, "maria"); !res.Success {
		t.Fatalf("settling via the other transaction failed: %s", res.Error)
	}

	result := o.Match(ctx, testTenant, "imp-1", item, match, "maria")
	if result.Success {
		t.Fatal("matching an entry settled by another transaction must fail")
	}
	if !strings.Contains(result.Error, "already paid") {
		t.Errorf("expected already paid error, got %q", result.Error)
	}
}

func TestMatchRejectsResolvedItem(t *testing.T) {
	store := gateway.NewMemoryStore()
	o := NewOrchestrator(store, nil)

	item := &models.ReconciliationItem{
		Transaction: debitTransaction(),
		Status:      models.ItemStatusMatched,
	}
	result := o.Match(context.Background(), testTenant, "", item,
		&models.ReconciliationMatch{EntryID: "pay-1", Table: models.TablePayables}, "maria")
	if result.Success {
		t.Fatal("matching a resolved item must fail")
	}
	if !strings.Contains(result.Error, "already resolved") {
		t.Errorf("unexpected error: %s", result.Error)
	}
}

func TestMatchMissingEntryFails(t *testing.T) {
	store := gateway.NewMemoryStore()
	o := NewOrchestrator(store, nil)

	item := &models.ReconciliationItem{
		Transaction: debitTransaction(),
		Status:      models.ItemStatusPending,
	}
	result := o.Match(context.Background(), testTenant, "", item,
		&models.ReconciliationMatch{EntryID: "gone", Table: models.TablePayables}, "")
	if result.Success {
		t.Fatal("matching a vanished entry must fail")
	}
	if item.Status != models.ItemStatusPending {
		t.Errorf("a failed action must leave the item pending, got %s", item.Status)
	}
}

func TestCreateEntryForCredit(t *testing.T) {
	store := gateway.NewMemoryStore()
	ctx := context.Background()
	o := NewOrchestrator(store, nil)

	item := &models.ReconciliationItem{
		Transaction: creditTransaction(),
		Status:      models.ItemStatusPending,
	}
	result := o.CreateEntry(ctx, testTenant, "imp-1", item, EntryOverrides{Category: "vendas"}, "maria")
	if !result.Success {
		t.Fatalf("create failed: %s", result.Error)
	}

	entry := result.Entry
	if entry.Table != models.TableReceivables {
		t.Errorf("credits must create receivables, got %s", entry.Table)
	}
	if !entry.Amount.Equal(decimal.NewFromFloat(500.00)) {
		t.Errorf("expected amount 500.00, got %s", entry.Amount)
	}
	if entry.Status != models.EntryStatusPaid {
		t.Errorf("created entries are settled immediately, got %s", entry.Status)
	}
	if !entry.SettledAmount.Equal(decimal.NewFromFloat(500.00)) {
		t.Errorf("expected settled amount 500.00, got %s", entry.SettledAmount)
	}
	wantCompetence := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if !entry.CompetenceDate.Equal(wantCompetence) {
		t.Errorf("competence should default to the first of the month, got %s", entry.CompetenceDate)
	}
	if entry.Category != "vendas" {
		t.Errorf("category override lost: %q", entry.Category)
	}
	if !strings.Contains(entry.Notes, "[CONCILIADO]") {
		t.Errorf("audit note missing: %q", entry.Notes)
	}

	if item.Status != models.ItemStatusCreated {
		t.Errorf("expected created, got %s", item.Status)
	}
	if result.Record.Status != models.ItemStatusCreated {
		t.Errorf("record status should be created, got %s", result.Record.Status)
	}
}

func TestCreateEntryOverridesTable(t *testing.T) {
	store := gateway.NewMemoryStore()
	o := NewOrchestrator(store, nil)

	item := &models.ReconciliationItem{
		Transaction: creditTransaction(),
		Status:      models.ItemStatusPending,
	}
	result := o.CreateEntry(context.Background(), testTenant, "", item,
		EntryOverrides{EntryTable: models.TablePayables, Description: "Estorno"}, "")
	if !result.Success {
		t.Fatalf("create failed: %s", result.Error)
	}
	if result.Entry.Table != models.TablePayables {
		t.Errorf("table override lost, got %s", result.Entry.Table)
	}
	if result.Entry.Description != "Estorno" {
		t.Errorf("description override lost: %q", result.Entry.Description)
	}
}

func TestDuplicateResolutionConflicts(t *testing.T) {
	store := gateway.NewMemoryStore()
	ctx := context.Background()
	o := NewOrchestrator(store, nil)

	first := &models.ReconciliationItem{Transaction: debitTransaction(), Status: models.ItemStatusPending}
	if result := o.Ignore(ctx, testTenant, "", first, "", ""); !result.Success {
		t.Fatalf("first ignore failed: %s", result.Error)
	}

	// A second resolution for the same fitId must hit the uniqueness guard.
	second := &models.ReconciliationItem{Transaction: debitTransaction(), Status: models.ItemStatusPending}
	result := o.Ignore(ctx, testTenant, "", second, "", "")
	if result.Success {
		t.Fatal("duplicate resolution must fail")
	}
	if store.Count("reconciliation_records") != 1 {
		t.Errorf("expected a single record, got %d", store.Count("reconciliation_records"))
	}
}

func TestBuildItemsDegradedMode(t *testing.T) {
	store := gateway.NewMemoryStoreWithoutTables()
	o := NewOrchestrator(store, nil)

	items, err := o.BuildItems(context.Background(), testTenant, statementWith(debitTransaction(), creditTransaction()))
	if err != nil {
		t.Fatalf("degraded mode must not fail the session: %v", err)
	}
	for _, item := range items {
		if item.Status != models.ItemStatusPending {
			t.Errorf("expected pending in degraded mode, got %s", item.Status)
		}
		if len(item.Suggestions) != 0 {
			t.Errorf("no suggestions expected without ledger tables")
		}
	}
}

func TestRecordImportAggregates(t *testing.T) {
	store := gateway.NewMemoryStore()
	ctx := context.Background()
	o := NewOrchestrator(store, nil)

	stmt := statementWith(debitTransaction(), creditTransaction())
	imp, err := o.RecordImport(ctx, testTenant, "extrato.ofx", stmt, "maria")
	if err != nil {
		t.Fatalf("RecordImport failed: %v", err)
	}
	if imp.ID == "" {
		t.Fatal("import should be persisted with an id")
	}
	if imp.TransactionCount != 2 || imp.CreditCount != 1 || imp.DebitCount != 1 {
		t.Errorf("wrong counts: %d/%d/%d", imp.TransactionCount, imp.CreditCount, imp.DebitCount)
	}
	if !imp.CreditTotal.Equal(decimal.NewFromFloat(500.00)) {
		t.Errorf("expected credit total 500.00, got %s", imp.CreditTotal)
	}
	if !imp.DebitTotal.Equal(decimal.NewFromFloat(150.00)) {
		t.Errorf("expected debit total 150.00, got %s", imp.DebitTotal)
	}
	if imp.BankID != "0341" || imp.AccountID != "56789-0" {
		t.Errorf("account metadata lost: %s/%s", imp.BankID, imp.AccountID)
	}
}

func TestRefreshReconciledCount(t *testing.T) {
	store := gateway.NewMemoryStore()
	ctx := context.Background()
	o := NewOrchestrator(store, nil)

	stmt := statementWith(debitTransaction(), creditTransaction())
	imp, err := o.RecordImport(ctx, testTenant, "extrato.ofx", stmt, "")
	if err != nil {
		t.Fatalf("RecordImport failed: %v", err)
	}

	items, err := o.BuildItems(ctx, testTenant, stmt)
	if err != nil {
		t.Fatalf("BuildItems failed: %v", err)
	}
	if result := o.Ignore(ctx, testTenant, imp.ID, items[0], "", ""); !result.Success {
		t.Fatalf("ignore failed: %s", result.Error)
	}

	if err := o.RefreshReconciledCount(ctx, imp); err != nil {
		t.Fatalf("RefreshReconciledCount failed: %v", err)
	}
	if imp.ReconciledCount != 1 {
		t.Errorf("expected reconciled count 1, got %d", imp.ReconciledCount)
	}

	// The count never moves backwards.
	imp.ReconciledCount = 5
	if err := o.RefreshReconciledCount(ctx, imp); err != nil {
		t.Fatalf("RefreshReconciledCount failed: %v", err)
	}
	if imp.ReconciledCount != 5 {
		t.Errorf("count must be monotonic, got %d", imp.ReconciledCount)
	}
}

func TestSummarize(t *testing.T) {
	items := []*models.ReconciliationItem{
		{Transaction: debitTransaction(), Status: models.ItemStatusMatched},
		{Transaction: creditTransaction(), Status: models.ItemStatusPending},
		{Transaction: creditTransaction(), Status: models.ItemStatusIgnored},
	}
	s := Summarize(items)

	if s.Total != 3 || s.Matched != 1 || s.Pending != 1 || s.Ignored != 1 || s.Created != 0 {
		t.Errorf("wrong status counts: %+v", s)
	}
	if s.Resolved() != 2 {
		t.Errorf("expected 2 resolved, got %d", s.Resolved())
	}
	if s.CreditCount != 2 || s.DebitCount != 1 {
		t.Errorf("wrong direction counts: %d credits, %d debits", s.CreditCount, s.DebitCount)
	}
	if !s.CreditTotal.Equal(decimal.NewFromFloat(1000.00)) {
		t.Errorf("expected credit total 1000.00, got %s", s.CreditTotal)
	}
	if !s.DebitTotal.Equal(decimal.NewFromFloat(150.00)) {
		t.Errorf("expected debit total 150.00, got %s", s.DebitTotal)
	}
}
