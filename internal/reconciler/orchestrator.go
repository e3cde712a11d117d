// Package reconciler drives a reconciliation session: it turns a parsed
// statement into work items, rehydrates previously resolved transactions
// and applies the three terminal actions (match, create, ignore).
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/gateway"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/ledger"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/matcher"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/errors"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/logger"
)

// defaultCandidateLimit bounds how many open entries per ledger are loaded
// into a session for scoring.
const defaultCandidateLimit = 500

// Orchestrator coordinates the parser output, the scorer and the ledger
// repositories for one tenant session.
type Orchestrator struct {
	entries *ledger.Entries
	records *ledger.Records
	imports *ledger.Imports
	scoring *matcher.ScoringConfig
	logger  logger.Logger

	candidateLimit int
}

// NewOrchestrator creates an orchestrator over the given gateway. A nil
// scoring config falls back to the defaults.
func NewOrchestrator(gw gateway.Gateway, scoring *matcher.ScoringConfig) *Orchestrator {
	if scoring == nil {
		scoring = matcher.DefaultScoringConfig()
	}
	return &Orchestrator{
		entries:        ledger.NewEntries(gw),
		records:        ledger.NewRecords(gw),
		imports:        ledger.NewImports(gw),
		scoring:        scoring,
		logger:         logger.GetGlobalLogger().WithComponent("reconciler"),
		candidateLimit: defaultCandidateLimit,
	}
}

// ActionResult is the outcome of a terminal action. Failures are reported
// here rather than aborting the session, so one bad transaction never takes
// down an import.
type ActionResult struct {
	Success bool                         `json:"success"`
	Status  models.ItemStatus            `json:"status,omitempty"`
	Record  *models.ReconciliationRecord `json:"record,omitempty"`
	Entry   *models.LedgerEntry          `json:"entry,omitempty"`
	Error   string                       `json:"error,omitempty"`
}

func failure(action, fitID string, err error) *ActionResult {
	appErr := errors.ActionError(action, fitID, err)
	return &ActionResult{Success: false, Error: appErr.Error()}
}

// EntryOverrides carries the optional operator-supplied fields for a
// created entry. Zero values fall back to the transaction's own data.
type EntryOverrides struct {
	Description    string
	Category       string
	CounterpartyID string
	EntryTable     models.EntryTable
	CompetenceDate time.Time
}

// BuildItems assembles the session's work items for a parsed statement.
// Prior resolutions, receivable candidates and payable candidates are
// fetched concurrently; transactions with a persisted record rehydrate to
// their prior terminal state and are never rescored.
func (o *Orchestrator) BuildItems(ctx context.Context, tenantID string, stmt *models.ParsedStatement) ([]*models.ReconciliationItem, error) {
	var (
		priorRecords map[string]*models.ReconciliationRecord
		receivables  []*models.LedgerEntry
		payables     []*models.LedgerEntry
	)

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		priorRecords, err = o.records.ByTenant(ctx, tenantID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		receivables, err = o.entries.OpenCandidates(ctx, tenantID, models.TableReceivables, o.candidateLimit)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		payables, err = o.entries.OpenCandidates(ctx, tenantID, models.TablePayables, o.candidateLimit)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	candidates := map[models.EntryTable][]*models.LedgerEntry{
		models.TableReceivables: receivables,
		models.TablePayables:    payables,
	}

	items := make([]*models.ReconciliationItem, 0, len(stmt.Transactions))
	rehydrated := 0
	for _, tx := range stmt.Transactions {
		if rec, ok := priorRecords[tx.FitID]; ok {
			items = append(items, rehydrate(tx, rec))
			rehydrated++
			continue
		}
		table := models.TableForType(tx.Type)
		items = append(items, &models.ReconciliationItem{
			Transaction: tx,
			Status:      models.ItemStatusPending,
			Suggestions: matcher.RankCandidates(tx, candidates[table], o.scoring),
		})
	}

	o.logger.WithFields(logger.Fields{
		"tenant":     tenantID,
		"items":      len(items),
		"rehydrated": rehydrated,
	}).Info("reconciliation session assembled")
	return items, nil
}

func rehydrate(tx *models.BankTransaction, rec *models.ReconciliationRecord) *models.ReconciliationItem {
	status := rec.Status
	if !status.IsTerminal() {
		status = models.ItemStatusIgnored
	}
	return &models.ReconciliationItem{
		Transaction:   tx,
		Status:        status,
		LinkedEntryID: rec.EntryID,
		LinkedTable:   rec.EntryTable,
		Record:        rec,
	}
}

// Match settles the suggested ledger entry against the item's transaction
// and persists the resolution. The item moves to matched on success.
func (o *Orchestrator) Match(ctx context.Context, tenantID, importID string, item *models.ReconciliationItem, match *models.ReconciliationMatch, actor string) *ActionResult {
	tx := item.Transaction
	if item.Status.IsTerminal() {
		return failure("match", tx.FitID,
			fmt.Errorf("transaction already resolved as %s", item.Status))
	}
	if match == nil || match.EntryID == "" {
		return failure("match", tx.FitID, fmt.Errorf("no candidate entry selected"))
	}

	entry, err := o.entries.Get(ctx, match.Table, match.EntryID)
	if err != nil {
		return failure("match", tx.FitID, err)
	}
	if entry == nil {
		return failure("match", tx.FitID,
			fmt.Errorf("entry %s no longer exists in %s", match.EntryID, match.Table))
	}
	settled := entry
	if entry.Status.IsFinal() {
		// An entry already stamped with this transaction's settlement note
		// is an earlier match whose record write did not land. The retry
		// finishes it by writing the record; anything else is a real
		// double-settlement and is rejected.
		if !settledByTransaction(entry, tx.FitID) {
			return failure("match", tx.FitID,
				fmt.Errorf("entry %s is already %s", entry.ID, entry.Status))
		}
		o.logger.WithFields(logger.Fields{
			"fit_id": tx.FitID,
			"entry":  entry.ID,
		}).Warn("entry already settled by this transaction, completing interrupted match")
	} else {
		settled, err = o.entries.MarkPaid(ctx, entry, tx.AbsoluteAmount, tx.Date,
			auditNote(tx, actor))
		if err != nil {
			return failure("match", tx.FitID, err)
		}
	}

	score := match.Score
	rec, err := o.records.Save(ctx, &models.ReconciliationRecord{
		TenantID:    tenantID,
		ImportID:    importID,
		FitID:       tx.FitID,
		Date:        tx.Date,
		Amount:      tx.Amount,
		Description: tx.Description,
		Type:        tx.Type,
		Status:      models.ItemStatusMatched,
		EntryID:     settled.ID,
		EntryTable:  settled.Table,
		MatchScore:  &score,
		Actor:       actor,
		ResolvedAt:  time.Now().UTC(),
	})
	if err != nil {
		return failure("match", tx.FitID, err)
	}

	item.Status = models.ItemStatusMatched
	item.LinkedEntryID = settled.ID
	item.LinkedTable = settled.Table
	item.Record = rec
	item.Suggestions = nil

	o.logger.WithFields(logger.Fields{
		"fit_id": tx.FitID,
		"entry":  settled.ID,
		"table":  settled.Table,
		"score":  score,
	}).Info("transaction matched")
	return &ActionResult{Success: true, Status: models.ItemStatusMatched, Record: rec, Entry: settled}
}

// CreateEntry books a brand-new ledger entry for a transaction with no
// acceptable candidate and settles it immediately. Credits become
// receivables and debits payables unless overridden. The competence date
// defaults to the first day of the transaction's month.
func (o *Orchestrator) CreateEntry(ctx context.Context, tenantID, importID string, item *models.ReconciliationItem, overrides EntryOverrides, actor string) *ActionResult {
	tx := item.Transaction
	if item.Status.IsTerminal() {
		return failure("create", tx.FitID,
			fmt.Errorf("transaction already resolved as %s", item.Status))
	}

	table := overrides.EntryTable
	if table == "" {
		table = models.TableForType(tx.Type)
	}
	if !table.IsValid() {
		return failure("create", tx.FitID, fmt.Errorf("unknown ledger table %q", table))
	}

	description := overrides.Description
	if description == "" {
		description = tx.Description
	}
	competence := overrides.CompetenceDate
	if competence.IsZero() {
		competence = firstOfMonth(tx.Date)
	}

	entry, err := o.entries.Create(ctx, &models.LedgerEntry{
		Table:          table,
		TenantID:       tenantID,
		Description:    description,
		Category:       overrides.Category,
		CounterpartyID: overrides.CounterpartyID,
		Amount:         tx.AbsoluteAmount,
		DueDate:        tx.Date,
		CompetenceDate: competence,
		Status:         models.EntryStatusPaid,
		SettledAmount:  tx.AbsoluteAmount,
		SettledDate:    tx.Date,
		Notes:          auditNote(tx, actor),
	})
	if err != nil {
		return failure("create", tx.FitID, err)
	}

	rec, err := o.records.Save(ctx, &models.ReconciliationRecord{
		TenantID:    tenantID,
		ImportID:    importID,
		FitID:       tx.FitID,
		Date:        tx.Date,
		Amount:      tx.Amount,
		Description: tx.Description,
		Type:        tx.Type,
		Status:      models.ItemStatusCreated,
		EntryID:     entry.ID,
		EntryTable:  entry.Table,
		Actor:       actor,
		ResolvedAt:  time.Now().UTC(),
	})
	if err != nil {
		return failure("create", tx.FitID, err)
	}

	item.Status = models.ItemStatusCreated
	item.LinkedEntryID = entry.ID
	item.LinkedTable = entry.Table
	item.Record = rec
	item.Suggestions = nil

	o.logger.WithFields(logger.Fields{
		"fit_id": tx.FitID,
		"entry":  entry.ID,
		"table":  entry.Table,
	}).Info("ledger entry created from transaction")
	return &ActionResult{Success: true, Status: models.ItemStatusCreated, Record: rec, Entry: entry}
}

// Ignore marks a transaction as deliberately not reconciled, with an
// optional reason kept on the record.
func (o *Orchestrator) Ignore(ctx context.Context, tenantID, importID string, item *models.ReconciliationItem, reason, actor string) *ActionResult {
	tx := item.Transaction
	if item.Status.IsTerminal() {
		return failure("ignore", tx.FitID,
			fmt.Errorf("transaction already resolved as %s", item.Status))
	}

	rec, err := o.records.Save(ctx, &models.ReconciliationRecord{
		TenantID:    tenantID,
		ImportID:    importID,
		FitID:       tx.FitID,
		Date:        tx.Date,
		Amount:      tx.Amount,
		Description: tx.Description,
		Type:        tx.Type,
		Status:      models.ItemStatusIgnored,
		Notes:       reason,
		Actor:       actor,
		ResolvedAt:  time.Now().UTC(),
	})
	if err != nil {
		return failure("ignore", tx.FitID, err)
	}

	item.Status = models.ItemStatusIgnored
	item.Record = rec
	item.Suggestions = nil

	o.logger.WithField("fit_id", tx.FitID).Info("transaction ignored")
	return &ActionResult{Success: true, Status: models.ItemStatusIgnored, Record: rec}
}

// RecordImport persists the import event for a parsed statement, with the
// file-level aggregates computed from the transactions.
func (o *Orchestrator) RecordImport(ctx context.Context, tenantID, fileName string, stmt *models.ParsedStatement, actor string) (*models.ReconciliationImport, error) {
	imp := &models.ReconciliationImport{
		TenantID:         tenantID,
		FileName:         fileName,
		BankID:           stmt.BankID,
		AccountID:        stmt.AccountID,
		PeriodStart:      stmt.PeriodStart,
		PeriodEnd:        stmt.PeriodEnd,
		TransactionCount: len(stmt.Transactions),
		Actor:            actor,
	}
	for _, tx := range stmt.Transactions {
		if tx.IsCredit() {
			imp.CreditCount++
			imp.CreditTotal = imp.CreditTotal.Add(tx.AbsoluteAmount)
		} else {
			imp.DebitCount++
			imp.DebitTotal = imp.DebitTotal.Add(tx.AbsoluteAmount)
		}
	}
	return o.imports.Create(ctx, imp)
}

// RefreshReconciledCount recounts the resolutions recorded under the import
// and stores the result. The count never moves backwards.
func (o *Orchestrator) RefreshReconciledCount(ctx context.Context, imp *models.ReconciliationImport) error {
	if imp == nil || imp.ID == "" {
		return nil
	}
	records, err := o.records.ByImport(ctx, imp.TenantID, imp.ID)
	if err != nil {
		return err
	}
	if len(records) <= imp.ReconciledCount {
		return nil
	}
	imp.ReconciledCount = len(records)
	return o.imports.SetReconciledCount(ctx, imp.ID, imp.ReconciledCount)
}

// auditNote builds the settlement note stamped on matched and created
// entries, in the platform's established wording.
func auditNote(tx *models.BankTransaction, actor string) string {
	note := fmt.Sprintf("[CONCILIADO] transação %s (%s)", tx.FitID, tx.Description)
	if actor != "" {
		note += fmt.Sprintf(" por %s", actor)
	}
	return note + fmt.Sprintf(" em %s", time.Now().UTC().Format(time.RFC3339))
}

// settledByTransaction reports whether the entry's notes carry a
// settlement stamp for the given transaction.
func settledByTransaction(entry *models.LedgerEntry, fitID string) bool {
	return strings.Contains(entry.Notes, fmt.Sprintf("[CONCILIADO] transação %s (", fitID))
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
