package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/gateway"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/errors"
)

func TestEntriesRoundTrip(t *testing.T) {
	store := gateway.NewMemoryStore()
	entries := NewEntries(store)
	ctx := context.Background()

	created, err := entries.Create(ctx, &models.LedgerEntry{
		Table:          models.TableReceivables,
		TenantID:       "acme",
		Description:    "Mensalidade maio",
		Category:       "vendas",
		Amount:         decimal.NewFromFloat(500.00),
		DueDate:        time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		CompetenceDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:         models.EntryStatusPending,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	fetched, err := entries.Get(ctx, models.TableReceivables, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "Mensalidade maio", fetched.Description)
	assert.Equal(t, "vendas", fetched.Category)
	assert.True(t, fetched.Amount.Equal(decimal.NewFromFloat(500.00)))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), fetched.CompetenceDate)
	assert.Equal(t, models.EntryStatusPending, fetched.Status)

	missing, err := entries.Get(ctx, models.TableReceivables, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOpenCandidatesFiltersAndSorts(t *testing.T) {
	store := gateway.NewMemoryStore()
	entries := NewEntries(store)
	ctx := context.Background()

	seed := []struct {
		tenant  string
		status  models.EntryStatus
		dueDate string
	}{
		{"acme", models.EntryStatusPending, "2024-05-01"},
		{"acme", models.EntryStatusOverdue, "2024-05-20"},
		{"acme", models.EntryStatusPaid, "2024-05-10"},
		{"acme", models.EntryStatusCancelled, "2024-05-11"},
		{"other", models.EntryStatusPending, "2024-05-02"},
	}
	for _, s := range seed {
		due, _ := time.Parse("2006-01-02", s.dueDate)
		_, err := entries.Create(ctx, &models.LedgerEntry{
			Table:    models.TablePayables,
			TenantID: s.tenant,
			Amount:   decimal.NewFromFloat(10),
			DueDate:  due,
			Status:   s.status,
		})
		require.NoError(t, err)
	}

	candidates, err := entries.OpenCandidates(ctx, "acme", models.TablePayables, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 2, "paid, cancelled and foreign-tenant entries must be excluded")
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), candidates[0].DueDate, "most recently due first")
}

func TestOpenCandidatesDegradesOnMissingTable(t *testing.T) {
	entries := NewEntries(gateway.NewMemoryStoreWithoutTables())

	candidates, err := entries.OpenCandidates(context.Background(), "acme", models.TableReceivables, 0)
	require.NoError(t, err, "a missing ledger table must not fail the session")
	assert.Empty(t, candidates)
}

func TestMarkPaidAppendsNote(t *testing.T) {
	store := gateway.NewMemoryStore()
	entries := NewEntries(store)
	ctx := context.Background()

	created, err := entries.Create(ctx, &models.LedgerEntry{
		Table:    models.TablePayables,
		TenantID: "acme",
		Amount:   decimal.NewFromFloat(150.00),
		DueDate:  time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Status:   models.EntryStatusPending,
		Notes:    "primeira linha",
	})
	require.NoError(t, err)

	settled, err := entries.MarkPaid(ctx, created,
		decimal.NewFromFloat(150.00), time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), "[CONCILIADO] tx")
	require.NoError(t, err)

	assert.Equal(t, models.EntryStatusPaid, settled.Status)
	assert.True(t, settled.SettledAmount.Equal(decimal.NewFromFloat(150.00)))
	assert.Equal(t, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), settled.SettledDate)
	assert.Equal(t, "primeira linha\n[CONCILIADO] tx", settled.Notes)
}

func TestRecordsByTenantAndConflict(t *testing.T) {
	store := gateway.NewMemoryStore()
	records := NewRecords(store)
	ctx := context.Background()

	score := 85.0
	saved, err := records.Save(ctx, &models.ReconciliationRecord{
		TenantID:    "acme",
		ImportID:    "imp-1",
		FitID:       "TX-1",
		Date:        time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.NewFromFloat(-150.00),
		Description: "PAGTO",
		Type:        models.TransactionTypeDebit,
		Status:      models.ItemStatusMatched,
		EntryID:     "pay-1",
		EntryTable:  models.TablePayables,
		MatchScore:  &score,
		Actor:       "maria",
		ResolvedAt:  time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	index, err := records.ByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Contains(t, index, "TX-1")

	rec := index["TX-1"]
	assert.Equal(t, models.ItemStatusMatched, rec.Status)
	assert.Equal(t, models.TablePayables, rec.EntryTable)
	require.NotNil(t, rec.MatchScore)
	assert.Equal(t, 85.0, *rec.MatchScore)
	assert.True(t, rec.Amount.Equal(decimal.NewFromFloat(-150.00)))
	assert.Equal(t, time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC), rec.ResolvedAt)

	// The (tenant, fitId) guard surfaces as a store conflict.
	_, err = records.Save(ctx, &models.ReconciliationRecord{
		TenantID: "acme", FitID: "TX-1",
		Date: time.Now(), Status: models.ItemStatusIgnored,
	})
	require.Error(t, err)
	appErr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeStoreConflict, appErr.Code)
}

func TestRecordsByTenantDegrades(t *testing.T) {
	records := NewRecords(gateway.NewMemoryStoreWithoutTables())

	index, err := records.ByTenant(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, index)
}

func TestImportsCreateAndCount(t *testing.T) {
	store := gateway.NewMemoryStore()
	imports := NewImports(store)
	ctx := context.Background()

	imp, err := imports.Create(ctx, &models.ReconciliationImport{
		TenantID:         "acme",
		FileName:         "extrato.ofx",
		TransactionCount: 3,
		CreditCount:      1,
		DebitCount:       2,
		CreditTotal:      decimal.NewFromFloat(500.00),
		DebitTotal:       decimal.NewFromFloat(225.25),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, imp.ID)
	assert.False(t, imp.ImportedAt.IsZero())

	require.NoError(t, imports.SetReconciledCount(ctx, imp.ID, 2))

	rows, err := store.List(ctx, "reconciliation_imports", gateway.ListOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Int("reconciled_count"))
	assert.Equal(t, "500", rows[0].String("credit_total"))
}

func TestImportsCreateValidates(t *testing.T) {
	imports := NewImports(gateway.NewMemoryStore())

	_, err := imports.Create(context.Background(), &models.ReconciliationImport{TenantID: "acme"})
	assert.Error(t, err, "an import without a file name must be rejected")
}
