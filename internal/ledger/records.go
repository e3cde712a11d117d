package ledger

import (
	"context"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/gateway"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/errors"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/logger"
)

// Records reads and writes the durable reconciliation records that key the
// re-import dedup by (tenant, fitId).
type Records struct {
	gw     gateway.Gateway
	logger logger.Logger
}

// NewRecords creates a records repository over the given gateway.
func NewRecords(gw gateway.Gateway) *Records {
	return &Records{
		gw:     gw,
		logger: logger.GetGlobalLogger().WithComponent("ledger.records"),
	}
}

// ByTenant returns the tenant's records indexed by fitId. A missing table
// degrades to an empty index, so every transaction presents as new.
func (r *Records) ByTenant(ctx context.Context, tenantID string) (map[string]*models.ReconciliationRecord, error) {
	rows, err := r.gw.List(ctx, tableRecords, gateway.ListOptions{
		Filters: []gateway.Filter{
			{Field: "tenant_id", Op: gateway.OpEqual, Value: tenantID},
		},
	})
	if err == gateway.ErrTableNotFound {
		r.logger.Warn("reconciliation records unavailable, prior resolutions will not be rehydrated")
		return map[string]*models.ReconciliationRecord{}, nil
	}
	if err != nil {
		return nil, errors.GatewayError(errors.CodeStoreUnavailable, tableRecords, err).
			WithContext("tenant", tenantID)
	}

	index := make(map[string]*models.ReconciliationRecord, len(rows))
	for _, row := range rows {
		rec := decodeRecord(row)
		if rec.FitID == "" {
			continue
		}
		index[rec.FitID] = rec
	}
	return index, nil
}

// ByImport returns the records created under one import.
func (r *Records) ByImport(ctx context.Context, tenantID, importID string) ([]*models.ReconciliationRecord, error) {
	rows, err := r.gw.List(ctx, tableRecords, gateway.ListOptions{
		Filters: []gateway.Filter{
			{Field: "tenant_id", Op: gateway.OpEqual, Value: tenantID},
			{Field: "import_id", Op: gateway.OpEqual, Value: importID},
		},
	})
	if err == gateway.ErrTableNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.GatewayError(errors.CodeStoreUnavailable, tableRecords, err).
			WithContext("import", importID)
	}

	records := make([]*models.ReconciliationRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, decodeRecord(row))
	}
	return records, nil
}

// Save persists a new record. A uniqueness violation on (tenant, fitId)
// surfaces as a store conflict so the caller can treat the transaction as
// already resolved.
func (r *Records) Save(ctx context.Context, rec *models.ReconciliationRecord) (*models.ReconciliationRecord, error) {
	row, err := r.gw.Create(ctx, tableRecords, encodeRecord(rec))
	if err == gateway.ErrConflict {
		return nil, errors.GatewayError(errors.CodeStoreConflict, tableRecords, err).
			WithContext("fit_id", rec.FitID)
	}
	if err != nil {
		return nil, errors.GatewayError(errors.CodeStoreFailure, tableRecords, err).
			WithContext("fit_id", rec.FitID)
	}
	return decodeRecord(row), nil
}
