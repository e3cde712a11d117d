package ledger

import (
	"context"
	"time"

	"github.com/raulcamilotti-dev/bank-reconciliation/internal/gateway"
	"github.com/raulcamilotti-dev/bank-reconciliation/internal/models"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/errors"
	"github.com/raulcamilotti-dev/bank-reconciliation/pkg/logger"
)

// Imports reads and writes import events through the gateway.
type Imports struct {
	gw     gateway.Gateway
	logger logger.Logger
}

// NewImports creates an imports repository over the given gateway.
func NewImports(gw gateway.Gateway) *Imports {
	return &Imports{
		gw:     gw,
		logger: logger.GetGlobalLogger().WithComponent("ledger.imports"),
	}
}

// Create persists a new import event. ImportedAt is stamped when zero. A
// missing table degrades to returning the import unpersisted, with no id.
func (i *Imports) Create(ctx context.Context, imp *models.ReconciliationImport) (*models.ReconciliationImport, error) {
	if err := imp.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryReconciliation, errors.CodeInvalidAction,
			"import event failed validation")
	}
	if imp.ImportedAt.IsZero() {
		imp.ImportedAt = time.Now().UTC()
	}

	row, err := i.gw.Create(ctx, tableImports, encodeImport(imp))
	if err == gateway.ErrTableNotFound {
		i.logger.Warn("import table unavailable, the import event will not be recorded")
		return imp, nil
	}
	if err != nil {
		return nil, errors.GatewayError(errors.CodeStoreFailure, tableImports, err).
			WithContext("file", imp.FileName)
	}
	return decodeImport(row), nil
}

// SetReconciledCount updates the stored reconciled count for an import.
func (i *Imports) SetReconciledCount(ctx context.Context, importID string, count int) error {
	if importID == "" {
		return nil
	}
	_, err := i.gw.Update(ctx, tableImports, gateway.Row{
		"id":               importID,
		"reconciled_count": count,
	})
	if err == gateway.ErrTableNotFound || err == gateway.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.GatewayError(errors.CodeStoreFailure, tableImports, err).
			WithContext("import", importID)
	}
	return nil
}
