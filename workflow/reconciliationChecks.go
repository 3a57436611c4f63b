package workflow

import (
	"context"

	"github.com/mmdatafocus/weaving_backend/models"
	"github.com/sirupsen/logrus"
)

// RunLedgerReconciliationChecks writes mismatch rows to reconciliation_reports.
// This is intended to be run on a schedule (nightly) or via an admin trigger.
func RunLedgerReconciliationChecks(ctx context.Context, logger *logrus.Logger) (int, error) {
	correlationId, mismatches, err := models.RunLedgerReconciliationChecks(ctx)
	if err != nil {
		return 0, err
	}
	if logger != nil {
		entry := logger.WithFields(logrus.Fields{
			"field":          "ReconciliationChecks",
			"correlation_id": correlationId,
			"mismatches":     mismatches,
		})
		if mismatches > 0 {
			entry.Warn("ledger reconciliation found mismatches")
		} else {
			entry.Info("ledger reconciliation checks completed")
		}
	}
	return mismatches, nil
}
