package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/weaving_backend/config"
)

const (
	ReconciliationCheckLedgerInvariant  = "LEDGER_INVARIANT"
	ReconciliationCheckAllocationTotals = "ALLOCATION_TOTALS"
	ReconciliationCheckOrphanAllocation = "ORPHAN_ALLOCATION"
	ReconciliationCheckBeamPieces       = "BEAM_PIECES"
)

// Drift detection output (nightly/admin-triggered).
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. LEDGER_INVARIANT, ALLOCATION_TOTALS
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. DesignLedgerEntry, LotDesignAllocation
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func ListReconciliationReports(ctx context.Context, checkType *string, limit int) ([]*ReconciliationReport, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&ReconciliationReport{})
	if checkType != nil && *checkType != "" {
		q = q.Where("check_type = ?", *checkType)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var reports []*ReconciliationReport
	if err := q.Order("id DESC").Limit(limit).Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}
