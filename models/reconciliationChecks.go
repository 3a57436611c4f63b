package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/utils"
)

// RunLedgerReconciliationChecks writes mismatch rows to reconciliation_reports and
// returns how many it wrote. Intended for a schedule or an admin trigger.
func RunLedgerReconciliationChecks(ctx context.Context) (correlationId string, mismatches int, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db := config.GetDB()
	if db == nil {
		return "", 0, fmt.Errorf("db is nil")
	}

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	now := time.Now().UTC()

	var reports []ReconciliationReport

	// 1) total = allocated + remaining, both non-negative
	type invariantRow struct {
		ID            int
		TotalSets     int
		AllocatedSets int
		RemainingSets int
	}
	var broken []invariantRow
	if err := db.WithContext(ctx).Raw(`
		SELECT id, total_sets, allocated_sets, remaining_sets
		FROM design_ledger_entries
		WHERE total_sets <> allocated_sets + remaining_sets
		   OR allocated_sets < 0
		   OR remaining_sets < 0
		ORDER BY id
	`).Scan(&broken).Error; err != nil {
		return cid, 0, err
	}
	for _, b := range broken {
		reports = append(reports, ReconciliationReport{
			CheckType:  ReconciliationCheckLedgerInvariant,
			EntityType: "DesignLedgerEntry",
			EntityId:   b.ID,
			Details: fmt.Sprintf("total_sets=%d allocated_sets=%d remaining_sets=%d",
				b.TotalSets, b.AllocatedSets, b.RemainingSets),
		})
	}

	// 2) ledger allocated_sets vs sum(lot_design_allocations.allocated_sets)
	type totalsRow struct {
		ID         int
		LedgerSets int
		LotSets    int
	}
	var drifted []totalsRow
	if err := db.WithContext(ctx).Raw(`
		SELECT l.id, l.allocated_sets AS ledger_sets, COALESCE(SUM(a.allocated_sets), 0) AS lot_sets
		FROM design_ledger_entries l
		LEFT JOIN lot_design_allocations a
		  ON a.order_id = l.order_id
		 AND a.design_number = l.design_number
		GROUP BY l.id, l.allocated_sets
		HAVING l.allocated_sets <> COALESCE(SUM(a.allocated_sets), 0)
		ORDER BY l.id
	`).Scan(&drifted).Error; err != nil {
		return cid, 0, err
	}
	for _, d := range drifted {
		reports = append(reports, ReconciliationReport{
			CheckType:  ReconciliationCheckAllocationTotals,
			EntityType: "DesignLedgerEntry",
			EntityId:   d.ID,
			Details:    fmt.Sprintf("allocated_sets=%d != sum(lot_design_allocations.allocated_sets)=%d", d.LedgerSets, d.LotSets),
		})
	}

	// 3) allocations pointing at no ledger entry
	var orphanIds []int
	if err := db.WithContext(ctx).Raw(`
		SELECT a.id
		FROM lot_design_allocations a
		LEFT JOIN design_ledger_entries l
		  ON l.order_id = a.order_id
		 AND l.design_number = a.design_number
		WHERE l.id IS NULL
		ORDER BY a.id
	`).Scan(&orphanIds).Error; err != nil {
		return cid, 0, err
	}
	for _, id := range orphanIds {
		reports = append(reports, ReconciliationReport{
			CheckType:  ReconciliationCheckOrphanAllocation,
			EntityType: "LotDesignAllocation",
			EntityId:   id,
			Details:    "allocation has no matching design ledger entry",
		})
	}

	// 4) stored beam pieces vs allocated_sets * beam_multiplier
	type piecesRow struct {
		ID       int
		Pieces   int
		Expected int
	}
	var wrongPieces []piecesRow
	if err := db.WithContext(ctx).Raw(`
		SELECT p.id, p.pieces, a.allocated_sets * p.beam_multiplier AS expected
		FROM lot_beam_pieces p
		JOIN lot_design_allocations a ON a.id = p.allocation_id
		WHERE p.pieces <> a.allocated_sets * p.beam_multiplier
		ORDER BY p.id
	`).Scan(&wrongPieces).Error; err != nil {
		return cid, 0, err
	}
	for _, w := range wrongPieces {
		reports = append(reports, ReconciliationReport{
			CheckType:  ReconciliationCheckBeamPieces,
			EntityType: "LotBeamPiece",
			EntityId:   w.ID,
			Details:    fmt.Sprintf("pieces=%d != allocated_sets*beam_multiplier=%d", w.Pieces, w.Expected),
		})
	}

	if len(reports) == 0 {
		return cid, 0, nil
	}
	for i := range reports {
		reports[i].CorrelationId = cid
		reports[i].CreatedAt = now
	}
	if err := db.WithContext(ctx).CreateInBatches(&reports, 100).Error; err != nil {
		config.LogError(config.GetLogger(), "models/reconciliationChecks.go", "RunLedgerReconciliationChecks", "write reconciliation reports", len(reports), err)
		return cid, 0, err
	}
	return cid, len(reports), nil
}
