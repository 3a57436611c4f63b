package models_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/models"
	"github.com/mmdatafocus/weaving_backend/utils"
	"github.com/shopspring/decimal"
)

// setupLedgerDB points the global DB at a fresh in-memory sqlite database with the full schema.
func setupLedgerDB(t *testing.T) context.Context {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	if err := config.ConnectSQLite(dsn); err != nil {
		t.Fatalf("ConnectSQLite: %v", err)
	}
	db := config.GetDB()
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	models.MigrateTable()

	ctx := utils.SetUserNameInContext(context.Background(), "Test")
	return utils.SetCorrelationIdInContext(ctx, "test-"+t.Name())
}

func registerOrder(t *testing.T, ctx context.Context, input models.NewOrder) *models.Order {
	t.Helper()
	if input.OrderDate == "" {
		input.OrderDate = "2024-01-15"
	}
	if input.Pick == 0 {
		input.Pick = 1
	}
	if input.PartyId == 0 {
		input.PartyId = 1
	}
	if input.QualityId == 0 {
		input.QualityId = 1
	}
	order, err := models.RegisterOrder(ctx, &input)
	if err != nil {
		t.Fatalf("RegisterOrder(%s): %v", input.OrderNumber, err)
	}
	return order
}

// derivationOrder is sets=10, pick=2, design A1, two ground colors on beam 1 (Red) and one on beam 2 (Blue).
func derivationOrder(t *testing.T, ctx context.Context) *models.Order {
	t.Helper()
	return registerOrder(t, ctx, models.NewOrder{
		OrderNumber:   "ORD-DERIVE",
		Sets:          10,
		Pick:          2,
		RatePerPiece:  decimal.RequireFromString("2.50"),
		DesignNumbers: []string{"A1"},
		GroundColors: []models.NewGroundColor{
			{Name: "g1", BeamColorId: 1},
			{Name: "g2", BeamColorId: 1},
			{Name: "g3", BeamColorId: 2},
		},
	})
}

func createLot(t *testing.T, ctx context.Context, lotNumber string, lines ...models.NewLotAllocation) *models.Lot {
	t.Helper()
	lot, err := models.CreateLot(ctx, &models.NewLot{
		LotNumber: lotNumber,
		LotDate:   "2024-02-01",
		Lines:     lines,
	})
	if err != nil {
		t.Fatalf("CreateLot(%s): %v", lotNumber, err)
	}
	return lot
}

func ledgerEntry(t *testing.T, ctx context.Context, orderId int, designNumber string) models.DesignLedgerEntry {
	t.Helper()
	entries, err := models.GetOrderAllocationStatus(ctx, &orderId)
	if err != nil {
		t.Fatalf("GetOrderAllocationStatus: %v", err)
	}
	for _, e := range entries {
		if e.DesignNumber == designNumber {
			return *e
		}
	}
	t.Fatalf("no ledger entry for order %d design %s", orderId, designNumber)
	return models.DesignLedgerEntry{}
}

func assertRemaining(t *testing.T, ctx context.Context, orderId int, designNumber string, want int) {
	t.Helper()
	e := ledgerEntry(t, ctx, orderId, designNumber)
	if err := e.CheckInvariant(); err != nil {
		t.Fatalf("invariant: %v", err)
	}
	if e.RemainingSets != want {
		t.Fatalf("order %d design %s: expected remaining=%d, got %d (allocated=%d total=%d)",
			orderId, designNumber, want, e.RemainingSets, e.AllocatedSets, e.TotalSets)
	}
}

func countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := config.GetDB().Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
