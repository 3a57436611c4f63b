package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/weaving_backend/models"
)

func TestRegisterOrder_OpensLedgerAndBeamConfigs(t *testing.T) {
	ctx := setupLedgerDB(t)

	order := registerOrder(t, ctx, models.NewOrder{
		OrderNumber:   "ORD-1",
		Sets:          12,
		Pick:          3,
		DesignNumbers: []string{" d-101 ", "D-102", "d-101"},
		GroundColors: []models.NewGroundColor{
			{Name: "Navy", BeamColorId: 5},
			{Name: "Sky", BeamColorId: 5},
		},
	})

	if len(order.Designs) != 2 {
		t.Fatalf("expected 2 designs after normalization, got %d", len(order.Designs))
	}
	if order.Designs[0].DesignNumber != "D-101" || order.Designs[1].DesignNumber != "D-102" {
		t.Fatalf("unexpected design numbers %q, %q", order.Designs[0].DesignNumber, order.Designs[1].DesignNumber)
	}
	for _, d := range order.Designs {
		if d.TotalSets != 12 || d.AllocatedSets != 0 || d.RemainingSets != 12 {
			t.Fatalf("design %s: unexpected ledger %+v", d.DesignNumber, d)
		}
	}
	if len(order.GroundColors) != 2 {
		t.Fatalf("expected 2 ground colors, got %d", len(order.GroundColors))
	}
	if n := countRows(t, &models.DesignBeamConfig{}, "order_id = ? AND beam_color_id = ? AND beam_multiplier = ?", order.ID, 5, 6); n != 2 {
		t.Fatalf("expected 2 beam configs with multiplier 6, got %d", n)
	}
}

func TestRegisterOrder_Validation(t *testing.T) {
	ctx := setupLedgerDB(t)

	registerOrder(t, ctx, models.NewOrder{OrderNumber: "ORD-DUP", Sets: 5, DesignNumbers: []string{"A"}})

	_, err := models.RegisterOrder(ctx, &models.NewOrder{
		OrderNumber: "ORD-DUP", PartyId: 1, QualityId: 1, Sets: 5, Pick: 1, OrderDate: "2024-01-01",
		DesignNumbers: []string{"B"},
	})
	if !errors.Is(err, models.ErrDuplicateOrderNumber) {
		t.Fatalf("expected ErrDuplicateOrderNumber, got %v", err)
	}

	_, err = models.RegisterOrder(ctx, &models.NewOrder{
		OrderNumber: "ORD-BAD", PartyId: 1, QualityId: 1, Sets: 5, Pick: 1, OrderDate: "2024-01-01",
		DesignNumbers: []string{"A#1"},
	})
	if !errors.Is(err, models.ErrInvalidDesignNumber) {
		t.Fatalf("expected ErrInvalidDesignNumber, got %v", err)
	}

	_, err = models.RegisterOrder(ctx, &models.NewOrder{
		OrderNumber: "ORD-ZERO", PartyId: 1, QualityId: 1, Sets: 0, Pick: 1, OrderDate: "2024-01-01",
		DesignNumbers: []string{"A"},
	})
	if err == nil {
		t.Fatalf("expected validation error for sets=0")
	}

	if n := countRows(t, &models.Order{}, ""); n != 1 {
		t.Fatalf("expected only the first order to be stored, got %d", n)
	}
}

func TestDeleteOrder_CascadesAllocationsAcrossLots(t *testing.T) {
	ctx := setupLedgerDB(t)

	order := registerOrder(t, ctx, models.NewOrder{
		OrderNumber:   "ORD-CASCADE",
		Sets:          20,
		DesignNumbers: []string{"A1", "A2"},
		GroundColors:  []models.NewGroundColor{{Name: "g", BeamColorId: 1}},
	})
	other := registerOrder(t, ctx, models.NewOrder{
		OrderNumber:   "ORD-OTHER",
		Sets:          20,
		DesignNumbers: []string{"B1"},
	})

	lot1 := createLot(t, ctx, "LOT-A", models.NewLotAllocation{OrderId: order.ID, DesignNumber: "A1", Sets: 5})
	lot2 := createLot(t, ctx, "LOT-B",
		models.NewLotAllocation{OrderId: order.ID, DesignNumber: "A2", Sets: 3},
		models.NewLotAllocation{OrderId: other.ID, DesignNumber: "B1", Sets: 4},
	)

	if _, err := models.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}

	if n := countRows(t, &models.LotDesignAllocation{}, "order_id = ?", order.ID); n != 0 {
		t.Fatalf("expected allocations of deleted order to be gone, got %d", n)
	}
	if n := countRows(t, &models.DesignLedgerEntry{}, "order_id = ?", order.ID); n != 0 {
		t.Fatalf("expected ledger entries of deleted order to be gone, got %d", n)
	}
	if n := countRows(t, &models.DesignBeamConfig{}, "order_id = ?", order.ID); n != 0 {
		t.Fatalf("expected beam configs of deleted order to be gone, got %d", n)
	}

	// emptied lot stays, visible with no allocations
	emptied, err := models.GetLot(ctx, lot1.ID)
	if err != nil {
		t.Fatalf("GetLot(emptied): %v", err)
	}
	if len(emptied.Allocations) != 0 || emptied.TotalPieces != 0 {
		t.Fatalf("expected emptied lot, got %d allocations / %d pieces", len(emptied.Allocations), emptied.TotalPieces)
	}

	mixed, err := models.GetLot(ctx, lot2.ID)
	if err != nil {
		t.Fatalf("GetLot(mixed): %v", err)
	}
	if len(mixed.Allocations) != 1 || mixed.Allocations[0].OrderId != other.ID {
		t.Fatalf("expected only the other order's allocation to remain, got %+v", mixed.Allocations)
	}
	assertRemaining(t, ctx, other.ID, "B1", 16)

	// the surviving lot can still be deleted and credits the other order
	if _, err := models.DeleteLot(ctx, lot2.ID); err != nil {
		t.Fatalf("DeleteLot after cascade: %v", err)
	}
	assertRemaining(t, ctx, other.ID, "B1", 20)

	if _, err := models.DeleteOrder(ctx, order.ID); !errors.Is(err, models.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
}
