package models_test

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/weaving_backend/models"
)

func TestDesignLedgerEntry_CheckInvariant(t *testing.T) {
	cases := []struct {
		name    string
		entry   models.DesignLedgerEntry
		wantErr bool
	}{
		{"fresh", models.DesignLedgerEntry{TotalSets: 10, AllocatedSets: 0, RemainingSets: 10}, false},
		{"partly allocated", models.DesignLedgerEntry{TotalSets: 10, AllocatedSets: 4, RemainingSets: 6}, false},
		{"fully allocated", models.DesignLedgerEntry{TotalSets: 10, AllocatedSets: 10, RemainingSets: 0}, false},
		{"over allocated", models.DesignLedgerEntry{TotalSets: 10, AllocatedSets: 11, RemainingSets: -1}, true},
		{"negative allocated", models.DesignLedgerEntry{TotalSets: 10, AllocatedSets: -1, RemainingSets: 11}, true},
		{"remaining drift", models.DesignLedgerEntry{TotalSets: 10, AllocatedSets: 3, RemainingSets: 6}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.entry.OrderId = 1
			tc.entry.DesignNumber = "A1"
			err := tc.entry.CheckInvariant()
			if tc.wantErr {
				var violation *models.InvariantViolationError
				if !errors.As(err, &violation) {
					t.Fatalf("expected InvariantViolationError, got %v", err)
				}
				if violation.OrderId != 1 || violation.DesignNumber != "A1" {
					t.Fatalf("violation carries wrong key: %+v", violation)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}
