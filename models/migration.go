package models

import (
	"log"

	"github.com/mmdatafocus/weaving_backend/config"
)

func MigrateTable() {
	if err := migrateTables(); err != nil {
		log.Fatal(err)
	}
}

func migrateTables() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&Order{}, &OrderGroundColor{}, &DesignBeamConfig{}, &DesignLedgerEntry{},
		&Lot{}, &LotDesignAllocation{}, &LotBeamPiece{},
		&LedgerEventRecord{},
		&ReconciliationReport{},
	)
}
