package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/models"
	"gorm.io/gorm"
)

// outbox-requeue moves FAILED/DEAD ledger events of one order or lot back to PENDING.
func main() {
	referenceType := flag.String("reference-type", "", "Required: ORDER or LOT")
	referenceId := flag.Int("reference-id", 0, "Required: order or lot id")
	flag.Parse()

	refType := models.LedgerReferenceType(strings.ToUpper(strings.TrimSpace(*referenceType)))
	if refType != models.LedgerReferenceOrder && refType != models.LedgerReferenceLot {
		fmt.Fprintln(os.Stderr, "--reference-type must be ORDER or LOT")
		os.Exit(1)
	}
	if *referenceId <= 0 {
		fmt.Fprintln(os.Stderr, "--reference-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	n, err := models.RequeueLedgerEvents(context.Background(), refType, *referenceId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fmt.Printf("no FAILED/DEAD events for %s %d\n", refType, *referenceId)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "requeue failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("requeued %d event(s) for %s %d\n", n, refType, *referenceId)
}
