package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/models"
	"github.com/mmdatafocus/weaving_backend/workflow"
)

// ledger-reconcile checks every design ledger entry against its invariant, the lot
// allocations and the stored beam pieces, and writes mismatches to reconciliation_reports.
func main() {
	failOnMismatch := flag.Bool("fail-on-mismatch", false, "Exit with status 2 when any mismatch is found")
	show := flag.Bool("show", false, "Print the reports written by this run")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	ctx := context.Background()

	mismatches, err := workflow.RunLedgerReconciliationChecks(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("reconciliation finished: %d mismatch(es)\n", mismatches)

	if *show && mismatches > 0 {
		reports, err := models.ListReconciliationReports(ctx, nil, mismatches)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list reports: %v\n", err)
			os.Exit(1)
		}
		for _, r := range reports {
			fmt.Printf("%-18s %-20s id=%-8d %s\n", r.CheckType, r.EntityType, r.EntityId, r.Details)
		}
	}

	if *failOnMismatch && mismatches > 0 {
		os.Exit(2)
	}
}
