package main

import (
	"fmt"
	"os"

	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/models"
)

// ledger-migrate runs AutoMigrate as a one-off job, for deployments that start the
// server with SKIP_MIGRATIONS=true.
func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()
	fmt.Println("migrations applied")
}
