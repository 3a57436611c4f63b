package config

import (
	"os"
	"strings"
)

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// LedgerEventsEnabled turns on the ledger event outbox:
// mutations write LedgerEventRecord rows and the server runs the dispatcher.
//
// Set via env:
// - LEDGER_EVENTS_ENABLED=true
func LedgerEventsEnabled() bool {
	return envBool("LEDGER_EVENTS_ENABLED")
}

// StrictLotStatusTransitions rejects lot status moves that go backwards
// (e.g. DELIVERED -> PENDING). Off by default; backward moves are then only logged.
//
// Set via env:
// - STRICT_LOT_STATUS_TRANSITIONS=true
func StrictLotStatusTransitions() bool {
	return envBool("STRICT_LOT_STATUS_TRANSITIONS")
}
