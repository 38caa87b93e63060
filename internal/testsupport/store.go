package testsupport

import (
	"testing"

	"pendant/internal/config"
	"pendant/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
