package testsupport

import (
	"context"
	"testing"

	"restframe/internal/config"
	"restframe/internal/runlog"
)

// MustOpenStore opens a runlog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runlog.Store {
	t.Helper()

	store, err := runlog.Open(cfg.RunLogPath())
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun registers a training run for tests using the provided store.
func NewRun(t testing.TB, store *runlog.Store, id, outfile string, encoders int) {
	t.Helper()

	if err := store.StartRun(context.Background(), id, outfile, encoders, "test"); err != nil {
		t.Fatalf("store.StartRun: %v", err)
	}
}
