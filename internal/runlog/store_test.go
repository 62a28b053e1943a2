package runlog_test

import (
	"context"
	"testing"

	"restframe/internal/history"
	"restframe/internal/runlog"
	"restframe/internal/testsupport"
)

func TestRecordAndQueryEpochs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRun(t, store, "run-1", "/tmp/out.ckpt", 2)

	ctx := context.Background()
	if err := store.RecordEpoch(ctx, "run-1", history.PhaseTrain, 0, 0, []float64{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("RecordEpoch: %v", err)
	}
	if err := store.RecordEpoch(ctx, "run-1", history.PhaseValid, 1, 0, []float64{6, 7, 8, 9, 10}); err != nil {
		t.Fatalf("RecordEpoch valid: %v", err)
	}

	records, err := store.Epochs(ctx, "run-1")
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count: got %d want 2", len(records))
	}
	if records[0].Phase != history.PhaseTrain || records[0].Terms[0] != 1 {
		t.Fatalf("train record wrong: %+v", records[0])
	}
	if records[1].Encoder != 1 || records[1].Terms[4] != 10 {
		t.Fatalf("valid record wrong: %+v", records[1])
	}
}

func TestRecordEpochUpserts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRun(t, store, "run-2", "/tmp/out.ckpt", 1)

	ctx := context.Background()
	if err := store.RecordEpoch(ctx, "run-2", history.PhaseTrain, 0, 3, []float64{1, 1, 1, 1, 1}); err != nil {
		t.Fatalf("first RecordEpoch: %v", err)
	}
	if err := store.RecordEpoch(ctx, "run-2", history.PhaseTrain, 0, 3, []float64{2, 2, 2, 2, 2}); err != nil {
		t.Fatalf("second RecordEpoch: %v", err)
	}

	records, err := store.Epochs(ctx, "run-2")
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("upsert produced %d rows, want 1", len(records))
	}
	if records[0].Terms[0] != 2 {
		t.Fatalf("resumed epoch should overwrite: got %v want 2", records[0].Terms[0])
	}
}

func TestRecordEpochRejectsShortRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRun(t, store, "run-3", "/tmp/out.ckpt", 1)

	if err := store.RecordEpoch(context.Background(), "run-3", history.PhaseTrain, 0, 0, []float64{1, 2}); err == nil {
		t.Fatal("expected error for short loss row")
	}
}

func TestEpochsOrderedByEpoch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRun(t, store, "run-4", "/tmp/out.ckpt", 1)

	ctx := context.Background()
	for _, epoch := range []int{4, 1, 3} {
		if err := store.RecordEpoch(ctx, "run-4", history.PhaseTrain, 0, epoch, []float64{float64(epoch), 0, 0, 0, 0}); err != nil {
			t.Fatalf("RecordEpoch %d: %v", epoch, err)
		}
	}

	records, err := store.Epochs(ctx, "run-4")
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	want := []int{1, 3, 4}
	for i, rec := range records {
		if rec.Epoch != want[i] {
			t.Fatalf("record %d epoch: got %d want %d", i, rec.Epoch, want[i])
		}
	}
}

func TestOpenCreatesSchemaOnFreshFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := runlog.Open(cfg.RunLogPath())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if err := store.StartRun(context.Background(), "run-5", "/tmp/out.ckpt", 1, ""); err != nil {
		t.Fatalf("StartRun on fresh store: %v", err)
	}
}
