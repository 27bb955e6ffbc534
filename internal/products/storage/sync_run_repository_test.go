package storage

import (
	"context"
	"testing"
	"time"

	"openprices_sync/internal/core/models"
	"openprices_sync/pkg/dbconnect"
)

func TestSyncRunJournal(t *testing.T) {
	ctx := context.Background()
	repo := NewSyncRunRepository(openTestDB(t), dbconnect.DialectSQLite)

	if run, err := repo.Latest(ctx, "off"); err != nil || run != nil {
		t.Fatalf("Latest() on empty journal = %v, %v", run, err)
	}

	started := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	run, err := repo.Start(ctx, "off", started)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if run.RunID == "" || run.Status != models.SyncRunRunning {
		t.Errorf("Start() = %+v", run)
	}

	msg := "storage write failed"
	run.Status = models.SyncRunFailed
	run.Processed, run.Added, run.Updated, run.Skipped, run.Committed, run.Written = 10, 4, 2, 4, 6, 5
	run.Error = &msg
	if err := repo.Finish(ctx, run); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	got, err := repo.Latest(ctx, "off")
	if err != nil || got == nil {
		t.Fatalf("Latest() = %v, %v", got, err)
	}
	if got.RunID != run.RunID || got.Status != models.SyncRunFailed {
		t.Errorf("Latest() = %+v", got)
	}
	if got.Processed != 10 || got.Added != 4 || got.Updated != 2 || got.Skipped != 4 || got.Committed != 6 || got.Written != 5 {
		t.Errorf("counters = %+v", got)
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("Error = %v", got.Error)
	}
	if !got.StartedAt.Equal(started) || got.FinishedAt == nil {
		t.Errorf("timestamps = %v / %v", got.StartedAt, got.FinishedAt)
	}

	if run, _ := repo.Latest(ctx, "obf"); run != nil {
		t.Errorf("Latest(obf) = %+v, want nil", run)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	repo := NewSyncRunRepository(openTestDB(t), dbconnect.DialectSQLite)
	err := repo.Finish(context.Background(), &models.SyncRun{RunID: "missing", Status: models.SyncRunSucceeded})
	if err == nil {
		t.Error("expected error for unknown run")
	}
}
