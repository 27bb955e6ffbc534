package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"openprices_sync/internal/core/models"
	"openprices_sync/pkg/dbconnect"
)

// SyncRunRepository journals catalog sync runs in sync_runs.
type SyncRunRepository struct {
	DB      *sql.DB
	dialect dbconnect.Dialect
}

func NewSyncRunRepository(db *sql.DB, dialect dbconnect.Dialect) *SyncRunRepository {
	return &SyncRunRepository{DB: db, dialect: dialect}
}

// Start records a running entry for flavor and returns it.
func (r *SyncRunRepository) Start(ctx context.Context, flavor string, startedAt time.Time) (*models.SyncRun, error) {
	run := &models.SyncRun{
		RunID:     uuid.NewString(),
		Flavor:    flavor,
		Status:    models.SyncRunRunning,
		StartedAt: startedAt.UTC(),
	}
	_, err := r.DB.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO sync_runs (run_id, flavor, status, started_at) VALUES (?, ?, ?, ?)
	`), run.RunID, run.Flavor, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}
	return run, nil
}

// Finish stores the final counters and status of run.
func (r *SyncRunRepository) Finish(ctx context.Context, run *models.SyncRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	res, err := r.DB.ExecContext(ctx, r.dialect.Rebind(`
		UPDATE sync_runs
		SET status = ?, finished_at = ?, processed = ?, added = ?, updated = ?,
		    skipped = ?, committed = ?, written = ?, error = ?
		WHERE run_id = ?
	`), string(run.Status), run.FinishedAt.UTC(), run.Processed, run.Added, run.Updated,
		run.Skipped, run.Committed, run.Written, nullString(run.Error), run.RunID)
	if err != nil {
		return fmt.Errorf("failed to finish sync run %s: %w", run.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sync run %s not found", run.RunID)
	}
	return nil
}

// Latest returns the most recent run for flavor, or nil if none was recorded.
func (r *SyncRunRepository) Latest(ctx context.Context, flavor string) (*models.SyncRun, error) {
	var (
		run      models.SyncRun
		status   string
		finished sql.NullTime
		errText  sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, r.dialect.Rebind(`
		SELECT run_id, flavor, status, started_at, finished_at,
		       processed, added, updated, skipped, committed, written, error
		FROM sync_runs WHERE flavor = ?
		ORDER BY started_at DESC LIMIT 1
	`), flavor).Scan(&run.RunID, &run.Flavor, &status, &run.StartedAt, &finished,
		&run.Processed, &run.Added, &run.Updated, &run.Skipped, &run.Committed, &run.Written, &errText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest sync run: %w", err)
	}
	run.Status = models.SyncRunStatus(status)
	run.StartedAt = run.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		run.FinishedAt = &t
	}
	if errText.Valid {
		run.Error = &errText.String
	}
	return &run, nil
}
