package models

import "time"

type SyncRunStatus string

const (
	SyncRunRunning   SyncRunStatus = "running"
	SyncRunSucceeded SyncRunStatus = "succeeded"
	SyncRunFailed    SyncRunStatus = "failed"
)

// SyncRun is one journal entry per catalog sync invocation.
type SyncRun struct {
	RunID      string        `json:"run_id"`
	Flavor     string        `json:"flavor"`
	Status     SyncRunStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at"`
	Processed  int           `json:"processed"`
	Added      int           `json:"added"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Committed  int           `json:"committed"`
	Written    int           `json:"written"`
	Error      *string       `json:"error"`
}
