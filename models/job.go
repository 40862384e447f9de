package models

import "time"

// JobType distinguishes what kind of unit of work a JobRun records.
type JobType string

const (
	JobImport      JobType = "import"
	JobInitialSync JobType = "initial_sync"
	JobPoll        JobType = "poll"
	JobEnrich      JobType = "enrich"
)

// JobStatus is per-execution outcome tracking — distinct from
// CheckpointStatus, see models.CheckpointStatus.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobError   JobStatus = "error"
)

// JobRun is a ledger entry for one worker unit: one poll, one initial sync
// attempt, one import, or one enrichment pass.
type JobRun struct {
	ID          string
	UserID      int64
	Type        JobType
	Status      JobStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Fetched     int
	Inserted    int
	Skipped     int
	ErrorText   string
}
