// Package jobledger is the thin wrapper over *db.DB that records job-run
// lifecycle: one row per execution of an import/initial-sync/poll/enrich
// cycle, consumed by the operational status tool handlers.
package jobledger

import (
	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/models"
)

type Ledger struct {
	db *db.DB
}

func New(database *db.DB) *Ledger {
	return &Ledger{db: database}
}

func (l *Ledger) Begin(userID int64, jobType models.JobType) (*models.JobRun, error) {
	return l.db.BeginJobRun(userID, jobType)
}

func (l *Ledger) Finish(job *models.JobRun, fetched, inserted, skipped int) error {
	return l.db.FinishJobRun(job.ID, fetched, inserted, skipped)
}

func (l *Ledger) Fail(job *models.JobRun, cause error) error {
	return l.db.FailJobRun(job.ID, cause.Error())
}

func (l *Ledger) Recent(userID int64, limit int) ([]*models.JobRun, error) {
	return l.db.ListRecentJobRuns(userID, limit)
}
