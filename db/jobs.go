package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playback-history/collector/models"
)

// BeginJobRun inserts a running job row and returns its generated ID.
func (d *DB) BeginJobRun(userID int64, jobType models.JobType) (*models.JobRun, error) {
	j := &models.JobRun{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      jobType,
		Status:    models.JobRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := d.Exec(`
		INSERT INTO job_runs (id, user_id, type, status, started_at, fetched, inserted, skipped, error_text)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, '')`,
		j.ID, j.UserID, j.Type, j.Status, j.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("db: beginning job run for user %d: %w", userID, err)
	}
	return j, nil
}

func (d *DB) FinishJobRun(jobID string, fetched, inserted, skipped int) error {
	now := time.Now().UTC()
	_, err := d.Exec(`
		UPDATE job_runs SET status = ?, completed_at = ?, fetched = ?, inserted = ?, skipped = ?
		WHERE id = ?`,
		models.JobSuccess, now, fetched, inserted, skipped, jobID)
	if err != nil {
		return fmt.Errorf("db: finishing job run %s: %w", jobID, err)
	}
	return nil
}

func (d *DB) FailJobRun(jobID string, errText string) error {
	now := time.Now().UTC()
	_, err := d.Exec(`
		UPDATE job_runs SET status = ?, completed_at = ?, error_text = ? WHERE id = ?`,
		models.JobError, now, errText, jobID)
	if err != nil {
		return fmt.Errorf("db: failing job run %s: %w", jobID, err)
	}
	return nil
}

func scanJobRun(scan func(dest ...any) error) (*models.JobRun, error) {
	j := &models.JobRun{}
	var completedAt sql.NullTime
	err := scan(&j.ID, &j.UserID, &j.Type, &j.Status, &j.StartedAt, &completedAt,
		&j.Fetched, &j.Inserted, &j.Skipped, &j.ErrorText)
	if err != nil {
		return nil, err
	}
	j.StartedAt = j.StartedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	return j, nil
}

func (d *DB) ListRecentJobRuns(userID int64, limit int) ([]*models.JobRun, error) {
	rows, err := d.Query(`
		SELECT id, user_id, type, status, started_at, completed_at, fetched, inserted, skipped, error_text
		FROM job_runs WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: listing job runs for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.JobRun
	for rows.Next() {
		j, err := scanJobRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
