package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playback-history/collector/models"
)

func (d *DB) CreateImportJob(userID int64, path string, sizeBytes int64) (*models.ImportJob, error) {
	job := &models.ImportJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.ImportPending,
		Path:      path,
		SizeBytes: sizeBytes,
		Format:    models.ImportFormatUnknown,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := d.Exec(`
		INSERT INTO import_jobs (id, user_id, status, path, size_bytes, format, records_ingested, created_at, updated_at, error_text)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, '')`,
		job.ID, job.UserID, job.Status, job.Path, job.SizeBytes, job.Format, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db: creating import job for user %d: %w", userID, err)
	}
	return job, nil
}

func (d *DB) SetImportJobStatus(jobID string, status models.ImportStatus) error {
	_, err := d.Exec(`UPDATE import_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), jobID)
	return err
}

func (d *DB) SetImportJobFormat(jobID string, format models.ImportFormat) error {
	_, err := d.Exec(`UPDATE import_jobs SET format = ?, updated_at = ? WHERE id = ?`,
		format, time.Now().UTC(), jobID)
	return err
}

// FinishImportJob records the final record count and played-at range and
// flips the job to success.
func (d *DB) FinishImportJob(jobID string, recordsIngested int, earliest, latest *time.Time) error {
	var earliestVal, latestVal sql.NullTime
	if earliest != nil {
		earliestVal = sql.NullTime{Time: earliest.UTC(), Valid: true}
	}
	if latest != nil {
		latestVal = sql.NullTime{Time: latest.UTC(), Valid: true}
	}
	_, err := d.Exec(`
		UPDATE import_jobs
		SET status = ?, records_ingested = ?, earliest_played_at = ?, latest_played_at = ?, updated_at = ?
		WHERE id = ?`,
		models.ImportSuccess, recordsIngested, earliestVal, latestVal, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("db: finishing import job %s: %w", jobID, err)
	}
	return nil
}

func (d *DB) FailImportJob(jobID string, errText string) error {
	_, err := d.Exec(`
		UPDATE import_jobs SET status = ?, error_text = ?, updated_at = ? WHERE id = ?`,
		models.ImportError, errText, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("db: failing import job %s: %w", jobID, err)
	}
	return nil
}

func scanImportJob(scan func(dest ...any) error) (*models.ImportJob, error) {
	j := &models.ImportJob{}
	var earliest, latest sql.NullTime
	err := scan(&j.ID, &j.UserID, &j.Status, &j.Path, &j.SizeBytes, &j.Format,
		&j.RecordsIngested, &earliest, &latest, &j.CreatedAt, &j.UpdatedAt, &j.ErrorText)
	if err != nil {
		return nil, err
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if earliest.Valid {
		t := earliest.Time.UTC()
		j.EarliestPlayed = &t
	}
	if latest.Valid {
		t := latest.Time.UTC()
		j.LatestPlayed = &t
	}
	return j, nil
}

const importJobColumns = `id, user_id, status, path, size_bytes, format,
	records_ingested, earliest_played_at, latest_played_at, created_at, updated_at, error_text`

// ListPendingImportJobs backs the run loop's "claim pending imports" phase.
func (d *DB) ListPendingImportJobs() ([]*models.ImportJob, error) {
	rows, err := d.Query(`SELECT `+importJobColumns+` FROM import_jobs WHERE status = ? ORDER BY created_at ASC`, models.ImportPending)
	if err != nil {
		return nil, fmt.Errorf("db: listing pending import jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.ImportJob
	for rows.Next() {
		j, err := scanImportJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (d *DB) GetImportJob(jobID string) (*models.ImportJob, error) {
	row := d.QueryRow(`SELECT `+importJobColumns+` FROM import_jobs WHERE id = ?`, jobID)
	j, err := scanImportJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: getting import job %s: %w", jobID, err)
	}
	return j, nil
}

func (d *DB) ListRecentImportJobs(userID int64, limit int) ([]*models.ImportJob, error) {
	rows, err := d.Query(`
		SELECT `+importJobColumns+`
		FROM import_jobs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: listing import jobs for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.ImportJob
	for rows.Next() {
		j, err := scanImportJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
