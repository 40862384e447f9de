package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/playback-history/collector/models"
)

func scanCheckpoint(row *sql.Row) (*models.SyncCheckpoint, error) {
	c := &models.SyncCheckpoint{}
	var initStarted, initCompleted, initEarliest, pollStarted, pollCompleted, pollLatest sql.NullTime
	err := row.Scan(
		&c.UserID, &c.Status,
		&initStarted, &initCompleted, &initEarliest,
		&pollStarted, &pollCompleted, &pollLatest,
		&c.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.InitialSyncStartedAt = nullTimePtr(initStarted)
	c.InitialSyncCompletedAt = nullTimePtr(initCompleted)
	c.InitialSyncEarliestAt = nullTimePtr(initEarliest)
	c.LastPollStartedAt = nullTimePtr(pollStarted)
	c.LastPollCompletedAt = nullTimePtr(pollCompleted)
	c.LastPollLatestPlayedAt = nullTimePtr(pollLatest)
	return c, nil
}

func nullTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

const checkpointColumns = `user_id, status, initial_sync_started_at, initial_sync_completed_at,
	initial_sync_earliest_played_at, last_poll_started_at, last_poll_completed_at,
	last_poll_latest_played_at, error_message`

// GetOrCreateCheckpoint materializes a checkpoint row for a user on first
// worker touch.
func (d *DB) GetOrCreateCheckpoint(userID int64) (*models.SyncCheckpoint, error) {
	row := d.QueryRow(`SELECT `+checkpointColumns+` FROM sync_checkpoints WHERE user_id = ?`, userID)
	existing, err := scanCheckpoint(row)
	if err != nil {
		return nil, fmt.Errorf("db: getting checkpoint for user %d: %w", userID, err)
	}
	if existing != nil {
		return existing, nil
	}

	_, err = d.Exec(`INSERT INTO sync_checkpoints (user_id, status) VALUES (?, ?)`, userID, models.CheckpointIdle)
	if err != nil {
		return nil, fmt.Errorf("db: creating checkpoint for user %d: %w", userID, err)
	}
	return &models.SyncCheckpoint{UserID: userID, Status: models.CheckpointIdle}, nil
}

func (d *DB) SetCheckpointStatus(userID int64, status models.CheckpointStatus) error {
	_, err := d.Exec(`UPDATE sync_checkpoints SET status = ? WHERE user_id = ?`, status, userID)
	return err
}

func (d *DB) MarkInitialSyncStarted(userID int64) error {
	now := time.Now().UTC()
	_, err := d.Exec(`
		UPDATE sync_checkpoints SET status = ?, initial_sync_started_at = ? WHERE user_id = ?`,
		models.CheckpointSyncing, now, userID)
	return err
}

func (d *DB) MarkInitialSyncCompleted(userID int64, earliestPlayedAt time.Time) error {
	now := time.Now().UTC()
	_, err := d.Exec(`
		UPDATE sync_checkpoints
		SET status = ?, initial_sync_completed_at = ?, initial_sync_earliest_played_at = ?, error_message = ''
		WHERE user_id = ?`,
		models.CheckpointIdle, now, earliestPlayedAt.UTC(), userID)
	return err
}

func (d *DB) MarkPollStarted(userID int64) error {
	now := time.Now().UTC()
	_, err := d.Exec(`UPDATE sync_checkpoints SET last_poll_started_at = ? WHERE user_id = ?`, now, userID)
	return err
}

// MarkPollCompleted enforces the checkpoint-monotonicity invariant: the
// stored latest-played-at only ever advances.
func (d *DB) MarkPollCompleted(userID int64, latestPlayedAt time.Time) error {
	now := time.Now().UTC()
	_, err := d.Exec(`
		UPDATE sync_checkpoints
		SET status = ?, last_poll_completed_at = ?, error_message = '',
			last_poll_latest_played_at = CASE
				WHEN last_poll_latest_played_at IS NULL OR ? > last_poll_latest_played_at
				THEN ? ELSE last_poll_latest_played_at END
		WHERE user_id = ?`,
		models.CheckpointIdle, now, latestPlayedAt.UTC(), latestPlayedAt.UTC(), userID)
	return err
}

func (d *DB) MarkCheckpointError(userID int64, message string) error {
	_, err := d.Exec(`UPDATE sync_checkpoints SET status = ?, error_message = ? WHERE user_id = ?`,
		models.CheckpointError, message, userID)
	return err
}
