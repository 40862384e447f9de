// Package checkpointstore is a thin wrapper over *db.DB exposing the
// per-user sync checkpoint as a small set of named mutations, the way the
// teacher splits persistence concerns into one hand-written-SQL file per
// domain concept rather than a generic repository interface.
package checkpointstore

import (
	"time"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/models"
)

type Store struct {
	db *db.DB
}

func New(database *db.DB) *Store {
	return &Store{db: database}
}

func (s *Store) GetOrCreate(userID int64) (*models.SyncCheckpoint, error) {
	return s.db.GetOrCreateCheckpoint(userID)
}

func (s *Store) MarkInitialSyncStarted(userID int64) error {
	return s.db.MarkInitialSyncStarted(userID)
}

func (s *Store) MarkInitialSyncCompleted(userID int64, earliestPlayedAt time.Time) error {
	return s.db.MarkInitialSyncCompleted(userID, earliestPlayedAt)
}

func (s *Store) MarkPollStarted(userID int64) error {
	return s.db.MarkPollStarted(userID)
}

func (s *Store) MarkPollCompleted(userID int64, latestPlayedAt time.Time) error {
	return s.db.MarkPollCompleted(userID, latestPlayedAt)
}

func (s *Store) MarkError(userID int64, message string) error {
	return s.db.MarkCheckpointError(userID, message)
}

func (s *Store) SetStatus(userID int64, status models.CheckpointStatus) error {
	return s.db.SetCheckpointStatus(userID, status)
}
