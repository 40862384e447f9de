package models

import "time"

// CheckpointStatus is the user-level worker lifecycle state. It is a
// distinct domain from JobStatus (per-execution) — the two are never
// collapsed into one enum, per spec.md's open question in §9.
type CheckpointStatus string

const (
	CheckpointIdle    CheckpointStatus = "idle"
	CheckpointPaused  CheckpointStatus = "paused"
	CheckpointSyncing CheckpointStatus = "syncing"
	CheckpointError   CheckpointStatus = "error"
)

// SyncCheckpoint is the per-user bookmark the run loop reads and advances
// every cycle.
type SyncCheckpoint struct {
	UserID                  int64
	Status                  CheckpointStatus
	InitialSyncStartedAt    *time.Time
	InitialSyncCompletedAt  *time.Time
	InitialSyncEarliestAt   *time.Time
	LastPollStartedAt       *time.Time
	LastPollCompletedAt     *time.Time
	LastPollLatestPlayedAt  *time.Time
	ErrorMessage            string
}

// NeedsInitialSync reports whether the backward pager has never completed
// for this user.
func (c *SyncCheckpoint) NeedsInitialSync() bool {
	return c.InitialSyncCompletedAt == nil
}
