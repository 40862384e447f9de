package models

import "time"

// Play is a single playback event. The (UserID, PlayedAt, TrackID) triple is
// the uniqueness key enforced at the database layer; every insert path must
// tolerate a constraint violation as a "skip", not an error.
type Play struct {
	ID        int64
	UserID    int64
	TrackID   int64
	PlayedAt  time.Time
	MsPlayed  int64
	Source    SourceTag
}
