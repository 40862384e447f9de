package musicrepo

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/models"
)

// ArtistInput is the loosely-typed identity a caller has for an artist at
// ingest time: a provider id when the source is the Spotify API, or just a
// name when it came from an import format that never saw one.
type ArtistInput struct {
	Name       string
	ProviderID string
}

// PlayRecord is one normalized (played_at, track, artists, ms_played) tuple
// as produced by the Spotify client's page parser or the ZIP importer's
// per-line normalizer — the common currency ProcessBatch consumes regardless
// of where the page came from.
type PlayRecord struct {
	PlayedAt        time.Time
	TrackName       string
	TrackProviderID string
	Album           string
	DurationMs      int64
	Artists         []ArtistInput
	MsPlayed        int64
	Source          models.SourceTag
}

// BatchResult is what ProcessBatch reports back: counts plus the played_at
// range actually observed, which the initial-sync pager uses to detect
// progress and the importer uses to finalize an ImportJob.
type BatchResult struct {
	Inserted    int
	Skipped     int
	MinPlayedAt time.Time
	MaxPlayedAt time.Time
}

// Repository is the music-domain façade over *db.DB: upserts, linking, and
// batch play-history ingestion, all transaction-scoped.
type Repository struct {
	db     *db.DB
	logger *log.Logger
}

func New(database *db.DB) *Repository {
	return &Repository{
		db:     database,
		logger: log.New(os.Stdout, "musicrepo: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// ProcessBatch upserts every track/artist identity in records and inserts
// their plays, all inside a single transaction. A crash mid-batch loses only
// the in-flight batch; retrying is always safe because play insertion is
// idempotent on the (user, played_at, track) unique constraint.
func (r *Repository) ProcessBatch(userID int64, records []PlayRecord) (BatchResult, error) {
	var result BatchResult
	if len(records) == 0 {
		return result, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return result, fmt.Errorf("musicrepo: beginning batch transaction: %w", err)
	}
	defer tx.Rollback()

	var minPA, maxPA time.Time
	for _, rec := range records {
		if rec.PlayedAt.IsZero() {
			// An import record missing played_at is skipped, not a hard failure.
			result.Skipped++
			continue
		}
		playedAt := rec.PlayedAt.UTC()

		trackID, err := r.upsertTrackWithArtists(tx, rec)
		if err != nil {
			return BatchResult{}, fmt.Errorf("musicrepo: resolving track %q for user %d: %w", rec.TrackName, userID, err)
		}

		inserted, err := r.db.InsertPlay(tx, &models.Play{
			UserID:   userID,
			TrackID:  trackID,
			PlayedAt: playedAt,
			MsPlayed: rec.MsPlayed,
			Source:   rec.Source,
		})
		if err != nil {
			return BatchResult{}, fmt.Errorf("musicrepo: inserting play for user %d: %w", userID, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}

		if minPA.IsZero() || playedAt.Before(minPA) {
			minPA = playedAt
		}
		if maxPA.IsZero() || playedAt.After(maxPA) {
			maxPA = playedAt
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("musicrepo: committing batch for user %d: %w", userID, err)
	}

	result.MinPlayedAt = minPA
	result.MaxPlayedAt = maxPA
	return result, nil
}

// upsertTrackWithArtists resolves or creates the track and its artists,
// deriving local ids for either side that lacks a provider id, and links
// them N:M. Repeated linking is a no-op via the composite primary key.
func (r *Repository) upsertTrackWithArtists(tx *sql.Tx, rec PlayRecord) (int64, error) {
	primaryArtist := ""
	if len(rec.Artists) > 0 {
		primaryArtist = rec.Artists[0].Name
	}

	track := &models.Track{
		Name:            rec.TrackName,
		ProviderTrackID: rec.TrackProviderID,
		Album:           rec.Album,
		DurationMs:      rec.DurationMs,
		Source:          rec.Source,
	}
	if track.ProviderTrackID == "" {
		track.LocalID = TrackLocalID(primaryArtist, rec.TrackName, rec.Album)
	}

	trackID, err := r.db.UpsertTrack(tx, track)
	if err != nil {
		return 0, err
	}

	for _, a := range rec.Artists {
		artist := &models.Artist{
			Name:             a.Name,
			ProviderArtistID: a.ProviderID,
			Source:           rec.Source,
		}
		if artist.ProviderArtistID == "" {
			artist.LocalID = ArtistLocalID(a.Name)
		}
		artistID, err := r.db.UpsertArtist(tx, artist)
		if err != nil {
			return 0, err
		}
		if err := r.db.LinkTrackArtist(tx, trackID, artistID); err != nil {
			return 0, err
		}
	}

	return trackID, nil
}
