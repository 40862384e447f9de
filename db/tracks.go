package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/playback-history/collector/models"
)

// UpsertTrack looks a track up by provider id (if present) or local id,
// updates non-empty metadata on a hit, and inserts on a miss. Returns the
// surrogate ID either way.
func (d *DB) UpsertTrack(tx *sql.Tx, t *models.Track) (int64, error) {
	existingID, err := d.findTrackID(tx, t)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()

	if existingID != 0 {
		_, err := tx.Exec(`
			UPDATE tracks SET
				name = CASE WHEN ? != '' THEN ? ELSE name END,
				album = CASE WHEN ? != '' THEN ? ELSE album END,
				duration_ms = CASE WHEN ? > 0 THEN ? ELSE duration_ms END,
				updated_at = ?
			WHERE id = ?`,
			t.Name, t.Name, t.Album, t.Album, t.DurationMs, t.DurationMs, now, existingID)
		if err != nil {
			return 0, fmt.Errorf("db: updating track %d: %w", existingID, err)
		}
		return existingID, nil
	}

	var providerID, localID sql.NullString
	if t.ProviderTrackID != "" {
		providerID = sql.NullString{String: t.ProviderTrackID, Valid: true}
	}
	if t.LocalID != "" {
		localID = sql.NullString{String: t.LocalID, Valid: true}
	}

	result, err := tx.Exec(`
		INSERT INTO tracks (name, provider_track_id, local_id, album, duration_ms, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, providerID, localID, t.Album, t.DurationMs, t.Source, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with another batch in the same process; re-read.
			return d.findTrackID(tx, t)
		}
		return 0, fmt.Errorf("db: inserting track %q: %w", t.Identity(), err)
	}
	return result.LastInsertId()
}

func (d *DB) findTrackID(tx *sql.Tx, t *models.Track) (int64, error) {
	var id int64
	var err error
	if t.ProviderTrackID != "" {
		err = tx.QueryRow(`SELECT id FROM tracks WHERE provider_track_id = ?`, t.ProviderTrackID).Scan(&id)
	} else {
		err = tx.QueryRow(`SELECT id FROM tracks WHERE local_id = ?`, t.LocalID).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("db: looking up track %q: %w", t.Identity(), err)
	}
	return id, nil
}

// LinkTrackArtist is a no-op on repeated calls — the composite primary key
// absorbs duplicate linking.
func (d *DB) LinkTrackArtist(tx *sql.Tx, trackID, artistID int64) error {
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO track_artists (track_id, artist_id) VALUES (?, ?)`,
		trackID, artistID)
	if err != nil {
		return fmt.Errorf("db: linking track %d to artist %d: %w", trackID, artistID, err)
	}
	return nil
}

// ArtistNamesForTrack returns the names of every artist linked to trackID,
// in link order — the enrichment pass needs this to build a MusicBrainz
// search query without round-tripping through musicrepo.
func (d *DB) ArtistNamesForTrack(trackID int64) ([]string, error) {
	rows, err := d.Query(`
		SELECT ar.name FROM track_artists ta
		JOIN artists ar ON ar.id = ta.artist_id
		WHERE ta.track_id = ?`, trackID)
	if err != nil {
		return nil, fmt.Errorf("db: listing artists for track %d: %w", trackID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UnenrichedTracksForUser lists up to limit tracks userID has a play of that
// have never been through the MusicBrainz enrichment pass, oldest first.
// Scoping by user (via plays) rather than listing every unenriched track in
// the store keeps one user's enrichment pass from starving another's, and
// gives the enrich job run a user ref to attribute the ledger entry to, the
// same way every other JobRun does.
func (d *DB) UnenrichedTracksForUser(userID int64, limit int) ([]*models.Track, error) {
	rows, err := d.Query(`
		SELECT DISTINCT t.id, t.name, t.provider_track_id, t.local_id, t.album, t.duration_ms, t.source,
			t.mbid, t.isrc, t.enriched_at, t.created_at, t.updated_at
		FROM tracks t
		JOIN plays p ON p.track_id = t.id
		WHERE p.user_id = ? AND t.enriched_at IS NULL
		ORDER BY t.created_at ASC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: listing unenriched tracks for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.Track
	for rows.Next() {
		t, err := scanTrack(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrack(scan func(dest ...any) error) (*models.Track, error) {
	t := &models.Track{}
	var providerID, localID, mbid sql.NullString
	var enrichedAt sql.NullTime
	err := scan(&t.ID, &t.Name, &providerID, &localID, &t.Album, &t.DurationMs, &t.Source,
		&mbid, &t.ISRC, &enrichedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ProviderTrackID = providerID.String
	t.LocalID = localID.String
	t.MBID = mbid.String
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if enrichedAt.Valid {
		ts := enrichedAt.Time.UTC()
		t.EnrichedAt = &ts
	}
	return t, nil
}

// SetTrackEnrichment records the result of one MusicBrainz lookup for
// trackID — called whether or not a match was found, so a track that
// genuinely has no MusicBrainz match isn't retried every enrichment cycle.
func (d *DB) SetTrackEnrichment(trackID int64, mbid, isrc, album string) error {
	now := time.Now().UTC()
	_, err := d.Exec(`
		UPDATE tracks SET
			mbid = CASE WHEN ? != '' THEN ? ELSE mbid END,
			isrc = CASE WHEN ? != '' THEN ? ELSE isrc END,
			album = CASE WHEN ? != '' THEN ? ELSE album END,
			enriched_at = ?,
			updated_at = ?
		WHERE id = ?`,
		mbid, mbid, isrc, isrc, album, album, now, now, trackID)
	if err != nil {
		return fmt.Errorf("db: recording enrichment for track %d: %w", trackID, err)
	}
	return nil
}
