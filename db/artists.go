package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/playback-history/collector/models"
)

// UpsertArtist mirrors UpsertTrack's lookup-then-insert-or-update pattern.
func (d *DB) UpsertArtist(tx *sql.Tx, a *models.Artist) (int64, error) {
	existingID, err := d.findArtistID(tx, a)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()

	if existingID != 0 {
		if a.Name != "" {
			_, err := tx.Exec(`UPDATE artists SET name = ?, updated_at = ? WHERE id = ?`, a.Name, now, existingID)
			if err != nil {
				return 0, fmt.Errorf("db: updating artist %d: %w", existingID, err)
			}
		}
		return existingID, nil
	}

	var providerID, localID sql.NullString
	if a.ProviderArtistID != "" {
		providerID = sql.NullString{String: a.ProviderArtistID, Valid: true}
	}
	if a.LocalID != "" {
		localID = sql.NullString{String: a.LocalID, Valid: true}
	}

	result, err := tx.Exec(`
		INSERT INTO artists (name, provider_artist_id, local_id, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Name, providerID, localID, a.Source, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return d.findArtistID(tx, a)
		}
		return 0, fmt.Errorf("db: inserting artist %q: %w", a.Identity(), err)
	}
	return result.LastInsertId()
}

// SetArtistMBID records a MusicBrainz artist match found during track
// enrichment; a no-op if the artist already carries one, since multiple
// tracks can independently resolve the same artist.
func (d *DB) SetArtistMBID(artistID int64, mbid string) error {
	if mbid == "" {
		return nil
	}
	_, err := d.Exec(`UPDATE artists SET mbid = ?, updated_at = ? WHERE id = ? AND mbid IS NULL`,
		mbid, time.Now().UTC(), artistID)
	if err != nil {
		return fmt.Errorf("db: setting mbid for artist %d: %w", artistID, err)
	}
	return nil
}

// ArtistIDByName finds the surrogate id of an artist already on file by
// exact name match — enrichment uses this to attach a resolved MBID back
// to the artist row linked to the track being enriched, rather than the
// (possibly differently-cased) artist credit MusicBrainz returned.
func (d *DB) ArtistIDByName(name string) (int64, error) {
	var id int64
	err := d.QueryRow(`SELECT id FROM artists WHERE name = ? LIMIT 1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("db: looking up artist by name %q: %w", name, err)
	}
	return id, nil
}

func (d *DB) findArtistID(tx *sql.Tx, a *models.Artist) (int64, error) {
	var id int64
	var err error
	if a.ProviderArtistID != "" {
		err = tx.QueryRow(`SELECT id FROM artists WHERE provider_artist_id = ?`, a.ProviderArtistID).Scan(&id)
	} else {
		err = tx.QueryRow(`SELECT id FROM artists WHERE local_id = ?`, a.LocalID).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("db: looking up artist %q: %w", a.Identity(), err)
	}
	return id, nil
}
