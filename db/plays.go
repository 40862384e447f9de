package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/playback-history/collector/models"
)

// InsertPlay inserts one play row. A unique-constraint violation on
// (user_id, played_at, track_id) is swallowed and reported back as skipped,
// never as an error — this is the mechanism behind the play-uniqueness
// invariant.
func (d *DB) InsertPlay(tx *sql.Tx, p *models.Play) (inserted bool, err error) {
	_, err = tx.Exec(`
		INSERT INTO plays (user_id, track_id, played_at, ms_played, source)
		VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.TrackID, p.PlayedAt.UTC(), p.MsPlayed, p.Source)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("db: inserting play for user %d track %d at %s: %w", p.UserID, p.TrackID, p.PlayedAt, err)
	}
	return true, nil
}

// CountPlaysInWindow and friends back the query primitives; kept here since
// they're simple read paths directly against the plays table.
func (d *DB) CountPlaysInWindow(userID int64, cutoff time.Time) (int, error) {
	var count int
	err := d.QueryRow(`
		SELECT COUNT(*) FROM plays WHERE user_id = ? AND played_at >= ?`, userID, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db: counting plays for user %d: %w", userID, err)
	}
	return count, nil
}

// PlayRow is the flat projection query primitives consume when they need to
// bucket plays in application code (e.g. the heatmap).
type PlayRow struct {
	PlayedAt time.Time
	MsPlayed int64
	Source   models.SourceTag
	TrackID  int64
}

func (d *DB) ListPlaysInWindow(userID int64, cutoff time.Time) ([]PlayRow, error) {
	rows, err := d.Query(`
		SELECT played_at, ms_played, source, track_id
		FROM plays WHERE user_id = ? AND played_at >= ?
		ORDER BY played_at ASC`, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("db: listing plays for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []PlayRow
	for rows.Next() {
		var r PlayRow
		if err := rows.Scan(&r.PlayedAt, &r.MsPlayed, &r.Source, &r.TrackID); err != nil {
			return nil, err
		}
		r.PlayedAt = r.PlayedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CoverageRow is the single aggregate row coverage() needs.
type CoverageRow struct {
	Total           int
	Earliest        sql.NullTime
	Latest          sql.NullTime
	APICount        int
	ImportCount     int
	DistinctDays    int
}

func (d *DB) CoverageStats(userID int64, cutoff time.Time) (CoverageRow, error) {
	var row CoverageRow
	err := d.QueryRow(`
		SELECT
			COUNT(*),
			MIN(played_at),
			MAX(played_at),
			COUNT(*) FILTER (WHERE source = 'api'),
			COUNT(*) FILTER (WHERE source = 'import'),
			COUNT(DISTINCT date(played_at))
		FROM plays WHERE user_id = ? AND played_at >= ?`, userID, cutoff).Scan(
		&row.Total, &row.Earliest, &row.Latest, &row.APICount, &row.ImportCount, &row.DistinctDays)
	if err != nil {
		return CoverageRow{}, fmt.Errorf("db: computing coverage for user %d: %w", userID, err)
	}
	return row, nil
}

// TopTrackRow/TopArtistRow back the top-N query primitives.
type TopTrackRow struct {
	TrackID    int64
	Name       string
	PlayCount  int
	LastPlayed time.Time
}

func (d *DB) TopTracks(userID int64, cutoff time.Time, limit int) ([]TopTrackRow, error) {
	rows, err := d.Query(`
		SELECT t.id, t.name, COUNT(*) AS play_count, MAX(p.played_at) AS last_played
		FROM plays p JOIN tracks t ON t.id = p.track_id
		WHERE p.user_id = ? AND p.played_at >= ?
		GROUP BY t.id, t.name
		ORDER BY play_count DESC, last_played DESC
		LIMIT ?`, userID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("db: top tracks for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []TopTrackRow
	for rows.Next() {
		var r TopTrackRow
		if err := rows.Scan(&r.TrackID, &r.Name, &r.PlayCount, &r.LastPlayed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type TopArtistRow struct {
	ArtistID   int64
	Name       string
	PlayCount  int
	LastPlayed time.Time
}

func (d *DB) TopArtists(userID int64, cutoff time.Time, limit int) ([]TopArtistRow, error) {
	rows, err := d.Query(`
		SELECT a.id, a.name, COUNT(*) AS play_count, MAX(p.played_at) AS last_played
		FROM plays p
		JOIN track_artists ta ON ta.track_id = p.track_id
		JOIN artists a ON a.id = ta.artist_id
		WHERE p.user_id = ? AND p.played_at >= ?
		GROUP BY a.id, a.name
		ORDER BY play_count DESC, last_played DESC
		LIMIT ?`, userID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("db: top artists for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []TopArtistRow
	for rows.Next() {
		var r TopArtistRow
		if err := rows.Scan(&r.ArtistID, &r.Name, &r.PlayCount, &r.LastPlayed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RepeatRow backs repeat-rate's "top repeated tracks" component.
type RepeatRow struct {
	TrackID   int64
	Name      string
	PlayCount int
}

func (d *DB) MostRepeatedTracks(userID int64, cutoff time.Time, limit int) ([]RepeatRow, error) {
	rows, err := d.Query(`
		SELECT t.id, t.name, COUNT(*) AS play_count
		FROM plays p JOIN tracks t ON t.id = p.track_id
		WHERE p.user_id = ? AND p.played_at >= ?
		GROUP BY t.id, t.name
		HAVING COUNT(*) > 1
		ORDER BY play_count DESC
		LIMIT ?`, userID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("db: repeated tracks for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []RepeatRow
	for rows.Next() {
		var r RepeatRow
		if err := rows.Scan(&r.TrackID, &r.Name, &r.PlayCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) UniqueTrackCount(userID int64, cutoff time.Time) (int, error) {
	var count int
	err := d.QueryRow(`
		SELECT COUNT(DISTINCT track_id) FROM plays WHERE user_id = ? AND played_at >= ?`, userID, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db: unique track count for user %d: %w", userID, err)
	}
	return count, nil
}

func (d *DB) TotalMsPlayed(userID int64, cutoff time.Time) (int64, error) {
	var total sql.NullInt64
	err := d.QueryRow(`
		SELECT SUM(ms_played) FROM plays WHERE user_id = ? AND played_at >= ?`, userID, cutoff).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("db: total ms played for user %d: %w", userID, err)
	}
	return total.Int64, nil
}
