// Package querysvc implements the analytical read primitives over the
// play history: top artists/tracks, the weekday/hour listening heatmap,
// repeat rate, source coverage, and a composed taste summary. Every
// primitive is a stateless function of (user, days window, ...) returning
// plain data — no primitive is a mega-query joining everything at once.
package querysvc

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/models"
)

// Service is the thin façade the tool handlers call into.
type Service struct {
	db *db.DB
}

func New(database *db.DB) *Service {
	return &Service{db: database}
}

// cutoff computes now_utc - days, the lower bound every windowed primitive
// shares. days accepts arbitrary positive integers — values in the
// thousands are expected for ZIP-imported history predating the API's
// retention window.
func cutoff(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days)
}

// ArtistCount is one row of the top-artists result.
type ArtistCount struct {
	ArtistID   int64
	Name       string
	PlayCount  int
	LastPlayed time.Time
}

// TopArtists joins plays→tracks→artists, groups by artist, and orders by
// play count descending with a most-recent-play tiebreak for determinism.
func (s *Service) TopArtists(userID int64, days, limit int) ([]ArtistCount, error) {
	rows, err := s.db.Query(`
		SELECT ar.id, ar.name, COUNT(*) AS play_count, MAX(p.played_at) AS last_played
		FROM plays p
		JOIN track_artists ta ON ta.track_id = p.track_id
		JOIN artists ar ON ar.id = ta.artist_id
		WHERE p.user_id = ? AND p.played_at >= ?
		GROUP BY ar.id, ar.name
		ORDER BY play_count DESC, last_played DESC
		LIMIT ?`, userID, cutoff(days), limit)
	if err != nil {
		return nil, fmt.Errorf("querysvc: top artists for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []ArtistCount
	for rows.Next() {
		var a ArtistCount
		if err := rows.Scan(&a.ArtistID, &a.Name, &a.PlayCount, &a.LastPlayed); err != nil {
			return nil, err
		}
		a.LastPlayed = a.LastPlayed.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// TrackCount is one row of the top-tracks result.
type TrackCount struct {
	TrackID    int64
	Name       string
	Album      string
	PlayCount  int
	LastPlayed time.Time
}

// TopTracks mirrors TopArtists at track granularity.
func (s *Service) TopTracks(userID int64, days, limit int) ([]TrackCount, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.name, t.album, COUNT(*) AS play_count, MAX(p.played_at) AS last_played
		FROM plays p
		JOIN tracks t ON t.id = p.track_id
		WHERE p.user_id = ? AND p.played_at >= ?
		GROUP BY t.id, t.name, t.album
		ORDER BY play_count DESC, last_played DESC
		LIMIT ?`, userID, cutoff(days), limit)
	if err != nil {
		return nil, fmt.Errorf("querysvc: top tracks for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []TrackCount
	for rows.Next() {
		var t TrackCount
		if err := rows.Scan(&t.TrackID, &t.Name, &t.Album, &t.PlayCount, &t.LastPlayed); err != nil {
			return nil, err
		}
		t.LastPlayed = t.LastPlayed.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// HeatmapCell is one non-empty (weekday, hour) bucket. Weekday is ISO-ish
// but zero-based with 0=Monday, matching the design's convention.
type HeatmapCell struct {
	Weekday int
	Hour    int
	Count   int
}

// Heatmap is the 7x24 aggregate plus the cells the caller actually wants.
type Heatmap struct {
	Cells       []HeatmapCell
	TotalPlays  int
	PeakWeekday int
	PeakHour    int
}

// Heatmap buckets every played_at in the window by (weekday, hour) in
// application code rather than relying on dialect-specific SQL date
// functions — SQLite's strftime and another engine's EXTRACT don't agree,
// and fetching the raw instants and bucketing them in Go is both simpler
// and portable.
func (s *Service) Heatmap(userID int64, days int) (Heatmap, error) {
	rows, err := s.db.Query(`SELECT played_at FROM plays WHERE user_id = ? AND played_at >= ?`, userID, cutoff(days))
	if err != nil {
		return Heatmap{}, fmt.Errorf("querysvc: heatmap for user %d: %w", userID, err)
	}
	defer rows.Close()

	var grid [7][24]int
	var total int
	for rows.Next() {
		var playedAt time.Time
		if err := rows.Scan(&playedAt); err != nil {
			return Heatmap{}, err
		}
		playedAt = playedAt.UTC()
		weekday := isoWeekday(playedAt)
		grid[weekday][playedAt.Hour()]++
		total++
	}
	if err := rows.Err(); err != nil {
		return Heatmap{}, err
	}

	hm := Heatmap{TotalPlays: total}
	peak := -1
	for w := 0; w < 7; w++ {
		for h := 0; h < 24; h++ {
			if grid[w][h] == 0 {
				continue
			}
			hm.Cells = append(hm.Cells, HeatmapCell{Weekday: w, Hour: h, Count: grid[w][h]})
			if grid[w][h] > peak {
				peak = grid[w][h]
				hm.PeakWeekday = w
				hm.PeakHour = h
			}
		}
	}
	sort.Slice(hm.Cells, func(i, j int) bool {
		if hm.Cells[i].Weekday != hm.Cells[j].Weekday {
			return hm.Cells[i].Weekday < hm.Cells[j].Weekday
		}
		return hm.Cells[i].Hour < hm.Cells[j].Hour
	})
	return hm, nil
}

// isoWeekday maps time.Time.Weekday() (0=Sunday) onto the design's
// 0=Monday convention.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	return (wd + 6) % 7
}

// RepeatRate summarizes how much a user rewatches the same tracks.
type RepeatRate struct {
	TotalPlays    int
	UniqueTracks  int
	RepeatFactor  float64
	TopRepeated   []TrackCount
}

func (s *Service) RepeatRate(userID int64, days, topN int) (RepeatRate, error) {
	var rr RepeatRate
	err := s.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT track_id)
		FROM plays WHERE user_id = ? AND played_at >= ?`, userID, cutoff(days)).Scan(&rr.TotalPlays, &rr.UniqueTracks)
	if err != nil {
		return RepeatRate{}, fmt.Errorf("querysvc: repeat rate for user %d: %w", userID, err)
	}
	if rr.UniqueTracks > 0 {
		rr.RepeatFactor = float64(rr.TotalPlays) / float64(rr.UniqueTracks)
	}

	top, err := s.TopTracks(userID, days, topN)
	if err != nil {
		return RepeatRate{}, err
	}
	rr.TopRepeated = top
	return rr, nil
}

// Coverage describes what slice of history this user's data actually
// covers and where it came from.
type Coverage struct {
	TotalPlays    int
	EarliestPlay  *time.Time
	LatestPlay    *time.Time
	APICount      int
	ImportCount   int
	ActiveDays    int
	RequestedDays int
}

func (s *Service) Coverage(userID int64, days int) (Coverage, error) {
	cov := Coverage{RequestedDays: days}

	var earliest, latest sql.NullTime
	var total int
	err := s.db.QueryRow(`
		SELECT COUNT(*), MIN(played_at), MAX(played_at)
		FROM plays WHERE user_id = ? AND played_at >= ?`, userID, cutoff(days)).
		Scan(&total, &earliest, &latest)
	if err != nil {
		return Coverage{}, fmt.Errorf("querysvc: coverage for user %d: %w", userID, err)
	}
	cov.TotalPlays = total
	if earliest.Valid {
		t := earliest.Time.UTC()
		cov.EarliestPlay = &t
	}
	if latest.Valid {
		t := latest.Time.UTC()
		cov.LatestPlay = &t
	}

	err = s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN source = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source = ? THEN 1 ELSE 0 END), 0)
		FROM plays WHERE user_id = ? AND played_at >= ?`,
		models.SourceAPI, models.SourceImport, userID, cutoff(days)).Scan(&cov.APICount, &cov.ImportCount)
	if err != nil {
		return Coverage{}, fmt.Errorf("querysvc: coverage source split for user %d: %w", userID, err)
	}

	err = s.db.QueryRow(`
		SELECT COUNT(DISTINCT DATE(played_at)) FROM plays WHERE user_id = ? AND played_at >= ?`,
		userID, cutoff(days)).Scan(&cov.ActiveDays)
	if err != nil {
		return Coverage{}, fmt.Errorf("querysvc: active days for user %d: %w", userID, err)
	}

	return cov, nil
}

// TasteSummary composes the primitives above plus aggregate totals. It
// never issues one mega-query; each field is its own round-trip, matching
// the design's explicit "no single mega-query" instruction.
type TasteSummary struct {
	TotalPlays     int
	TotalMsPlayed  int64
	ListeningHours float64
	TopArtists     []ArtistCount
	TopTracks      []TrackCount
	Heatmap        Heatmap
	PeakWeekday    int
	PeakHour       int
	Coverage       Coverage
}

func (s *Service) TasteSummary(userID int64, days int) (TasteSummary, error) {
	var summary TasteSummary

	var msPlayed int64
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(ms_played), 0)
		FROM plays WHERE user_id = ? AND played_at >= ?`, userID, cutoff(days)).Scan(&count, &msPlayed)
	if err != nil {
		return TasteSummary{}, fmt.Errorf("querysvc: taste summary totals for user %d: %w", userID, err)
	}
	summary.TotalPlays = count
	summary.TotalMsPlayed = msPlayed
	summary.ListeningHours = float64(msPlayed) / 3_600_000.0

	topArtists, err := s.TopArtists(userID, days, 10)
	if err != nil {
		return TasteSummary{}, err
	}
	summary.TopArtists = topArtists

	topTracks, err := s.TopTracks(userID, days, 10)
	if err != nil {
		return TasteSummary{}, err
	}
	summary.TopTracks = topTracks

	hm, err := s.Heatmap(userID, days)
	if err != nil {
		return TasteSummary{}, err
	}
	summary.Heatmap = hm
	summary.PeakWeekday = hm.PeakWeekday
	summary.PeakHour = hm.PeakHour

	cov, err := s.Coverage(userID, days)
	if err != nil {
		return TasteSummary{}, err
	}
	summary.Coverage = cov

	return summary, nil
}
