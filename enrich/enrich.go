// Package enrich implements the MusicBrainz backfill pass: for tracks a
// user has played but the collector has never matched to a MusicBrainz
// recording, look the recording up, disambiguate its canonical release, and
// record the match so the track is never looked up again. Adapted from the
// teacher's service/musicbrainz package — same rate-limited, cached search
// client and release-disambiguation heuristic, wired here to JobEnrich
// instead of left unreferenced.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/models"
)

// ArtistCredit is one entry in a MusicBrainz recording's artist-credit list.
type ArtistCredit struct {
	Artist struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		SortName string `json:"sort-name,omitempty"`
	} `json:"artist"`
	Joinphrase string `json:"joinphrase,omitempty"`
	Name       string `json:"name"`
}

type ReleaseGroup struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	PrimaryType    string   `json:"primary-type,omitempty"`
	SecondaryTypes []string `json:"secondary-types,omitempty"`
}

type Release struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Status         string        `json:"status,omitempty"`
	Date           string        `json:"date,omitempty"`
	Country        string        `json:"country,omitempty"`
	Disambiguation string        `json:"disambiguation,omitempty"`
	TrackCount     int           `json:"track-count,omitempty"`
	ReleaseGroup   *ReleaseGroup `json:"release-group,omitempty"`
}

type Recording struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Length       int            `json:"length,omitempty"`
	ISRCs        []string       `json:"isrcs,omitempty"`
	ArtistCredit []ArtistCredit `json:"artist-credit,omitempty"`
	Releases     []Release      `json:"releases,omitempty"`
}

type searchResponse struct {
	Count      int         `json:"count"`
	Offset     int         `json:"offset"`
	Recordings []Recording `json:"recordings"`
}

// SearchParams is the query this package sends MusicBrainz, built from a
// track's own metadata plus its linked artist names.
type SearchParams struct {
	Track   string
	Artist  string
	Release string
	ISRC    string
}

type cacheEntry struct {
	recordings []Recording
	expiresAt  time.Time
}

// Config carries the policy knobs config.Config exposes for this pass.
type Config struct {
	BatchSize int
	BaseURL   string // overridden by tests; defaults to the real MusicBrainz API
}

// Service runs the enrichment pass: one MusicBrainz search per second
// (MusicBrainz's own published limit), an in-memory TTL cache so a replayed
// batch of the same track doesn't re-hit the network, and the ledger
// bookkeeping every other phase in this worker uses.
type Service struct {
	db          *db.DB
	ledger      *jobledger.Ledger
	httpClient  *http.Client
	limiter     *rate.Limiter
	cleaner     *metadataCleaner
	baseURL     string
	batchSize   int
	searchCache map[string]cacheEntry
	cacheMutex  sync.RWMutex
	cacheTTL    time.Duration
	logger      *log.Logger
}

func New(database *db.DB, ledger *jobledger.Ledger, cfg Config) *Service {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://musicbrainz.org/ws/2/recording"
	}
	return &Service{
		db:          database,
		ledger:      ledger,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
		cleaner:     newMetadataCleaner("Latin"),
		baseURL:     baseURL,
		batchSize:   batchSize,
		searchCache: make(map[string]cacheEntry),
		cacheTTL:    time.Hour,
		logger:      log.New(os.Stdout, "enrich: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Result summarizes one enrichment pass for the job ledger.
type Result struct {
	Considered int
	Matched    int
	Unmatched  int
}

// Run enriches up to the configured batch size of userID's unenriched
// tracks. A track with no MusicBrainz match still gets EnrichedAt stamped,
// so it isn't retried forever against a recording that doesn't exist in
// MusicBrainz's database.
func (s *Service) Run(ctx context.Context, userID int64) (Result, error) {
	job, err := s.ledger.Begin(userID, models.JobEnrich)
	if err != nil {
		return Result{}, fmt.Errorf("enrich: beginning job for user %d: %w", userID, err)
	}

	result, runErr := s.runBatch(ctx, userID)
	if runErr != nil {
		if err := s.ledger.Fail(job, runErr); err != nil {
			s.logger.Printf("user %d: recording job failure failed: %v", userID, err)
		}
		return result, runErr
	}

	if err := s.ledger.Finish(job, result.Considered, result.Matched, result.Unmatched); err != nil {
		return result, fmt.Errorf("enrich: finishing job for user %d: %w", userID, err)
	}
	return result, nil
}

func (s *Service) runBatch(ctx context.Context, userID int64) (Result, error) {
	tracks, err := s.db.UnenrichedTracksForUser(userID, s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("enrich: listing unenriched tracks: %w", err)
	}

	var result Result
	for _, track := range tracks {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Considered++

		matched, err := s.enrichTrack(ctx, track)
		if err != nil {
			s.logger.Printf("track %d: %v", track.ID, err)
			result.Unmatched++
			continue
		}
		if matched {
			result.Matched++
		} else {
			result.Unmatched++
		}
	}
	return result, nil
}

// enrichTrack looks up one track and persists whatever it finds — a found
// MBID and ISRC on a match, nothing but the enriched_at stamp otherwise.
// The returned bool reports whether a recording was matched.
func (s *Service) enrichTrack(ctx context.Context, track *models.Track) (bool, error) {
	artistNames, err := s.db.ArtistNamesForTrack(track.ID)
	if err != nil {
		return false, fmt.Errorf("loading artists: %w", err)
	}

	cleanedArtists := make([]string, 0, len(artistNames))
	for _, name := range artistNames {
		cleaned, _ := s.cleaner.cleanArtist(name)
		if cleaned != "" {
			cleanedArtists = append(cleanedArtists, cleaned)
		}
	}

	params := SearchParams{
		Track:   track.Name,
		Artist:  strings.Join(cleanedArtists, ", "),
		Release: track.Album,
		ISRC:    track.ISRC,
	}

	recordings, err := s.search(ctx, params)
	if err != nil {
		if markErr := s.db.SetTrackEnrichment(track.ID, "", "", ""); markErr != nil {
			s.logger.Printf("track %d: stamping failed lookup: %v", track.ID, markErr)
		}
		return false, err
	}

	if len(recordings) == 0 {
		return false, s.db.SetTrackEnrichment(track.ID, "", "", "")
	}

	best := recordings[0]
	bestRelease := s.GetBestRelease(best.Releases, best.Title, track.Album)

	var isrc, album string
	if len(best.ISRCs) > 0 {
		isrc = best.ISRCs[0]
	}
	if bestRelease != nil {
		album = bestRelease.Title
	}

	if err := s.db.SetTrackEnrichment(track.ID, best.ID, isrc, album); err != nil {
		return false, fmt.Errorf("recording match: %w", err)
	}

	for _, credit := range best.ArtistCredit {
		if credit.Artist.ID == "" || credit.Name == "" {
			continue
		}
		artistID, err := s.db.ArtistIDByName(credit.Name)
		if err != nil || artistID == 0 {
			continue
		}
		if err := s.db.SetArtistMBID(artistID, credit.Artist.ID); err != nil {
			s.logger.Printf("artist %d: recording mbid: %v", artistID, err)
		}
	}

	return true, nil
}

func (s *Service) search(ctx context.Context, params SearchParams) ([]Recording, error) {
	if params.Track == "" && params.Artist == "" && params.Release == "" && params.ISRC == "" {
		return nil, fmt.Errorf("enrich: no search parameters for track")
	}

	params.Track, _ = s.cleaner.cleanRecording(params.Track)

	cacheKey := cacheKeyFor(params)

	s.cacheMutex.RLock()
	if recordings, found := lookupCache(s.searchCache, cacheKey); found {
		s.cacheMutex.RUnlock()
		return recordings, nil
	}
	s.cacheMutex.RUnlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("enrich: rate limiter: %w", err)
	}

	endpoint := s.baseURL + "?" + url.Values{
		"query": {buildQuery(params)},
		"fmt":   {"json"},
		"inc":   {"artists+releases+isrcs"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("enrich: building request: %w", err)
	}
	req.Header.Set("User-Agent", "playback-history-collector/0.1 (https://github.com/playback-history/collector)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrich: requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrich: musicbrainz returned status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("enrich: decoding response: %w", err)
	}

	s.cacheMutex.Lock()
	s.searchCache[cacheKey] = cacheEntry{recordings: decoded.Recordings, expiresAt: time.Now().UTC().Add(s.cacheTTL)}
	s.cacheMutex.Unlock()

	return decoded.Recordings, nil
}

func cacheKeyFor(params SearchParams) string {
	return fmt.Sprintf("track=%s&artist=%s&release=%s&isrc=%s",
		url.QueryEscape(params.Track), url.QueryEscape(params.Artist),
		url.QueryEscape(params.Release), url.QueryEscape(params.ISRC))
}

func lookupCache(cache map[string]cacheEntry, key string) ([]Recording, bool) {
	entry, found := cache[key]
	if found && time.Now().UTC().Before(entry.expiresAt) {
		return entry.recordings, true
	}
	return nil, false
}

func buildQuery(params SearchParams) string {
	var parts []string
	if params.ISRC != "" {
		parts = append(parts, fmt.Sprintf(`isrc:"%s"`, params.ISRC))
	}
	if params.Track != "" {
		parts = append(parts, fmt.Sprintf(`recording:"%s"`, params.Track))
	}
	if params.Artist != "" {
		parts = append(parts, fmt.Sprintf(`artist:"%s"`, params.Artist))
	}
	if params.Release != "" {
		parts = append(parts, fmt.Sprintf(`release:"%s"`, params.Release))
	}
	return strings.Join(parts, " AND ")
}

func isOfficialAlbum(r *Release) bool {
	if r.Status != "" && r.Status != "Official" {
		return false
	}
	if r.ReleaseGroup != nil {
		if r.ReleaseGroup.PrimaryType != "Album" {
			return false
		}
		if len(r.ReleaseGroup.SecondaryTypes) > 0 {
			return false
		}
	}
	return true
}

// GetBestRelease picks the release that most plausibly matches the album a
// user actually observed next to this track, falling back through five
// looser tiers down to "oldest release of any kind" when nothing matches
// cleanly.
func (s *Service) GetBestRelease(releases []Release, trackTitle string, expectedAlbum string) *Release {
	if len(releases) == 0 {
		return nil
	}
	if len(releases) == 1 {
		r := releases[0]
		return &r
	}

	sort.SliceStable(releases, func(i, j int) bool {
		dateA, dateB := releases[i].Date, releases[j].Date
		validA, validB := len(dateA) >= 4, len(dateB) >= 4
		if validA && !validB {
			return true
		}
		if !validA && validB {
			return false
		}
		if dateA != dateB {
			return dateA < dateB
		}
		if releases[i].Title != releases[j].Title {
			return releases[i].Title < releases[j].Title
		}
		return releases[i].ID < releases[j].ID
	})

	expected := strings.ToLower(strings.TrimSpace(expectedAlbum))

	if expected != "" {
		for i := range releases {
			release := &releases[i]
			title := strings.ToLower(strings.TrimSpace(release.Title))
			if (title == expected || strings.HasPrefix(title, expected)) && isOfficialAlbum(release) {
				return release
			}
		}
	}

	for i := range releases {
		release := &releases[i]
		if (release.Country == "XW" || release.Country == "US") && release.Title != trackTitle && isOfficialAlbum(release) {
			return release
		}
	}

	for i := range releases {
		release := &releases[i]
		if release.Title != trackTitle && isOfficialAlbum(release) {
			return release
		}
	}

	for i := range releases {
		release := &releases[i]
		if release.Title != trackTitle && release.Status == "Official" {
			return release
		}
	}

	for i := range releases {
		release := &releases[i]
		if release.Title != trackTitle {
			return release
		}
	}

	s.logger.Printf("no suitable release for %q, picking oldest: %q (%s)", trackTitle, releases[0].Title, releases[0].ID)
	r := releases[0]
	return &r
}
