package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/models"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *db.DB, int64) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Initialize(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}

	user, err := database.UpsertUser("spotify-user-1", "Test User", "", "US", models.ProductFree)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	var baseURL string
	if handler != nil {
		server := httptest.NewServer(handler)
		t.Cleanup(server.Close)
		baseURL = server.URL
	}

	svc := New(database, jobledger.New(database), Config{BaseURL: baseURL})
	return svc, database, user.ID
}

func seedUnenrichedTrack(t *testing.T, database *db.DB, userID int64, name, album string, artistNames ...string) int64 {
	t.Helper()
	tx, err := database.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	trackID, err := database.UpsertTrack(tx, &models.Track{
		Name: name, LocalID: name + "-local", Album: album, Source: models.SourceAPI,
	})
	if err != nil {
		t.Fatalf("upserting track: %v", err)
	}

	for _, artistName := range artistNames {
		artistID, err := database.UpsertArtist(tx, &models.Artist{Name: artistName, LocalID: artistName + "-local", Source: models.SourceAPI})
		if err != nil {
			t.Fatalf("upserting artist: %v", err)
		}
		if err := database.LinkTrackArtist(tx, trackID, artistID); err != nil {
			t.Fatalf("linking artist: %v", err)
		}
	}

	if _, err := database.InsertPlay(tx, &models.Play{
		UserID: userID, TrackID: trackID, PlayedAt: time.Now().UTC(), MsPlayed: 180000, Source: models.SourceAPI,
	}); err != nil {
		t.Fatalf("inserting play: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return trackID
}

func jsonRecordingsResponse(recordings ...Recording) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(searchResponse{Count: len(recordings), Recordings: recordings})
	}
}

func TestRunMatchesAndStampsTrack(t *testing.T) {
	recording := Recording{
		ID:     "rec-1",
		Title:  "Test Song",
		ISRCs:  []string{"USUM71801197"},
		ArtistCredit: []ArtistCredit{
			{Name: "Test Artist", Artist: struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				SortName string `json:"sort-name,omitempty"`
			}{ID: "artist-mbid-1", Name: "Test Artist"}},
		},
		Releases: []Release{
			{ID: "rel-1", Title: "Test Album", Status: "Official", Date: "2020-01-01",
				ReleaseGroup: &ReleaseGroup{PrimaryType: "Album"}},
		},
	}

	svc, database, userID := newTestService(t, jsonRecordingsResponse(recording))
	trackID := seedUnenrichedTrack(t, database, userID, "Test Song", "Test Album", "Test Artist")

	result, err := svc.Run(context.Background(), userID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Considered != 1 || result.Matched != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	tracks, err := database.UnenrichedTracksForUser(userID, 10)
	if err != nil {
		t.Fatalf("listing unenriched: %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("expected track to no longer need enrichment, got %d still pending", len(tracks))
	}

	artistID, err := database.ArtistIDByName("Test Artist")
	if err != nil {
		t.Fatalf("looking up artist: %v", err)
	}
	if artistID == 0 {
		t.Fatalf("expected artist to exist")
	}

	recent, err := jobledger.New(database).Recent(userID, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Type != models.JobEnrich || recent[0].Status != models.JobSuccess {
		t.Fatalf("unexpected job ledger entry: %+v", recent)
	}

	_ = trackID
}

func TestRunStampsTrackWithNoMatchSoItIsNotRetried(t *testing.T) {
	svc, database, userID := newTestService(t, jsonRecordingsResponse())
	seedUnenrichedTrack(t, database, userID, "Obscure Song", "Obscure Album", "Nobody")

	result, err := svc.Run(context.Background(), userID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Matched != 0 || result.Unmatched != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	tracks, err := database.UnenrichedTracksForUser(userID, 10)
	if err != nil {
		t.Fatalf("listing unenriched: %v", err)
	}
	if len(tracks) != 0 {
		t.Fatalf("expected the no-match track to be stamped so it isn't retried, got %d still pending", len(tracks))
	}
}

func TestGetBestReleasePrefersExpectedAlbum(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	releases := []Release{
		{ID: "a", Title: "Greatest Hits", Status: "Official", Date: "2010-01-01", ReleaseGroup: &ReleaseGroup{PrimaryType: "Album"}},
		{ID: "b", Title: "Original Album", Status: "Official", Date: "2005-01-01", ReleaseGroup: &ReleaseGroup{PrimaryType: "Album"}},
	}

	best := svc.GetBestRelease(releases, "Track Name", "Original Album")
	if best == nil || best.ID != "b" {
		t.Fatalf("expected to prefer the release matching the expected album, got %+v", best)
	}
}

func TestGetBestReleaseFallsBackToOldestWhenNothingMatches(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	releases := []Release{
		{ID: "b", Title: "Track Name", Date: "2015-01-01"},
		{ID: "a", Title: "Track Name", Date: "2005-01-01"},
	}

	best := svc.GetBestRelease(releases, "Track Name", "")
	if best == nil || best.ID != "a" {
		t.Fatalf("expected fallback to the oldest release, got %+v", best)
	}
}

func TestCacheKeyForIsStableAndEscapesSeparators(t *testing.T) {
	got := cacheKeyFor(SearchParams{Track: "Song & Dance", Artist: "Artist/Band", Release: "Album: Title", ISRC: "US-123"})
	want := "track=Song+%26+Dance&artist=Artist%2FBand&release=Album%3A+Title&isrc=US-123"
	if got != want {
		t.Fatalf("cacheKeyFor() = %q, want %q", got, want)
	}
}

// TestRunCleansEachArtistNameIndividually covers a track with two credited
// artists: joining them first and cleaning the joined string would have the
// comma-splitting artist pattern mistake the second artist for "featuring"
// noise and drop them from the search query. Cleaning each name before
// joining keeps both, and still strips a "- Topic" suffix on one of them.
func TestRunCleansEachArtistNameIndividually(t *testing.T) {
	var gotQuery string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(searchResponse{})
	}

	svc, database, userID := newTestService(t, handler)
	seedUnenrichedTrack(t, database, userID, "Collab Song", "Collab Album", "Main Artist - Topic", "Featured Artist")

	if _, err := svc.Run(context.Background(), userID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(gotQuery, `artist:"Main Artist, Featured Artist"`) {
		t.Fatalf("expected both cleaned artist names joined in the query, got %q", gotQuery)
	}
}

func TestStripTopicSuffixRemovesAutoGeneratedChannelTail(t *testing.T) {
	got, changed := stripTopicSuffix("Some Indie Band - Topic")
	if !changed || got != "Some Indie Band" {
		t.Fatalf("expected suffix stripped, got %q (changed=%v)", got, changed)
	}

	got, changed = stripTopicSuffix("Some Indie Band")
	if changed || got != "Some Indie Band" {
		t.Fatalf("expected no change for a name without the suffix, got %q (changed=%v)", got, changed)
	}
}

func TestBuildQueryOrdersClausesAndOmitsEmpty(t *testing.T) {
	got := buildQuery(SearchParams{Track: "Test Song", Artist: "Test Artist", ISRC: "USUM71801197"})
	want := `isrc:"USUM71801197" AND recording:"Test Song" AND artist:"Test Artist"`
	if got != want {
		t.Fatalf("buildQuery() = %q, want %q", got, want)
	}
}
