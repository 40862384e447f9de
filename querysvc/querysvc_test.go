package querysvc

import (
	"testing"
	"time"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/models"
	"github.com/playback-history/collector/musicrepo"
)

func newTestQuerySvc(t *testing.T) (*Service, *musicrepo.Repository, int64) {
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
	return New(database), musicrepo.New(database), user.ID
}

func playAt(t time.Time, track, artist string) musicrepo.PlayRecord {
	return musicrepo.PlayRecord{
		PlayedAt:   t,
		TrackName:  track,
		Artists:    []musicrepo.ArtistInput{{Name: artist}},
		DurationMs: 200000,
		MsPlayed:   200000,
		Source:     models.SourceAPI,
	}
}

func TestHeatmapCorrectness(t *testing.T) {
	svc, repo, userID := newTestQuerySvc(t)

	// Monday 2024-06-03 14:00 UTC, ten plays.
	monday := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	// Friday 2024-06-07 09:00 UTC, five plays.
	friday := time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC)

	var records []musicrepo.PlayRecord
	for i := 0; i < 10; i++ {
		records = append(records, playAt(monday.Add(time.Duration(i)*time.Second), "Bohemian Rhapsody", "Queen"))
	}
	for i := 0; i < 5; i++ {
		records = append(records, playAt(friday.Add(time.Duration(i)*time.Second), "Harder Better Faster Stronger", "Daft Punk"))
	}
	if _, err := repo.ProcessBatch(userID, records); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	// The plays sit on fixed 2024 dates, so the window reaches back to them.
	days := int(time.Since(monday).Hours()/24) + 1
	hm, err := svc.Heatmap(userID, days)
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	if hm.TotalPlays != 15 {
		t.Fatalf("expected 15 total plays, got %d", hm.TotalPlays)
	}
	if hm.PeakWeekday != 0 || hm.PeakHour != 14 {
		t.Fatalf("expected peak at weekday=0 hour=14, got weekday=%d hour=%d", hm.PeakWeekday, hm.PeakHour)
	}

	var mondayCell, fridayCell *HeatmapCell
	for i := range hm.Cells {
		c := hm.Cells[i]
		if c.Weekday == 0 && c.Hour == 14 {
			mondayCell = &hm.Cells[i]
		}
		if c.Weekday == 4 && c.Hour == 9 {
			fridayCell = &hm.Cells[i]
		}
	}
	if mondayCell == nil || mondayCell.Count != 10 {
		t.Fatalf("expected weekday=0 hour=14 count=10, got %+v", mondayCell)
	}
	if fridayCell == nil || fridayCell.Count != 5 {
		t.Fatalf("expected weekday=4 hour=9 count=5, got %+v", fridayCell)
	}
}

func TestHeatmapWithNoPlaysIsEmpty(t *testing.T) {
	svc, _, userID := newTestQuerySvc(t)

	hm, err := svc.Heatmap(userID, 30)
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	if hm.TotalPlays != 0 || len(hm.Cells) != 0 {
		t.Fatalf("expected empty heatmap for a user with no plays, got %+v", hm)
	}
}

func TestCoverageWithNoPlaysHasNilRange(t *testing.T) {
	svc, _, userID := newTestQuerySvc(t)

	cov, err := svc.Coverage(userID, 30)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if cov.TotalPlays != 0 {
		t.Fatalf("expected 0 total plays, got %d", cov.TotalPlays)
	}
	if cov.EarliestPlay != nil || cov.LatestPlay != nil {
		t.Fatalf("expected nil earliest/latest for a user with no plays, got %+v / %+v", cov.EarliestPlay, cov.LatestPlay)
	}
}

func TestCoverageSplitsBySourceTag(t *testing.T) {
	svc, repo, userID := newTestQuerySvc(t)

	now := time.Now().UTC().Add(-time.Hour)
	apiPlay := playAt(now, "API Track", "API Artist")
	apiPlay.Source = models.SourceAPI
	importPlay := playAt(now.Add(time.Minute), "Import Track", "Import Artist")
	importPlay.Source = models.SourceImport

	if _, err := repo.ProcessBatch(userID, []musicrepo.PlayRecord{apiPlay, importPlay}); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	cov, err := svc.Coverage(userID, 30)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if cov.APICount != 1 || cov.ImportCount != 1 {
		t.Fatalf("expected 1 api / 1 import, got api=%d import=%d", cov.APICount, cov.ImportCount)
	}
}

func TestTopArtistsOrdersByPlayCountThenRecency(t *testing.T) {
	svc, repo, userID := newTestQuerySvc(t)

	base := time.Now().UTC().Add(-24 * time.Hour)
	var records []musicrepo.PlayRecord
	for i := 0; i < 3; i++ {
		records = append(records, playAt(base.Add(time.Duration(i)*time.Minute), "Track A", "Artist A"))
	}
	records = append(records, playAt(base.Add(10*time.Minute), "Track B", "Artist B"))
	if _, err := repo.ProcessBatch(userID, records); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	top, err := svc.TopArtists(userID, 30, 10)
	if err != nil {
		t.Fatalf("TopArtists: %v", err)
	}
	if len(top) != 2 || top[0].Name != "Artist A" || top[0].PlayCount != 3 {
		t.Fatalf("expected Artist A first with 3 plays, got %+v", top)
	}
}
