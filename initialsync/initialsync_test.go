package initialsync

import (
	"context"
	"testing"
	"time"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/errkind"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/models"
	"github.com/playback-history/collector/musicrepo"
	"github.com/playback-history/collector/spotifyapi"
)

// scriptedClient replays a fixed sequence of pages, one per call, and holds
// the last page once the script is exhausted.
type scriptedClient struct {
	pages []spotifyapi.RecentlyPlayedPage
	call  int
}

func (c *scriptedClient) RecentlyPlayed(ctx context.Context, before int64, limit int) (spotifyapi.RecentlyPlayedPage, error) {
	idx := c.call
	if idx >= len(c.pages) {
		idx = len(c.pages) - 1
	}
	c.call++
	return c.pages[idx], nil
}

func (c *scriptedClient) ConsecutiveRateLimits() int { return 0 }

func newTestService(t *testing.T) (*Service, int64) {
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
	repo := musicrepo.New(database)
	checkpoints := checkpointstore.New(database)
	ledger := jobledger.New(database)
	svc := New(repo, checkpoints, ledger, Config{MaxRequests: 200, MaxDays: 30, RateLimitBudget: 5}, 2)
	return svc, user.ID
}

func samePlayedAt(t time.Time) spotifyapi.PlayItem {
	return spotifyapi.PlayItem{
		PlayedAt:   t,
		TrackName:  "Bohemian Rhapsody",
		TrackID:    "track-1",
		Album:      "A Night at the Opera",
		DurationMs: 354000,
		Artists:    []spotifyapi.ArtistRef{{ID: "artist-1", Name: "Queen"}},
	}
}

func TestPageStopsOnNoProgress(t *testing.T) {
	svc, userID := newTestService(t)
	// oldest is a fixed 2024 instant; widen MaxDays so the max-days stop,
	// checked right after no-progress, cannot end the walk on the first page.
	svc.cfg.MaxDays = 100 * 365

	oldest := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stuckPage := spotifyapi.RecentlyPlayedPage{
		Items:   []spotifyapi.PlayItem{samePlayedAt(oldest)},
		HasNext: true,
	}
	client := &scriptedClient{pages: []spotifyapi.RecentlyPlayedPage{stuckPage, stuckPage, stuckPage}}

	result, err := svc.page(context.Background(), userID, client)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if result.Reason != StopNoProgress {
		t.Fatalf("expected StopNoProgress, got %v", result.Reason)
	}
	if result.Requests != 2 {
		t.Fatalf("expected exactly 2 requests before detecting no progress, got %d", result.Requests)
	}
	if !result.EarliestSeen.Equal(oldest) {
		t.Fatalf("expected earliest seen %v, got %v", oldest, result.EarliestSeen)
	}
}

func TestPageStopsOnEmptyFirstPage(t *testing.T) {
	svc, userID := newTestService(t)

	client := &scriptedClient{pages: []spotifyapi.RecentlyPlayedPage{{Items: nil}}}

	result, err := svc.page(context.Background(), userID, client)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if result.Reason != StopEmpty {
		t.Fatalf("expected StopEmpty, got %v", result.Reason)
	}
	if result.Requests != 1 {
		t.Fatalf("expected exactly 1 request, got %d", result.Requests)
	}
}

func TestPageIsBoundedByMaxRequests(t *testing.T) {
	svc, userID := newTestService(t)
	svc.cfg.MaxRequests = 3

	now := time.Now().UTC()
	client := &fallingClient{start: now.Add(-time.Hour), userID: userID}

	result, err := svc.page(context.Background(), userID, client)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if result.Reason != StopRequestCap {
		t.Fatalf("expected StopRequestCap, got %v", result.Reason)
	}
	if result.Requests != 3 {
		t.Fatalf("expected exactly MaxRequests (3) requests, got %d", result.Requests)
	}
}

// fallingClient produces a strictly older play on every call, one hour
// further back each time, so the pager never detects no-progress and must
// instead be stopped by the request cap.
type fallingClient struct {
	start  time.Time
	call   int
	userID int64
}

func (c *fallingClient) RecentlyPlayed(ctx context.Context, before int64, limit int) (spotifyapi.RecentlyPlayedPage, error) {
	played := c.start.Add(-time.Duration(c.call) * time.Hour)
	c.call++
	item := samePlayedAt(played)
	return spotifyapi.RecentlyPlayedPage{Items: []spotifyapi.PlayItem{item}, HasNext: true}, nil
}

func (c *fallingClient) ConsecutiveRateLimits() int { return 0 }

// rateLimitedErrorClient fails its first call with errkind.RateLimited,
// exercising the stop path a client hits when it gives up on a single call
// rather than ever returning a page.
type rateLimitedErrorClient struct{}

func (c *rateLimitedErrorClient) RecentlyPlayed(ctx context.Context, before int64, limit int) (spotifyapi.RecentlyPlayedPage, error) {
	return spotifyapi.RecentlyPlayedPage{}, errkind.New(errkind.RateLimited, "rate limited")
}

func (c *rateLimitedErrorClient) ConsecutiveRateLimits() int { return 0 }

func TestPageStopsWhenClientSurfacesRateLimitedError(t *testing.T) {
	svc, userID := newTestService(t)

	result, err := svc.page(context.Background(), userID, &rateLimitedErrorClient{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if result.Reason != StopRateLimited {
		t.Fatalf("expected StopRateLimited, got %v", result.Reason)
	}
}

// budgetExhaustedClient behaves like fallingClient (always makes progress)
// but reports a ConsecutiveRateLimits() at/above the configured budget,
// exercising the cross-call rate-limit-budget stop path even though no
// individual call ever errors.
type budgetExhaustedClient struct {
	fallingClient
	budget int
}

func (c *budgetExhaustedClient) ConsecutiveRateLimits() int { return c.budget }

func TestPageStopsWhenRateLimitBudgetExceededAcrossCalls(t *testing.T) {
	svc, userID := newTestService(t)
	svc.cfg.RateLimitBudget = 5

	now := time.Now().UTC()
	client := &budgetExhaustedClient{
		fallingClient: fallingClient{start: now.Add(-time.Hour), userID: userID},
		budget:        5,
	}

	result, err := svc.page(context.Background(), userID, client)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if result.Reason != StopRateLimited {
		t.Fatalf("expected StopRateLimited, got %v", result.Reason)
	}
	if result.Requests != 1 {
		t.Fatalf("expected the budget check to stop after the first request, got %d", result.Requests)
	}
}
