package checkpointstore

import (
	"testing"
	"time"

	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/models"
)

func newTestStore(t *testing.T) (*Store, *db.DB) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Initialize(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	if _, err := database.UpsertUser("spotify-user-1", "Test User", "", "US", models.ProductFree); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return New(database), database
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	store, database := newTestStore(t)
	user, _ := database.GetUserBySpotifyID("spotify-user-1")

	first, err := store.GetOrCreate(user.ID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.Status != models.CheckpointIdle {
		t.Fatalf("expected fresh checkpoint to be idle, got %v", first.Status)
	}

	second, err := store.GetOrCreate(user.ID)
	if err != nil {
		t.Fatalf("GetOrCreate (second call): %v", err)
	}
	if second.UserID != first.UserID {
		t.Fatalf("expected stable checkpoint across repeated calls")
	}
}

func TestMarkPollCompletedIsMonotonic(t *testing.T) {
	store, database := newTestStore(t)
	user, _ := database.GetUserBySpotifyID("spotify-user-1")
	if _, err := store.GetOrCreate(user.ID); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	later := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-24 * time.Hour)

	if err := store.MarkPollCompleted(user.ID, later); err != nil {
		t.Fatalf("MarkPollCompleted (later): %v", err)
	}
	if err := store.MarkPollCompleted(user.ID, earlier); err != nil {
		t.Fatalf("MarkPollCompleted (earlier): %v", err)
	}

	cp, err := store.GetOrCreate(user.ID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if cp.LastPollLatestPlayedAt == nil || !cp.LastPollLatestPlayedAt.Equal(later) {
		t.Fatalf("expected last_poll_latest_played_at to stay at %v, got %v", later, cp.LastPollLatestPlayedAt)
	}
}
