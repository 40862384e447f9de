package runloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playback-history/collector/checkpointstore"
	"github.com/playback-history/collector/db"
	"github.com/playback-history/collector/enrich"
	"github.com/playback-history/collector/importer"
	"github.com/playback-history/collector/initialsync"
	"github.com/playback-history/collector/jobledger"
	"github.com/playback-history/collector/models"
	"github.com/playback-history/collector/musicrepo"
	"github.com/playback-history/collector/poller"
	"github.com/playback-history/collector/spotifyapi"
	"github.com/playback-history/collector/vault"
)

const testVaultKey = "01234567890123456789012345678901"

func newTestLoop(t *testing.T, factory ClientFactory) (*Loop, *db.DB) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Initialize(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	v, err := vault.New(testVaultKey)
	if err != nil {
		t.Fatalf("building vault: %v", err)
	}

	repo := musicrepo.New(database)
	checkpoints := checkpointstore.New(database)
	ledger := jobledger.New(database)

	imp := importer.New(repo, ledger, importer.Config{})
	initial := initialsync.New(repo, checkpoints, ledger, initialsync.Config{}, 1)
	polls := poller.New(repo, checkpoints, ledger)
	enricher := enrich.New(database, ledger, enrich.Config{})

	loop := New(database, v, factory, imp, initial, polls, enricher, Config{
		Interval:               time.Hour,
		InitialSyncEnabled:     true,
		InitialSyncMaxDays:     30,
		InitialSyncMaxRequests: 200,
		InitialSyncConcurrency: 1,
		RateLimitBudget:        5,
	})
	return loop, database
}

// erroringFactory simulates a user with no stored credential — every real
// ClientFactory (spotifyapi.ForUser) returns an error in that case too.
func erroringFactory(calls *int, mu *sync.Mutex) ClientFactory {
	return func(database *db.DB, v *vault.Vault, userID int64) (*spotifyapi.Client, error) {
		mu.Lock()
		*calls++
		mu.Unlock()
		return nil, errors.New("no credential on file")
	}
}

func TestRunCycleSkipsPausedUsers(t *testing.T) {
	var calls int
	var mu sync.Mutex
	loop, database := newTestLoop(t, erroringFactory(&calls, &mu))

	active, err := database.UpsertUser("active-user", "Active", "", "US", models.ProductFree)
	if err != nil {
		t.Fatalf("seeding active user: %v", err)
	}
	paused, err := database.UpsertUser("paused-user", "Paused", "", "US", models.ProductFree)
	if err != nil {
		t.Fatalf("seeding paused user: %v", err)
	}
	if _, err := database.GetOrCreateCheckpoint(active.ID); err != nil {
		t.Fatalf("GetOrCreateCheckpoint (active): %v", err)
	}
	if _, err := database.GetOrCreateCheckpoint(paused.ID); err != nil {
		t.Fatalf("GetOrCreateCheckpoint (paused): %v", err)
	}
	if err := database.SetCheckpointStatus(paused.ID, models.CheckpointPaused); err != nil {
		t.Fatalf("pausing user: %v", err)
	}

	loop.runCycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly 1 client-factory call (for the active user only), got %d", calls)
	}
}

func TestRunCycleStopsOnCanceledContext(t *testing.T) {
	var calls int
	var mu sync.Mutex
	loop, database := newTestLoop(t, erroringFactory(&calls, &mu))

	user, err := database.UpsertUser("spotify-user-1", "Test User", "", "US", models.ProductFree)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	if _, err := database.GetOrCreateCheckpoint(user.ID); err != nil {
		t.Fatalf("GetOrCreateCheckpoint: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop.runCycle(ctx)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no client-factory calls once context is canceled, got %d", calls)
	}
}

func TestProcessPendingImportsMarksFailureOnMissingArchive(t *testing.T) {
	var calls int
	var mu sync.Mutex
	loop, database := newTestLoop(t, erroringFactory(&calls, &mu))

	user, err := database.UpsertUser("spotify-user-1", "Test User", "", "US", models.ProductFree)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	job, err := database.CreateImportJob(user.ID, "/nonexistent/path.zip", 10)
	if err != nil {
		t.Fatalf("CreateImportJob: %v", err)
	}

	loop.processPendingImports(context.Background())

	stored, err := database.GetImportJob(job.ID)
	if err != nil {
		t.Fatalf("GetImportJob: %v", err)
	}
	if stored.Status != models.ImportError {
		t.Fatalf("expected import job to end in error status, got %v", stored.Status)
	}
}

func TestLockForReturnsStableMutexPerUser(t *testing.T) {
	var calls int
	var mu sync.Mutex
	loop, _ := newTestLoop(t, erroringFactory(&calls, &mu))

	a := loop.lockFor(1)
	b := loop.lockFor(1)
	if a != b {
		t.Fatalf("expected the same mutex instance for repeated calls with the same user id")
	}
	c := loop.lockFor(2)
	if a == c {
		t.Fatalf("expected distinct mutexes for distinct user ids")
	}
}
